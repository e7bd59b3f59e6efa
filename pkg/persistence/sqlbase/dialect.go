package sqlbase

import "strconv"

// Dialect captures the SQL differences between supported databases.
type Dialect struct {
	Name               string
	MigrationsTableDDL string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder func(n int) string
}

var Postgres = Dialect{
	Name: "postgresql",
	MigrationsTableDDL: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`,
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
}

var SQLite = Dialect{
	Name: "sqlite",
	MigrationsTableDDL: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`,
	Placeholder: func(int) string { return "?" },
}
