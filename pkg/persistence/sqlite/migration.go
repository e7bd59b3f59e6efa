package sqlite

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS crypto_report (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				html_content TEXT NOT NULL,
				css_content TEXT,
				js_content TEXT,
				html_content_en TEXT,
				js_content_en TEXT,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE INDEX IF NOT EXISTS idx_crypto_report_created_at ON crypto_report(created_at);
		`,
	}
}
