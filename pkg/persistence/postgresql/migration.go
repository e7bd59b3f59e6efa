package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create crypto_report table
			CREATE TABLE IF NOT EXISTS crypto_report (
				id SERIAL PRIMARY KEY,
				html_content TEXT NOT NULL,
				css_content TEXT,
				js_content TEXT,
				html_content_en TEXT,
				js_content_en TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_crypto_report_created_at ON crypto_report(created_at DESC);
		`,
	}
}
