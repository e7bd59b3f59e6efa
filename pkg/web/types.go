// Package web provides HTTP request and response types for the report API.
package web

// GenerateResponse is returned when a generation run has been accepted.
type GenerateResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// APIKeyStatusResponse reports whether the AI API key is configured without
// revealing it.
type APIKeyStatusResponse struct {
	Configured bool   `json:"configured"`
	Length     int    `json:"length"`
	Message    string `json:"message"`
}

// ListReportsQuery holds the pagination query parameters.
type ListReportsQuery struct {
	Limit  int `validate:"min=0,max=100"`
	Offset int `validate:"min=0"`
}

type DeleteReportResponse struct {
	Success  bool   `json:"success"`
	ReportID int64  `json:"report_id"`
	Message  string `json:"message"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
