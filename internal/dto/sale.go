package dto

// IngestReportResponse summarizes one CSV upload.
type IngestReportResponse struct {
	Rows     int `json:"rows"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Embedded int `json:"embedded"`
}
