package api

// ListResponse wraps a list of items with pagination metadata.
type ListResponse[T any] struct {
	Items  []T   `json:"items" description:"List of items"`
	Total  int64 `json:"total" description:"Total count"`
	Limit  int   `json:"limit" description:"Page size"`
	Offset int   `json:"offset" description:"Page offset"`
}

// SweepResponse reports the outcome of a manual expiration sweep.
type SweepResponse struct {
	Notified int `json:"notified" description:"Warnings sent"`
	Expired  int `json:"expired" description:"Grants expired"`
	Errors   int `json:"errors" description:"Per-grant failures, retried next sweep"`
}
