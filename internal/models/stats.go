package models

// Stats holds record counts reported by the metrics endpoint
type Stats struct {
	Users           int `json:"users"`
	Posts           int `json:"posts"`
	Comments        int `json:"comments"`
	PendingComments int `json:"pending_comments"`
	PendingJobs     int `json:"pending_jobs"`
	FailedJobs      int `json:"failed_jobs"`
}
