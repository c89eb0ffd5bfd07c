package domain

import "time"

// FetchResult is what the fetch collaborator returns for one job
// execution. Content and Screenshot are raw bytes; Screenshot may be
// nil when the collaborator does not render pages.
type FetchResult struct {
	Success     bool          `json:"success"`
	StatusCode  int           `json:"status_code"`
	Content     []byte        `json:"-"`
	Screenshot  []byte        `json:"-"`
	ErrorReason string        `json:"error_reason,omitempty"`
	Duration    time.Duration `json:"duration"`
	ItemsFound  int           `json:"items_found"`
	Bytes       int64         `json:"bytes"`
}
