package model

// SyncMode selects the fetch strategy for a sync run.
type SyncMode string

const (
	// ModeRecent fetches records issued within the last daysBack days.
	ModeRecent SyncMode = "recent"
	// ModeFull crawls the entire corpus page by page.
	ModeFull SyncMode = "full"
	// ModeTest fetches a single bounded page, for smoke-testing.
	ModeTest SyncMode = "test"
)

// SyncRequest is the body of a sync trigger. All fields are optional.
type SyncRequest struct {
	Mode     SyncMode `json:"mode,omitempty"`
	DaysBack int      `json:"daysBack,omitempty"`
	Limit    int      `json:"limit,omitempty"`
	DryRun   bool     `json:"dryRun,omitempty"`
}

// SyncReport summarizes one sync run.
type SyncReport struct {
	RunID         string   `json:"run_id,omitempty"`
	Mode          SyncMode `json:"mode"`
	DryRun        bool     `json:"dry_run,omitempty"`
	Fetched       int      `json:"fetched"`
	Processed     int      `json:"processed"`
	Inserted      int      `json:"inserted"`
	Updated       int      `json:"updated"`
	Skipped       int      `json:"skipped"`
	Errors        int      `json:"errors"`
	ErrorMessages []string `json:"error_messages,omitempty"`
	DurationMS    int64    `json:"duration_ms"`
	Success       bool     `json:"success"`
}

// StoreCounts are the aggregate figures served by the status action.
type StoreCounts struct {
	Total          int `json:"total"`
	Recent         int `json:"recent_30d"`
	ConsumerFacing int `json:"consumer_facing"`
}
