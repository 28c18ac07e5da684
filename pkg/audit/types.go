package audit

import (
	"encoding/json"
	"time"
)

// Status represents the outcome recorded for an operation
type Status string

const (
	StatusAllowed Status = "allowed"
	StatusDenied  Status = "denied"
)

// Details carries structured context for a record
type Details struct {
	Before   map[string]interface{} `json:"before,omitempty"`
	After    map[string]interface{} `json:"after,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// IsZero reports whether no details were set
func (d Details) IsZero() bool {
	return len(d.Before) == 0 && len(d.After) == 0 && len(d.Metadata) == 0
}

// Record is a single activity log entry. Records are append-only.
type Record struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Actor and scope
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`

	// Operation
	Action     string `json:"action"`
	Resource   string `json:"resource"`
	ResourceID string `json:"resource_id,omitempty"`
	Status     Status `json:"status"`
	Reason     string `json:"reason,omitempty"`

	Details Details `json:"details"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ToJSON converts the record to JSON
func (r *Record) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a record from JSON
func FromJSON(data []byte) (*Record, error) {
	var r Record
	err := json.Unmarshal(data, &r)
	return &r, err
}

// SearchFilter represents filters for reading activity logs
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	TenantID   string
	UserID     string
	Resource   string
	Action     string
	ResourceID string
	Status     *Status

	Limit  int
	Offset int
}

// ExportFormat represents the format for exporting activity logs
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson"
)
