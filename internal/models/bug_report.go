package models

import (
	"time"

	"github.com/google/uuid"
)

// BugReportStatus tracks triage of a bug report
type BugReportStatus string

const (
	BugReportOpen     BugReportStatus = "open"
	BugReportResolved BugReportStatus = "resolved"
)

// BugReport is an in-app problem report filed by a user
type BugReport struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	AppVersion  string          `json:"app_version,omitempty"`
	Device      string          `json:"device,omitempty"`
	Status      BugReportStatus `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}
