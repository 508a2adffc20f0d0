package models

import "time"

// Status is the moderation state of a user. First contact creates the
// record as pending; only the approval workflow moves it further.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// User is a registry record for one chat user. The ID is the chat
// platform's numeric id rendered as a string.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name,omitempty"`
	Status      Status    `json:"status"`
	RequestedAt time.Time `json:"requested_at"`
}

// DayKey returns the usage-ledger key for t. Days are bucketed in UTC so
// the quota boundary does not depend on server locale.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
