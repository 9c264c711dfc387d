package domain

import "time"

// Bookmark links a user to a contest they want to be reminded about.
// The (UserID, ContestName) pair is unique.
type Bookmark struct {
	UserID int64 `json:"user_id"`

	// Recipient is the address reminders are delivered to (a Telegram chat id).
	Recipient string `json:"recipient"`

	ContestName string `json:"contest_name"`

	// ReminderAt is either user supplied or the contest start minus the default lead.
	ReminderAt time.Time `json:"reminder_at"`

	// JobID references the pending reminder job, empty when none was enqueued.
	JobID string `json:"job_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ReminderPayload is the snapshot carried by a scheduled reminder job.
// It is taken at enqueue time and never refreshed from the store.
type ReminderPayload struct {
	Recipient    string    `json:"recipient"`
	ContestTitle string    `json:"contest_title"`
	ContestURL   string    `json:"contest_url"`
	StartTime    time.Time `json:"start_time"`
}
