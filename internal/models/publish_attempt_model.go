package models

import "time"

type AttemptOutcome string

const (
	AttemptPublished AttemptOutcome = "published"
	AttemptRejected  AttemptOutcome = "rejected"
	AttemptInvalid   AttemptOutcome = "invalid"
	AttemptAuth      AttemptOutcome = "auth_failed"
	AttemptTransient AttemptOutcome = "transient"
)

// PublishAttempt records one orchestrator run against a platform.
type PublishAttempt struct {
	ID           int64          `db:"id" json:"id"`
	PostID       int64          `db:"post_id" json:"post_id"`
	AccountID    *int64         `db:"account_id" json:"account_id"`
	Attempt      int            `db:"attempt" json:"attempt"`
	Outcome      AttemptOutcome `db:"outcome" json:"outcome"`
	ErrorCode    string         `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}
