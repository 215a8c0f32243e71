package messages

import "time"

const SubmissionRecordedTopic = "submission.recorded"

// SubmissionRecorded is published after a successful init.
type SubmissionRecorded struct {
	ID          string    `json:"id"`
	Container   string    `json:"container"`
	CarrierCode string    `json:"carrier_code,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
	RequestID   string    `json:"request_id,omitempty"`
}
