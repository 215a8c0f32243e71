package models

import "time"

type UserSnippet struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
	Role    string `json:"role"`
	Country string `json:"country"`
}

// Submission — одна запись на каждый вызов init. Ключ — номер контейнера,
// повторная отправка перезаписывает запись.
type Submission struct {
	ID        string      `json:"id"`
	Container string      `json:"container"`
	Company   string      `json:"company"`
	Consent   bool        `json:"consent"`
	User      UserSnippet `json:"user"`
	CreatedAt time.Time   `json:"created_at"`
}

type UserProfile struct {
	Phone           string    `json:"phone"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Company         string    `json:"company"`
	Country         string    `json:"country"`
	Role            string    `json:"role"`
	LastSeenAt      time.Time `json:"last_seen_at"`
	SubmissionCount int64     `json:"submission_count"`
}
