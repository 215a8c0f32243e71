package models

import "time"

// Нормализованные статусы (адаптеры могут отдавать и свои, кэш их не интерпретирует).
const (
	TrackingStatusUnknown    = "UNKNOWN"
	TrackingStatusBooked     = "BOOKED"
	TrackingStatusInTransit  = "IN_TRANSIT"
	TrackingStatusDischarged = "DISCHARGED"
	TrackingStatusDelivered  = "DELIVERED"
)

type Carrier struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type Milestone struct {
	Code     string     `json:"code"`
	Name     string     `json:"name"`
	Time     *time.Time `json:"time,omitempty"`
	Location string     `json:"location,omitempty"`
}

// TrackingPayload — нормализованный ответ адаптера перевозчика.
// Для кэша это непрозрачное значение.
type TrackingPayload struct {
	Carrier    string         `json:"carrier"`
	Container  string         `json:"container"`
	Status     string         `json:"status"`
	ETA        *time.Time     `json:"eta,omitempty"`
	Vessel     string         `json:"vessel,omitempty"`
	Milestones []Milestone    `json:"milestones"`
	Provider   string         `json:"provider"`
	FetchedAt  time.Time      `json:"fetchedAt"`
	Extra      map[string]any `json:"extra,omitempty"`
}

type CacheEntry struct {
	Container string           `json:"container"`
	Payload   *TrackingPayload `json:"payload"`
	UpdatedAt time.Time        `json:"updated_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Fresh reports whether the entry can be served without a provider call.
func (e *CacheEntry) Fresh(now time.Time) bool {
	return e != nil && e.ExpiresAt.After(now)
}
