package session

import "time"

// CreateRequest names the two participants' languages by display name or code.
type CreateRequest struct {
	Participant1 string `json:"participant1"`
	Participant2 string `json:"participant2"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	Status          Status    `json:"status"`
	Participant1    string    `json:"participant1"`
	Participant2    string    `json:"participant2"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}
