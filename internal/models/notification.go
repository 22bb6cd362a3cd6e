package models

import "time"

// Notification is the durable record created at ingestion time. The
// delivered count is mutated only by the delivery ledger; everything else is
// immutable after insert.
type Notification struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	HackathonID    string    `gorm:"index" json:"hackathon_id"`
	Message        string    `json:"message"`
	Type           string    `json:"type"`
	SentAt         time.Time `gorm:"autoCreateTime" json:"sent_at"`
	DeliveredCount int64     `json:"delivered_count"`
}

// ConnectionIdentity maps a live WebSocket connection to its hackathon.
// Rows are upserted on join and deleted on disconnect, so a tenant's row set
// is exactly its live connections.
type ConnectionIdentity struct {
	ConnectionID string    `gorm:"primaryKey" json:"connection_id"`
	HackathonID  string    `gorm:"index" json:"hackathon_id"`
	JoinedAt     time.Time `gorm:"autoCreateTime" json:"joined_at"`
}
