package models

// Event names pushed over client connections.
const (
	EventJoinHackathon        = "join-hackathon"
	EventNotificationReceived = "notification:received"
	EventNotificationsInitial = "notifications:initial"
)

// AckChannel is the pub/sub channel carrying delivery acknowledgments from
// the fan-out workers to the delivery ledger.
const AckChannel = "notifications:delivered"

// NotificationEvent is the payload of a notification:received push.
type NotificationEvent struct {
	ID      uint   `json:"id"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// AckEvent reports one completed fan-out. Delivered is the number of
// connections resolved for the tenant at processing time; the ledger applies
// it as an atomic increment. Duplicate acks are possible under retry, so the
// resulting count is advisory telemetry, not a billing-grade total.
type AckEvent struct {
	NotificationID uint   `json:"notification_id"`
	HackathonID    string `json:"hackathon_id"`
	Delivered      int64  `json:"delivered"`
}
