package repository

import (
	"context"
	"strings"

	"github.com/go-redis/redis/v8"
)

// StreamLog is the per-tenant append-only delivery trail. Each hackathon owns
// one Redis stream with a dedicated consumer group; entries are appended
// after a successful fan-out, and the group's pending set doubles as a
// backpressure signal.
type StreamLog struct {
	rdb redis.UniversalClient
}

func NewStreamLog(rdb redis.UniversalClient) *StreamLog {
	return &StreamLog{rdb: rdb}
}

func streamKey(hackathonID string) string {
	return "notifications:" + hackathonID
}

func groupName(hackathonID string) string {
	return "fanout-group-" + hackathonID
}

// EnsureGroup creates the hackathon's consumer group, creating the stream if
// needed. Creating a group that already exists is a no-op.
func (s *StreamLog) EnsureGroup(ctx context.Context, hackathonID string) error {
	err := s.rdb.XGroupCreateMkStream(ctx, streamKey(hackathonID), groupName(hackathonID), "$").Err()
	if err != nil && strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

// Append records a delivery attempt and returns the stream entry id.
func (s *StreamLog) Append(ctx context.Context, hackathonID string, notificationID uint) (string, error) {
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(hackathonID),
		Values: map[string]interface{}{
			"notification_id": notificationID,
			"hackathon_id":    hackathonID,
		},
	}).Result()
}

// Pending returns the number of entries claimed but not yet acknowledged by
// the hackathon's consumer group.
func (s *StreamLog) Pending(ctx context.Context, hackathonID string) (int64, error) {
	p, err := s.rdb.XPending(ctx, streamKey(hackathonID), groupName(hackathonID)).Result()
	if err != nil {
		return 0, err
	}
	return p.Count, nil
}
