package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Channel names published by this service.
const (
	ChannelRecordUpdated = "record.updated"
	ChannelJobFailed     = "job.failed"
)

// RecordUpdated is published after each successful merge so downstream
// consumers (notifications, sync) can react to the new accumulated
// record.
type RecordUpdated struct {
	SessionID string      `json:"session_id"`
	Source    string      `json:"source"` // "api" or "worker"
	Record    interface{} `json:"record"`
}
