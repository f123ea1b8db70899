package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// Message is the wire form of a booking notification sent to external
// transports.
type Message struct {
	Event            string    `json:"event"`
	BookingID        uint      `json:"booking_id"`
	BookingUUID      string    `json:"booking_uuid"`
	OrganizationID   uint      `json:"organization_id"`
	ResourceID       uint      `json:"resource_id"`
	Status           string    `json:"status"`
	SourceService    string    `json:"source_service"`
	SourceObjectType string    `json:"source_object_type"`
	SourceObjectID   string    `json:"source_object_id"`
	RequestedStart   time.Time `json:"requested_start"`
	RequestedEnd     time.Time `json:"requested_end"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// NewMessage flattens a notification into its wire form.
func NewMessage(n BookingNotification) Message {
	b := n.Booking
	return Message{
		Event:            string(n.Event),
		BookingID:        b.ID,
		BookingUUID:      b.UUID,
		OrganizationID:   b.OrganizationID,
		ResourceID:       b.ResourceID,
		Status:           b.Status,
		SourceService:    b.SourceService,
		SourceObjectType: b.SourceObjectType,
		SourceObjectID:   b.SourceObjectID,
		RequestedStart:   b.RequestedStart,
		RequestedEnd:     b.RequestedEnd,
		OccurredAt:       n.OccurredAt,
	}
}

// Subject builds "<prefix>.<source_service>.<event>".
func Subject(prefix string, n BookingNotification) string {
	source := n.Booking.SourceService
	if source == "" {
		source = "unknown"
	}
	return strings.Join([]string{prefix, source, string(n.Event)}, ".")
}

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisForwarder returns a handler that publishes every booking
// notification on a Redis pub/sub channel.
func RedisForwarder(client redisPublisher, channel string) BookingHandler {
	return func(ctx context.Context, n BookingNotification) error {
		payload, err := json.Marshal(NewMessage(n))
		if err != nil {
			return fmt.Errorf("encode booking message: %w", err)
		}
		if err := client.Publish(ctx, channel, payload).Err(); err != nil {
			return fmt.Errorf("redis publish %s: %w", channel, err)
		}
		return nil
	}
}

type natsPublisher interface {
	Publish(subj string, data []byte) error
}

// NATSForwarder returns a handler that publishes every booking
// notification on "<prefix>.<source_service>.<event>".
func NATSForwarder(nc natsPublisher, prefix string) BookingHandler {
	return func(ctx context.Context, n BookingNotification) error {
		payload, err := json.Marshal(NewMessage(n))
		if err != nil {
			return fmt.Errorf("encode booking message: %w", err)
		}
		subject := Subject(prefix, n)
		if err := nc.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}
}

var _ natsPublisher = (*nats.Conn)(nil)
var _ redisPublisher = (*redis.Client)(nil)
