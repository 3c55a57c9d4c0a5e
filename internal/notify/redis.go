package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisSink pushes confirmations to the tenant's real-time UI channel.
type RedisSink struct {
	client *redis.Client
}

func NewRedisSink(url string) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("NewRedisSink: %w", err)
	}
	return &RedisSink{client: redis.NewClient(opts)}, nil
}

func TenantChannel(tenantID uuid.UUID) string {
	return "tenant:" + tenantID.String() + ":payments"
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSink) PaymentConfirmed(ctx context.Context, evt PaymentConfirmed) error {
	payload, err := encode(evt)
	if err != nil {
		return fmt.Errorf("PaymentConfirmed: %w", err)
	}
	if err := s.client.Publish(ctx, TenantChannel(evt.TenantID), payload).Err(); err != nil {
		return fmt.Errorf("PaymentConfirmed: publish: %w", err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
