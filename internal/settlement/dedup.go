package settlement

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-lms/internal/obs"
)

// Dedup suppresses repeated deliveries of the same outcome for an order.
// The first caller claims the key; if the wrapped marker fails the claim is
// released so a redelivery can try again.
type Dedup struct {
	Next   Marker
	Redis  *redis.Client
	TTL    time.Duration
	Prefix string
	Logger zerolog.Logger
}

// MarkPaid forwards the first paid settlement per order.
func (d Dedup) MarkPaid(ctx context.Context, s Settlement) error {
	s = s.normalised(StatusPaid)
	return d.once(ctx, s, d.Next.MarkPaid)
}

// MarkFailed forwards the first failed settlement per order.
func (d Dedup) MarkFailed(ctx context.Context, s Settlement) error {
	s = s.normalised(StatusFailed)
	return d.once(ctx, s, d.Next.MarkFailed)
}

func (d Dedup) key(s Settlement) string {
	prefix := d.Prefix
	if prefix == "" {
		prefix = "settle:"
	}
	return fmt.Sprintf("%s%s:%s:%s", prefix, s.Provider, s.OrderID, s.Status)
}

func (d Dedup) once(ctx context.Context, s Settlement, next func(context.Context, Settlement) error) error {
	if d.Redis == nil {
		return next(ctx, s)
	}
	ttl := d.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	key := d.key(s)
	claimed, err := d.Redis.SetNX(ctx, key, s.OccurredAt.Unix(), ttl).Result()
	if err != nil {
		return fmt.Errorf("settlement dedup: %w", err)
	}
	if !claimed {
		obs.CountSettlement(taskType(s.Status), "duplicate")
		d.Logger.Info().Str("order_id", s.OrderID).Str("provider", s.Provider).Str("status", s.Status).Msg("settlement_duplicate_ignored")
		return nil
	}
	if err := next(ctx, s); err != nil {
		if delErr := d.Redis.Del(context.WithoutCancel(ctx), key).Err(); delErr != nil {
			d.Logger.Error().Err(delErr).Str("key", key).Msg("settlement_dedup_release_failed")
		}
		return err
	}
	return nil
}
