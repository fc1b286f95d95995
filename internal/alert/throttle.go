// Package alert provides the per-user moderator-alert gate backed by Redis.
// Cooldown records are stored as simple key-value pairs with TTL-based
// expiry:
//
//	Key:   alertcd:<userID>
//	Value: unix timestamp of the alert
//	TTL:   cooldown period
package alert

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// CooldownPrefix is the Redis key prefix for alert cooldown records.
const CooldownPrefix = "alertcd:"

// DefaultCooldown is the minimum interval between consecutive alerts for
// the same user.
const DefaultCooldown = time.Hour

// Notifier posts a text message to a channel on the chat platform.
type Notifier interface {
	PostChannel(ctx context.Context, channelID, text string) error
}

// Throttle gates moderator alerts per user. It knows nothing about which
// threshold was crossed or by how much; it only enforces the cooldown.
type Throttle struct {
	client    *redis.Client
	notifier  Notifier
	channelID string
	cooldown  time.Duration
}

// NewThrottle creates a Throttle that delivers alerts to the given
// moderator-facing channel.
func NewThrottle(client *redis.Client, notifier Notifier, channelID string, cooldown time.Duration) *Throttle {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Throttle{
		client:    client,
		notifier:  notifier,
		channelID: channelID,
		cooldown:  cooldown,
	}
}

// MaybeAlert sends a moderator alert for the user unless one fired within
// the cooldown period. The cooldown record is claimed with a single SET NX,
// so two overlapping dispatch cycles alerting on the same user produce
// exactly one alert. Suppressed alerts are silent no-ops.
func (t *Throttle) MaybeAlert(ctx context.Context, userID, displayName string, score int) (bool, error) {
	key := CooldownPrefix + userID
	now := strconv.FormatInt(time.Now().Unix(), 10)

	ok, err := t.client.SetNX(ctx, key, now, t.cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("alert: cooldown claim: %w", err)
	}
	if !ok {
		log.Printf("[alert] suppressed for user=%s (cooldown active)", userID)
		return false, nil
	}

	text := fmt.Sprintf("⚠️ User %s (%s) dropped to score %d. Please review their recent messages.",
		displayName, userID, score)
	if err := t.notifier.PostChannel(ctx, t.channelID, text); err != nil {
		// The cooldown record stands even though delivery failed; the next
		// crossing retries after it expires.
		return false, fmt.Errorf("alert: notify: %w", err)
	}

	log.Printf("[alert] fired for user=%s score=%d", userID, score)
	return true, nil
}
