package redis

import (
	"context"
	"fmt"
	"time"
)

const (
	SeenTenderTTL     = 7 * 24 * time.Hour
	SendCounterWindow = 1 * time.Minute
)

func SeenTenderKey(tenderID string) string {
	return fmt.Sprintf("seen:tender:%s", tenderID)
}

func SendCounterKey() string {
	return "sends:engine"
}

// IsTenderSeen reports whether the tender already went through the
// immediate pipeline.
func (c *Cache) IsTenderSeen(ctx context.Context, tenderID string) (bool, error) {
	return c.exists(ctx, SeenTenderKey(tenderID))
}

// MarkTenderSeen records the tender as handled. The marker expires once the
// tender is too old to reappear in a poll window.
func (c *Cache) MarkTenderSeen(ctx context.Context, tenderID string) error {
	return c.setString(ctx, SeenTenderKey(tenderID), "1", SeenTenderTTL)
}

// RegisterSend counts one outbound send in the current window and returns
// the window total.
func (c *Cache) RegisterSend(ctx context.Context) (int64, error) {
	return c.incrementWithExpiry(ctx, SendCounterKey(), SendCounterWindow)
}
