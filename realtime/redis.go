package realtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/go-redis/redis/v8"
	"github.com/lastholder/button-system/models"
)

const eventsChannel = "button:game_events"

// Bridge fans game events out across instances through redis pub/sub. Each
// instance publishes its events to one channel and feeds everything it
// receives — its own publishes included — into the local hub, so subscribers
// connected to any instance see every transition.
//
// The bridge is best-effort transport, never a source of truth: a publish
// failure is logged, delivered locally and never propagated to the caller.
type Bridge struct {
	hub    *Hub
	rdb    *redis.Client
	logger *slog.Logger
}

func NewBridge(hub *Hub, rdb *redis.Client, logger *slog.Logger) *Bridge {
	return &Bridge{hub: hub, rdb: rdb, logger: logger}
}

// Notify implements services.Notifier.
func (b *Bridge) Notify(event models.GameEvent) {
	message, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("failed to marshal game event",
			slog.String("game_id", event.GameID),
			slog.Any("error", err))
		return
	}
	if err := b.rdb.Publish(context.Background(), eventsChannel, message).Err(); err != nil {
		b.logger.Error("failed to publish game event to redis",
			slog.String("game_id", event.GameID),
			slog.Any("error", err))
		// Деградация до локальной доставки.
		b.hub.BroadcastToGame(event.GameID, message)
	}
}

// Run consumes the channel until ctx is canceled.
func (b *Bridge) Run(ctx context.Context) {
	sub := b.rdb.Subscribe(ctx, eventsChannel)
	defer sub.Close()

	b.logger.Info("redis event bridge started", slog.String("channel", eventsChannel))
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			var event models.GameEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("dropping malformed game event", slog.Any("error", err))
				continue
			}
			b.hub.BroadcastToGame(event.GameID, []byte(msg.Payload))
		}
	}
}
