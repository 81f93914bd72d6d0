package services

import "github.com/lastholder/button-system/models"

// Notifier pushes game events to interested subscribers. Delivery is
// fire-and-forget relative to the core state transitions: a failed or slow
// notification never blocks and never rolls back a persisted mutation.
type Notifier interface {
	Notify(event models.GameEvent)
}

type noopNotifier struct{}

func (noopNotifier) Notify(models.GameEvent) {}

// NopNotifier возвращает заглушку для окружений без realtime-транспорта.
func NopNotifier() Notifier {
	return noopNotifier{}
}
