package monitor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/algo-trading/tastytrade/internal/domain"
)

type AlertLevel string

const (
	AlertLevelP1 AlertLevel = "P1"
	AlertLevelP2 AlertLevel = "P2"
)

type Alert struct {
	Level   AlertLevel
	Name    string
	Message string
	FiredAt time.Time
	AckedAt *time.Time
}

// AlertManager keeps a record of fired alerts and fans them out to the
// configured notification channels. Dispatch is log-only for now; paging
// integrations hang off the channel names.
type AlertManager struct {
	mu       sync.RWMutex
	alerts   []Alert
	channels []string
	logger   *slog.Logger
}

func NewAlertManager(channels []string, logger *slog.Logger) *AlertManager {
	return &AlertManager{
		channels: channels,
		logger:   logger,
	}
}

func (am *AlertManager) Fire(level AlertLevel, name, message string) {
	alert := Alert{
		Level:   level,
		Name:    name,
		Message: message,
		FiredAt: time.Now(),
	}

	am.mu.Lock()
	am.alerts = append(am.alerts, alert)
	am.mu.Unlock()

	am.logger.Error("ALERT FIRED",
		"level", string(level),
		"name", name,
		"message", message,
	)

	for _, ch := range am.channels {
		am.logger.Info("alert dispatched",
			"channel", ch,
			"level", string(level),
			"name", name,
		)
	}
}

// WatchBrokerageEvents consumes connection lifecycle events and fires alerts
// for the ones that need operator attention. Runs until the channel closes.
func (am *AlertManager) WatchBrokerageEvents(events <-chan domain.BrokerageEvent) {
	for ev := range events {
		switch {
		case ev.Code == "ReconnectExhausted" || ev.Code == "StreamAuthRejected":
			am.Fire(AlertLevelP1, ev.Code, ev.Message)
		case ev.Kind == domain.EventError:
			am.Fire(AlertLevelP2, ev.Code, ev.Message)
		}
	}
}

func (am *AlertManager) ActiveAlerts() []Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	var active []Alert
	for _, a := range am.alerts {
		if a.AckedAt == nil {
			active = append(active, a)
		}
	}
	return active
}

func (am *AlertManager) AcknowledgeAlert(name string) {
	am.mu.Lock()
	defer am.mu.Unlock()

	now := time.Now()
	for i := range am.alerts {
		if am.alerts[i].Name == name && am.alerts[i].AckedAt == nil {
			am.alerts[i].AckedAt = &now
		}
	}
}
