package monitor

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/algo-trading/tastytrade/internal/domain"
)

func testAlertManager() *AlertManager {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return NewAlertManager([]string{"slack-ops"}, logger)
}

func TestFireAndAcknowledge(t *testing.T) {
	am := testAlertManager()

	am.Fire(AlertLevelP1, "FeedDown", "no ticks for 30s")
	am.Fire(AlertLevelP2, "SlowWrites", "journal latency elevated")

	active := am.ActiveAlerts()
	if len(active) != 2 {
		t.Fatalf("expected 2 active alerts, got %d", len(active))
	}
	if active[0].Level != AlertLevelP1 || active[0].Name != "FeedDown" {
		t.Errorf("unexpected first alert %+v", active[0])
	}

	am.AcknowledgeAlert("FeedDown")
	active = am.ActiveAlerts()
	if len(active) != 1 {
		t.Fatalf("expected 1 active alert after ack, got %d", len(active))
	}
	if active[0].Name != "SlowWrites" {
		t.Errorf("wrong alert remained active: %+v", active[0])
	}
}

func TestAcknowledgeUnknownAlert(t *testing.T) {
	am := testAlertManager()
	am.Fire(AlertLevelP2, "SlowWrites", "journal latency elevated")
	am.AcknowledgeAlert("NoSuchAlert")
	if len(am.ActiveAlerts()) != 1 {
		t.Error("acking an unknown name must not touch other alerts")
	}
}

func TestWatchBrokerageEvents(t *testing.T) {
	am := testAlertManager()

	events := make(chan domain.BrokerageEvent, 8)
	done := make(chan struct{})
	go func() {
		am.WatchBrokerageEvents(events)
		close(done)
	}()

	events <- domain.BrokerageEvent{
		Kind: domain.EventError,
		Code: "ReconnectExhausted",
	}
	events <- domain.BrokerageEvent{
		Kind: domain.EventError,
		Code: "StreamError",
	}
	// Routine lifecycle events must not page anyone.
	events <- domain.BrokerageEvent{
		Kind: domain.EventReconnect,
		Code: "StreamReconnected",
	}
	close(events)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not drain the channel")
	}

	active := am.ActiveAlerts()
	if len(active) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(active))
	}
	if active[0].Level != AlertLevelP1 || active[0].Name != "ReconnectExhausted" {
		t.Errorf("expected P1 for exhausted reconnects, got %+v", active[0])
	}
	if active[1].Level != AlertLevelP2 {
		t.Errorf("expected P2 for generic stream error, got %+v", active[1])
	}
}
