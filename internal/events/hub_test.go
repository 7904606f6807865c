package events

import (
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dataguard/dataguard/internal/logger"
)

func testHub(origins []string) *Hub {
	return NewHub(Config{
		MaxConnections: 4,
		AllowedOrigins: origins,
		PingInterval:   time.Second,
		PongTimeout:    2 * time.Second,
		WriteTimeout:   time.Second,
	}, &logger.Logger{Logger: zap.NewNop()})
}

func TestCheckOrigin(t *testing.T) {
	t.Run("Wildcard", func(t *testing.T) {
		h := testHub([]string{"*"})
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Origin", "https://anything.example.com")
		if !h.checkOrigin(r) {
			t.Error("Wildcard should allow any origin")
		}
	})

	t.Run("ExactMatch", func(t *testing.T) {
		h := testHub([]string{"https://dashboard.example.com"})

		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Origin", "https://dashboard.example.com")
		if !h.checkOrigin(r) {
			t.Error("Allowed origin rejected")
		}

		r.Header.Set("Origin", "https://evil.example.com")
		if h.checkOrigin(r) {
			t.Error("Unlisted origin allowed")
		}
	})

	t.Run("NoOriginHeader", func(t *testing.T) {
		h := testHub([]string{"https://dashboard.example.com"})
		r := httptest.NewRequest("GET", "/ws", nil)
		if !h.checkOrigin(r) {
			t.Error("Requests without an Origin header should be allowed")
		}
	})
}

func TestBroadcastNeverBlocks(t *testing.T) {
	h := testHub([]string{"*"})

	// Nobody is draining the broadcast channel; once the buffer fills,
	// further events must be dropped rather than block the caller
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			h.Broadcast(Event{Type: EventTypeViolation, Timestamp: time.Now()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked with a full queue")
	}
}
