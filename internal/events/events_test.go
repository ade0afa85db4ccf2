package events

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/folio-health/folio/internal/types"
)

func TestBus_Subscribers(t *testing.T) {
	bus, err := NewBus(Config{})
	if err != nil {
		t.Fatalf("NewBus failed: %v", err)
	}

	var got []types.CompletionEvent
	bus.Subscribe(func(ev types.CompletionEvent) { got = append(got, ev) })
	bus.Subscribe(func(ev types.CompletionEvent) { got = append(got, ev) })

	v := 3
	bus.Publish(types.CompletionEvent{
		JobID:      "job-1",
		DocumentID: "doc-1",
		Status:     types.JobSucceeded,
		Version:    &v,
	})
	bus.Close()

	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	if got[0].JobID != "job-1" || *got[0].Version != 3 {
		t.Errorf("unexpected event: %+v", got[0])
	}
}

func TestBus_WebhookDelivery(t *testing.T) {
	var (
		mu       sync.Mutex
		received []*http.Request
		bodies   []types.CompletionEvent
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var ev types.CompletionEvent
		json.Unmarshal(body, &ev)

		mu.Lock()
		received = append(received, r)
		bodies = append(bodies, ev)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	bus, err := NewBus(Config{WebhookTargets: []string{server.URL}})
	if err != nil {
		t.Fatalf("NewBus failed: %v", err)
	}

	bus.Publish(types.CompletionEvent{
		JobID:      "job-1",
		DocumentID: "doc-1",
		Status:     types.JobFailed,
		Error:      "detector unavailable",
	})
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 webhook delivery, got %d", len(received))
	}
	if ceType := received[0].Header.Get("Ce-Type"); ceType != EventTypeCompleted {
		t.Errorf("expected event type %s, got %s", EventTypeCompleted, ceType)
	}
	if subject := received[0].Header.Get("Ce-Subject"); subject != "doc-1" {
		t.Errorf("expected subject doc-1, got %s", subject)
	}
	if bodies[0].JobID != "job-1" || bodies[0].Error != "detector unavailable" {
		t.Errorf("unexpected event payload: %+v", bodies[0])
	}
}

func TestBus_UnreachableTargetDoesNotBlock(t *testing.T) {
	bus, err := NewBus(Config{WebhookTargets: []string{"http://127.0.0.1:1"}})
	if err != nil {
		t.Fatalf("NewBus failed: %v", err)
	}

	delivered := false
	bus.Subscribe(func(types.CompletionEvent) { delivered = true })

	bus.Publish(types.CompletionEvent{JobID: "job-1", Status: types.JobSucceeded})
	bus.Close()

	if !delivered {
		t.Error("expected in-process delivery despite webhook failure")
	}
}
