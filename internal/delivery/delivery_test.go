package delivery

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/adred-codev/wsgate/internal/registry"
)

type recordingHandle struct {
	mu       sync.Mutex
	messages [][]byte
	failWith error
}

func (h *recordingHandle) Send(message []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failWith != nil {
		return h.failWith
	}
	h.messages = append(h.messages, message)
	return nil
}

func (h *recordingHandle) received() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.messages
}

func TestDeliverToRegisteredIdentity(t *testing.T) {
	reg := registry.New()
	svc := NewService(reg, zerolog.Nop())

	h := &recordingHandle{}
	reg.Put("a@example.com", h)

	if got := svc.Deliver("a@example.com", []byte("hi")); got != Delivered {
		t.Fatalf("expected Delivered, got %v", got)
	}
	msgs := h.received()
	if len(msgs) != 1 || string(msgs[0]) != "hi" {
		t.Fatalf("expected single message %q, got %v", "hi", msgs)
	}
}

func TestDeliverToAbsentIdentityReportsOffline(t *testing.T) {
	reg := registry.New()
	svc := NewService(reg, zerolog.Nop())

	if got := svc.Deliver("absent-user", []byte("hi")); got != Offline {
		t.Fatalf("expected Offline, got %v", got)
	}
}

func TestDeliverAfterDisconnectReportsOffline(t *testing.T) {
	reg := registry.New()
	svc := NewService(reg, zerolog.Nop())

	h := &recordingHandle{}
	reg.Put("a@example.com", h)
	if got := svc.Deliver("a@example.com", []byte("hi")); got != Delivered {
		t.Fatalf("expected Delivered, got %v", got)
	}

	reg.RemoveIfCurrent("a@example.com", h)
	if got := svc.Deliver("a@example.com", []byte("hi")); got != Offline {
		t.Fatalf("expected Offline after disconnect, got %v", got)
	}
}

func TestDeliverWriteFailure(t *testing.T) {
	reg := registry.New()
	svc := NewService(reg, zerolog.Nop())

	reg.Put("a@example.com", &recordingHandle{failWith: errors.New("broken pipe")})

	if got := svc.Deliver("a@example.com", []byte("hi")); got != Failed {
		t.Fatalf("expected Failed, got %v", got)
	}
}

func TestBroadcastReachesAllRegistered(t *testing.T) {
	reg := registry.New()
	svc := NewService(reg, zerolog.Nop())

	handles := []*recordingHandle{{}, {}, {}}
	reg.Put("a@example.com", handles[0])
	reg.Put("b@example.com", handles[1])
	reg.Put("c@example.com", handles[2])

	svc.Broadcast([]byte("news"))

	for i, h := range handles {
		msgs := h.received()
		if len(msgs) != 1 || string(msgs[0]) != "news" {
			t.Fatalf("handle %d: expected %q, got %v", i, "news", msgs)
		}
	}
}

func TestBroadcastSwallowsPerHandleFailures(t *testing.T) {
	reg := registry.New()
	svc := NewService(reg, zerolog.Nop())

	ok := &recordingHandle{}
	reg.Put("a@example.com", ok)
	reg.Put("b@example.com", &recordingHandle{failWith: errors.New("closed mid-broadcast")})

	// Must not panic or skip the healthy connection.
	svc.Broadcast([]byte("news"))

	msgs := ok.received()
	if len(msgs) != 1 || string(msgs[0]) != "news" {
		t.Fatalf("healthy handle should still receive broadcast, got %v", msgs)
	}
}
