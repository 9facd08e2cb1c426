package delivery

import (
	"github.com/rs/zerolog"

	"github.com/adred-codev/wsgate/internal/metrics"
	"github.com/adred-codev/wsgate/internal/registry"
)

// Result of a targeted delivery.
type Result int

const (
	// Delivered means the message was written to the identity's live
	// connection.
	Delivered Result = iota

	// Offline means the identity has no live connection. This is a normal
	// outcome for the caller to branch on, not an error.
	Offline

	// Failed means a live connection existed but the write failed; the
	// connection is likely mid-close and its session will deregister it.
	Failed
)

// Service implements the control-plane-facing delivery operations on top of
// the connection registry. It only reads the registry and writes to handles;
// it never closes a connection and never mutates registrations.
type Service struct {
	registry *registry.Registry
	logger   zerolog.Logger
}

func NewService(reg *registry.Registry, logger zerolog.Logger) *Service {
	return &Service{
		registry: reg,
		logger:   logger,
	}
}

// Deliver writes message to the identity's live connection, if any.
func (s *Service) Deliver(identity string, message []byte) Result {
	handle := s.registry.Get(identity)
	if handle == nil {
		metrics.DeliveriesTotal.WithLabelValues("offline").Inc()
		s.logger.Debug().
			Str("identity", identity).
			Msg("Delivery target offline")
		return Offline
	}

	if err := handle.Send(message); err != nil {
		// The connection closed between lookup and write. Its session
		// handles cleanup; the caller just learns the write didn't land.
		metrics.DeliveriesTotal.WithLabelValues("failed").Inc()
		s.logger.Debug().
			Str("identity", identity).
			Err(err).
			Msg("Delivery write failed")
		return Failed
	}

	metrics.DeliveriesTotal.WithLabelValues("delivered").Inc()
	metrics.MessagesSent.Inc()
	return Delivered
}

// Broadcast writes message to every currently registered connection.
// Best-effort over a point-in-time snapshot: connections closing mid-iteration
// are skipped without failing the broadcast.
func (s *Service) Broadcast(message []byte) {
	handles := s.registry.Snapshot()
	metrics.BroadcastsTotal.Inc()

	sent := 0
	for _, handle := range handles {
		metrics.BroadcastRecipients.Inc()
		if err := handle.Send(message); err != nil {
			continue
		}
		metrics.MessagesSent.Inc()
		sent++
	}

	s.logger.Debug().
		Int("recipients", len(handles)).
		Int("sent", sent).
		Msg("Broadcast completed")
}
