package session

import (
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/wsgate/internal/auth"
	"github.com/adred-codev/wsgate/internal/metrics"
	"github.com/adred-codev/wsgate/internal/registry"
)

// AuthFailedPayload is the literal message sent to a client whose token is
// rejected. Expired and otherwise-invalid tokens get the same payload so the
// client cannot tell which failure mode occurred.
const AuthFailedPayload = `{"err": "Authentication failed."}`

// Conn is the bidirectional message stream a session operates on. The
// transport adapter produces one per accepted client; the session owns it for
// its whole lifetime.
type Conn interface {
	// Receive blocks until the next inbound message arrives. A non-zero
	// timeout bounds the wait; on expiry the returned error reports
	// Timeout() true. timeout 0 means wait indefinitely.
	Receive(timeout time.Duration) ([]byte, error)

	// Send writes one message to the peer. Safe for concurrent callers.
	Send(message []byte) error

	// Close tears down the stream. Safe to call more than once.
	Close() error
}

// Handler runs the authentication handshake for each accepted connection and
// maintains the connection's registry entry for as long as it lives.
//
// State machine per connection: awaiting-token -> authenticated -> closed,
// with rejection (timeout or bad token) terminal from the first state. The
// registry is mutated exactly twice per authenticated session: one Put on
// success and one conditional remove on closure.
type Handler struct {
	verifier         *auth.Verifier
	registry         *registry.Registry
	handshakeTimeout time.Duration
	logger           zerolog.Logger
}

func NewHandler(verifier *auth.Verifier, reg *registry.Registry, handshakeTimeout time.Duration, logger zerolog.Logger) *Handler {
	return &Handler{
		verifier:         verifier,
		registry:         reg,
		handshakeTimeout: handshakeTimeout,
		logger:           logger,
	}
}

// Run drives conn through the session state machine and returns when the
// connection is gone. It never returns an error: handshake timeouts, bad
// tokens and transport failures are all expected per-connection outcomes,
// contained here and never escalated.
func (h *Handler) Run(conn Conn) {
	defer conn.Close()

	token, err := conn.Receive(h.handshakeTimeout)
	if err != nil {
		if isTimeout(err) {
			metrics.HandshakeTimeouts.Inc()
			h.logger.Debug().
				Dur("timeout", h.handshakeTimeout).
				Msg("No token received within handshake window")
		} else {
			h.logger.Debug().
				Err(err).
				Msg("Connection lost during handshake")
		}
		return
	}

	identity, err := h.verifier.Verify(token)
	if err != nil {
		metrics.AuthFailures.WithLabelValues(authFailureReason(err)).Inc()
		h.logger.Info().
			Str("reason", authFailureReason(err)).
			Msg("Rejecting unauthenticated connection")

		// Best effort: the peer may already be gone.
		if sendErr := conn.Send([]byte(AuthFailedPayload)); sendErr != nil {
			h.logger.Debug().
				Err(sendErr).
				Msg("Failed to send auth failure payload")
		}
		return
	}

	prev := h.registry.Put(identity, conn)
	if prev != nil {
		metrics.SessionsSuperseded.Inc()
		h.logger.Info().
			Str("identity", identity).
			Msg("New session supersedes existing registration")
	}
	metrics.SessionsActive.Inc()
	h.logger.Info().
		Str("identity", identity).
		Msg("Session authenticated")

	// Conditional removal: if this session was superseded while waiting,
	// the registry entry belongs to the newer session and must survive.
	defer func() {
		h.registry.RemoveIfCurrent(identity, conn)
		metrics.SessionsActive.Dec()
		h.logger.Info().
			Str("identity", identity).
			Msg("Session closed")
	}()

	h.waitClosed(conn)
}

// waitClosed parks the session until the stream reports closure. Inbound
// frames from the client are read and discarded; this gateway's data flow is
// strictly server-to-client after the handshake.
func (h *Handler) waitClosed(conn Conn) {
	for {
		if _, err := conn.Receive(0); err != nil {
			return
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func authFailureReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpired):
		return "expired"
	case errors.Is(err, auth.ErrMalformed):
		return "malformed"
	default:
		return "invalid"
	}
}
