// Package control exposes the gateway's trusted backend interface over NATS
// request/reply: targeted delivery to one identity and broadcast to every
// connected client.
package control

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/adred-codev/wsgate/internal/delivery"
	"github.com/adred-codev/wsgate/internal/metrics"
)

type sendRequest struct {
	User    string `json:"user"`
	Message string `json:"message"`
}

type broadcastRequest struct {
	Message string `json:"message"`
}

type errorReply struct {
	Err string `json:"err"`
}

type deliveredReply struct {
	Delivered bool `json:"delivered"`
}

type okReply struct {
	OK bool `json:"ok"`
}

// Connect establishes the gateway's NATS connection with reconnect handling
// wired into the structured logger.
func Connect(url string, logger zerolog.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ConnectHandler(func(nc *nats.Conn) {
			logger.Info().
				Str("url", nc.ConnectedUrl()).
				Msg("Connected to NATS")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn().
				Err(err).
				Msg("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().
				Str("url", nc.ConnectedUrl()).
				Msg("Reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// Endpoint subscribes to the control subjects and dispatches requests into
// the delivery service. One Endpoint serves unbounded concurrent requests;
// the delivery service and registry below it are concurrency-safe.
type Endpoint struct {
	conn     *nats.Conn
	delivery *delivery.Service
	prefix   string
	logger   zerolog.Logger
	subs     []*nats.Subscription
}

func NewEndpoint(conn *nats.Conn, svc *delivery.Service, subjectPrefix string, logger zerolog.Logger) *Endpoint {
	return &Endpoint{
		conn:     conn,
		delivery: svc,
		prefix:   subjectPrefix,
		logger:   logger,
	}
}

// Start subscribes to <prefix>.send and <prefix>.broadcast.
func (e *Endpoint) Start() error {
	sendSubject := e.prefix + ".send"
	broadcastSubject := e.prefix + ".broadcast"

	sub, err := e.conn.Subscribe(sendSubject, func(msg *nats.Msg) {
		e.respond(msg, e.handleSend(msg.Data))
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", sendSubject, err)
	}
	e.subs = append(e.subs, sub)

	sub, err = e.conn.Subscribe(broadcastSubject, func(msg *nats.Msg) {
		e.respond(msg, e.handleBroadcast(msg.Data))
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", broadcastSubject, err)
	}
	e.subs = append(e.subs, sub)

	e.logger.Info().
		Str("send_subject", sendSubject).
		Str("broadcast_subject", broadcastSubject).
		Msg("Control plane listening")
	return nil
}

// Stop unsubscribes from the control subjects. In-flight handlers finish
// normally; their replies may still be published.
func (e *Endpoint) Stop() {
	for _, sub := range e.subs {
		if err := sub.Unsubscribe(); err != nil {
			e.logger.Warn().
				Err(err).
				Str("subject", sub.Subject).
				Msg("Failed to unsubscribe control subject")
		}
	}
	e.subs = nil
}

func (e *Endpoint) respond(msg *nats.Msg, reply []byte) {
	if msg.Reply == "" {
		return
	}
	if err := msg.Respond(reply); err != nil {
		e.logger.Warn().
			Err(err).
			Str("subject", msg.Subject).
			Msg("Failed to publish control reply")
	}
}

// handleSend serves one targeted delivery request. Malformed requests yield a
// structured error reply, never a process fault.
func (e *Endpoint) handleSend(payload []byte) []byte {
	metrics.ControlRequests.WithLabelValues("send").Inc()

	var req sendRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.User == "" {
		metrics.ControlErrors.Inc()
		e.logger.Warn().
			Err(err).
			Msg("Malformed send request")
		return mustMarshal(errorReply{Err: "invalid request"})
	}

	switch e.delivery.Deliver(req.User, []byte(req.Message)) {
	case delivery.Delivered:
		return mustMarshal(deliveredReply{Delivered: true})
	case delivery.Offline:
		return mustMarshal(errorReply{Err: "user is offline"})
	default:
		return mustMarshal(deliveredReply{Delivered: false})
	}
}

// handleBroadcast serves one broadcast request. Broadcast is fire-and-forget;
// the reply always acks once the snapshot has been walked.
func (e *Endpoint) handleBroadcast(payload []byte) []byte {
	metrics.ControlRequests.WithLabelValues("broadcast").Inc()

	var req broadcastRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		metrics.ControlErrors.Inc()
		e.logger.Warn().
			Err(err).
			Msg("Malformed broadcast request")
		return mustMarshal(errorReply{Err: "invalid request"})
	}

	e.delivery.Broadcast([]byte(req.Message))
	return mustMarshal(okReply{OK: true})
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Reply shapes are fixed structs; marshal cannot fail.
		panic(err)
	}
	return data
}
