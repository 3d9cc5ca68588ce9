package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-watchlist/cmd/gateway/internal/metrics"
	"github.com/shubham-shewale/stock-watchlist/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/stock-watchlist/pkg/models"
)

const (
	TriggerTick     = "tick"
	TriggerMutation = "mutation"
	TriggerRegister = "register"

	DefaultInterval = time.Second
)

var (
	// ErrSessionClosed means the viewer's transport is gone; the hub drops it.
	ErrSessionClosed = errors.New("session closed")
	// ErrSendBufferFull means the viewer is slow; only this payload is lost.
	ErrSendBufferFull = errors.New("session send buffer full")
)

// Session is one viewer's push channel.
type Session interface {
	ID() string
	SendBytes(b []byte) error
}

// SnapshotSource computes the next snapshot for the watched symbols.
type SnapshotSource interface {
	Next(symbols []string) models.Snapshot
}

type namedSink struct {
	name string
	sink repository.SnapshotSink
}

// Hub owns the registry of viewer sessions and pushes snapshots to all of them,
// on a timer and whenever the watchlist changes.
type Hub struct {
	sessions map[string]Session
	mu       sync.RWMutex

	// broadcastMu serializes snapshot computation and fan-out.
	broadcastMu sync.Mutex

	store    repository.SymbolStore
	source   SnapshotSource
	sinks    []namedSink
	logger   *zap.Logger
	interval time.Duration
}

type Option func(*Hub)

func WithInterval(d time.Duration) Option {
	return func(h *Hub) { h.interval = d }
}

// WithSink adds a destination that receives every fanned-out payload.
func WithSink(name string, sink repository.SnapshotSink) Option {
	return func(h *Hub) { h.sinks = append(h.sinks, namedSink{name: name, sink: sink}) }
}

func NewHub(store repository.SymbolStore, source SnapshotSource, logger *zap.Logger, opts ...Option) *Hub {
	h := &Hub{
		sessions: make(map[string]Session),
		store:    store,
		source:   source,
		logger:   logger,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run drives the broadcast timer until ctx is cancelled. A failed tick is
// logged and the next one proceeds.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Info("Broadcast loop started", zap.Duration("interval", h.interval))
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Broadcast loop stopped")
			return
		case <-ticker.C:
			if err := h.Tick(ctx); err != nil {
				h.logger.Error("Broadcast tick skipped", zap.Error(err))
			}
		}
	}
}

// Tick performs one timer-driven broadcast.
func (h *Hub) Tick(ctx context.Context) error {
	return h.broadcast(ctx, TriggerTick)
}

// BroadcastNow pushes a fresh snapshot immediately; the API calls it after every mutation.
func (h *Hub) BroadcastNow(ctx context.Context) error {
	return h.broadcast(ctx, TriggerMutation)
}

// Register adds the session and pushes it one snapshot straight away. The
// session stays registered even if that first snapshot cannot be computed.
func (h *Hub) Register(ctx context.Context, s Session) error {
	h.broadcastMu.Lock()
	defer h.broadcastMu.Unlock()

	h.mu.Lock()
	h.sessions[s.ID()] = s
	total := len(h.sessions)
	h.mu.Unlock()
	metrics.Sessions.Set(float64(total))
	h.logger.Info("Session registered", zap.String("session", s.ID()), zap.Int("sessions", total))

	payload, err := h.snapshot(ctx)
	if err != nil {
		metrics.BroadcastErrors.Inc()
		return fmt.Errorf("initial snapshot for %s: %w", s.ID(), err)
	}
	h.push(s, payload)
	metrics.Broadcasts.WithLabelValues(TriggerRegister).Inc()
	return nil
}

// Unregister removes the session. It is idempotent and safe while a push to
// the same session is in flight.
func (h *Hub) Unregister(s Session) {
	h.mu.Lock()
	cur, ok := h.sessions[s.ID()]
	if ok && cur == s {
		delete(h.sessions, s.ID())
	}
	total := len(h.sessions)
	h.mu.Unlock()

	if ok && cur == s {
		metrics.Sessions.Set(float64(total))
		h.logger.Info("Session unregistered", zap.String("session", s.ID()), zap.Int("sessions", total))
	}
}

// Len reports the number of registered sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) broadcast(ctx context.Context, trigger string) error {
	h.broadcastMu.Lock()
	defer h.broadcastMu.Unlock()

	start := time.Now()
	payload, err := h.snapshot(ctx)
	if err != nil {
		metrics.BroadcastErrors.Inc()
		return err
	}

	h.mu.RLock()
	targets := make([]Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		h.push(s, payload)
	}

	for _, ns := range h.sinks {
		if err := ns.sink.Publish(ctx, payload); err != nil {
			metrics.SinkErrors.WithLabelValues(ns.name).Inc()
			h.logger.Warn("Snapshot sink failed", zap.String("sink", ns.name), zap.Error(err))
		}
	}

	metrics.Broadcasts.WithLabelValues(trigger).Inc()
	metrics.BroadcastLatency.Observe(time.Since(start).Seconds())
	h.logger.Debug("Broadcast", zap.String("trigger", trigger), zap.Int("sessions", len(targets)), zap.Int("bytes", len(payload)))
	return nil
}

// snapshot reads membership and computes the payload; on a read failure
// nothing is produced so no stale or partial data goes out.
func (h *Hub) snapshot(ctx context.Context) ([]byte, error) {
	symbols, err := h.store.ListSymbols(ctx)
	if err != nil {
		return nil, err
	}
	snap := h.source.Next(symbols)
	if snap == nil {
		snap = models.Snapshot{}
	}
	return json.Marshal(snap)
}

// push isolates one session's failure from the rest of the fan-out.
func (h *Hub) push(s Session, payload []byte) {
	err := s.SendBytes(payload)
	switch {
	case err == nil:
	case errors.Is(err, ErrSendBufferFull):
		metrics.SkippedPushes.Inc()
		h.logger.Debug("Dropping payload for slow session", zap.String("session", s.ID()))
	default:
		metrics.DroppedSessions.Inc()
		h.logger.Debug("Dropping closed session", zap.String("session", s.ID()), zap.Error(err))
		h.Unregister(s)
	}
}
