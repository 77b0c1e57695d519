// Package stream is the subscription fan-out engine. It owns every live
// quote subscription, the symbol index that routes inbound frames, and the
// bounded per-subscription queues that decouple the upstream feed goroutine
// from the per-client consumers.
package stream

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"quantgate/internal/apperr"
	"quantgate/internal/config"
	"quantgate/internal/metrics"
	"quantgate/pkg/types"
)

// QuoteSource is the slice of the upstream adapter the manager drives.
// Subscribe and Unsubscribe must be idempotent in both directions; the
// literal symbol "*" tears down a firehose subscription.
type QuoteSource interface {
	Subscribe(ctx context.Context, symbol string) error
	SubscribeFirehose(ctx context.Context) error
	Unsubscribe(ctx context.Context, symbol string) error
}

// AdjustedQuoteSource is implemented by sources that can apply price
// adjustment upstream. Sources without it get plain subscribes and the
// adjustment request is logged and ignored.
type AdjustedQuoteSource interface {
	SubscribeAdjusted(ctx context.Context, symbol string, adjust types.AdjustMode) error
}

// Firehose teardown uses this in place of a symbol.
const firehoseSymbol = "*"

type subscription struct {
	id      string
	symbols []string
	adjust  types.AdjustMode
	kind    types.SubscriptionKind
	created time.Time

	queue        *queue
	closed       atomic.Bool
	lastActivity atomic.Int64 // unix nanos
}

func (s *subscription) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *subscription) info() types.SubscriptionInfo {
	status := "active"
	if s.closed.Load() {
		status = "closed"
	}
	return types.SubscriptionInfo{
		SubscriptionID: s.id,
		Symbols:        append([]string(nil), s.symbols...),
		Adjust:         s.adjust,
		Kind:           s.kind,
		Status:         status,
		CreatedAt:      s.created,
		LastActivityAt: time.Unix(0, s.lastActivity.Load()).UTC(),
		QueueLength:    s.queue.len(),
		Dropped:        s.queue.dropCount(),
	}
}

// Manager multiplexes many client subscriptions over a small number of
// upstream subscriptions. All map state is guarded by mu; each queue is its
// own synchronisation point. The upstream feed goroutine only ever holds mu
// for the duration of a non-blocking enqueue.
type Manager struct {
	source  QuoteSource
	cfg     config.StreamConfig
	logger  zerolog.Logger
	metrics *metrics.Registry

	mu       sync.RWMutex
	subs     map[string]*subscription
	bySymbol map[string]map[string]*subscription
	firehose map[string]*subscription
}

// NewManager builds an empty manager over the given quote source.
func NewManager(source QuoteSource, cfg config.StreamConfig, logger zerolog.Logger, m *metrics.Registry) *Manager {
	return &Manager{
		source:   source,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		subs:     make(map[string]*subscription),
		bySymbol: make(map[string]map[string]*subscription),
		firehose: make(map[string]*subscription),
	}
}

// Subscribe registers interest in the given symbols and returns the new
// subscription descriptor. Local state is installed before the upstream
// calls so the cap holds at all times; any upstream failure rolls it back.
func (m *Manager) Subscribe(ctx context.Context, symbols []string, adjust types.AdjustMode) (types.SubscriptionInfo, error) {
	clean := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if t := strings.TrimSpace(s); t != "" {
			clean = append(clean, t)
		}
	}
	if len(clean) == 0 {
		return types.SubscriptionInfo{}, apperr.EmptySymbols()
	}

	sub := &subscription{
		id:      uuid.NewString(),
		symbols: clean,
		adjust:  adjust,
		kind:    types.KindQuote,
		created: time.Now().UTC(),
		queue:   newQueue(m.cfg.QueueDepth),
	}
	sub.touch()

	m.mu.Lock()
	if len(m.subs) >= m.cfg.MaxSubscriptions {
		m.mu.Unlock()
		return types.SubscriptionInfo{}, apperr.SubLimit(m.cfg.MaxSubscriptions)
	}
	m.subs[sub.id] = sub
	for _, sym := range clean {
		set := m.bySymbol[sym]
		if set == nil {
			set = make(map[string]*subscription)
			m.bySymbol[sym] = set
		}
		set[sub.id] = sub
	}
	m.mu.Unlock()

	for _, sym := range clean {
		if err := m.subscribeUpstream(ctx, sym, adjust); err != nil {
			m.rollback(ctx, sub)
			return types.SubscriptionInfo{}, asUpstreamErr(err)
		}
	}

	m.metrics.ActiveSubscriptions.Inc()
	m.logger.Info().
		Str("subscription_id", sub.id).
		Strs("symbols", clean).
		Str("adjust", string(adjust)).
		Msg("subscription created")
	return sub.info(), nil
}

// SubscribeFirehose registers a whole-market subscription that receives
// every inbound frame regardless of symbol.
func (m *Manager) SubscribeFirehose(ctx context.Context) (types.SubscriptionInfo, error) {
	if !m.cfg.FirehoseEnabled {
		return types.SubscriptionInfo{}, apperr.FirehoseDisabled()
	}

	sub := &subscription{
		id:      uuid.NewString(),
		kind:    types.KindFirehose,
		adjust:  types.AdjustNone,
		created: time.Now().UTC(),
		queue:   newQueue(m.cfg.QueueDepth),
	}
	sub.touch()

	m.mu.Lock()
	if len(m.subs) >= m.cfg.MaxSubscriptions {
		m.mu.Unlock()
		return types.SubscriptionInfo{}, apperr.SubLimit(m.cfg.MaxSubscriptions)
	}
	m.subs[sub.id] = sub
	m.firehose[sub.id] = sub
	m.mu.Unlock()

	if err := m.source.SubscribeFirehose(ctx); err != nil {
		m.rollback(ctx, sub)
		return types.SubscriptionInfo{}, asUpstreamErr(err)
	}

	m.metrics.ActiveSubscriptions.Inc()
	m.logger.Info().Str("subscription_id", sub.id).Msg("firehose subscription created")
	return sub.info(), nil
}

func (m *Manager) subscribeUpstream(ctx context.Context, symbol string, adjust types.AdjustMode) error {
	if adjust != types.AdjustNone {
		if as, ok := m.source.(AdjustedQuoteSource); ok {
			return as.SubscribeAdjusted(ctx, symbol, adjust)
		}
		m.logger.Warn().
			Str("symbol", symbol).
			Str("adjust", string(adjust)).
			Msg("source does not support adjusted quotes, subscribing unadjusted")
	}
	return m.source.Subscribe(ctx, symbol)
}

// rollback undoes a partially installed subscription after an upstream
// failure. Upstream unsubscribes are best-effort.
func (m *Manager) rollback(ctx context.Context, sub *subscription) {
	orphans, _ := m.detach(sub)
	for _, sym := range orphans {
		if err := m.source.Unsubscribe(ctx, sym); err != nil {
			m.logger.Warn().Err(err).Str("symbol", sym).Msg("rollback unsubscribe failed")
		}
	}
}

// detach flips the subscription closed and removes it from all indexes,
// returning the upstream symbols no longer referenced by anyone. The bool
// reports whether this call did the removal; a second call is a no-op.
func (m *Manager) detach(sub *subscription) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subs[sub.id]; !ok {
		return nil, false
	}
	sub.closed.Store(true)
	delete(m.subs, sub.id)
	delete(m.firehose, sub.id)

	var orphans []string
	for _, sym := range sub.symbols {
		set := m.bySymbol[sym]
		delete(set, sub.id)
		if len(set) == 0 {
			delete(m.bySymbol, sym)
			orphans = append(orphans, sym)
		}
	}
	if sub.kind == types.KindFirehose {
		orphans = append(orphans, firehoseSymbol)
	}
	return orphans, true
}

// Unsubscribe tears the subscription down. Idempotent: unknown ids are not
// an error. After it returns no further frame will be enqueued for the id.
func (m *Manager) Unsubscribe(ctx context.Context, id string) error {
	m.mu.RLock()
	sub, ok := m.subs[id]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	orphans, detached := m.detach(sub)
	if !detached {
		// Lost the race to a concurrent unsubscribe.
		return nil
	}

	var errs []error
	for _, sym := range orphans {
		if err := m.source.Unsubscribe(ctx, sym); err != nil {
			m.logger.Warn().Err(err).Str("symbol", sym).Msg("upstream unsubscribe failed")
			errs = append(errs, err)
		}
	}

	m.metrics.ActiveSubscriptions.Dec()
	m.logger.Info().Str("subscription_id", id).Msg("subscription removed")
	if len(errs) > 0 {
		return asUpstreamErr(errors.Join(errs...))
	}
	return nil
}

// Describe returns a point-in-time snapshot of one subscription.
func (m *Manager) Describe(id string) (types.SubscriptionInfo, error) {
	m.mu.RLock()
	sub, ok := m.subs[id]
	m.mu.RUnlock()
	if !ok {
		return types.SubscriptionInfo{}, apperr.NotFound("subscription", id)
	}
	return sub.info(), nil
}

// List snapshots every live subscription, oldest first.
func (m *Manager) List() []types.SubscriptionInfo {
	m.mu.RLock()
	infos := make([]types.SubscriptionInfo, 0, len(m.subs))
	for _, sub := range m.subs {
		infos = append(infos, sub.info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.Before(infos[j].CreatedAt)
		}
		return infos[i].SubscriptionID < infos[j].SubscriptionID
	})
	return infos
}

// Touch refreshes the idle clock for id, typically on a client heartbeat.
// Unknown ids are ignored.
func (m *Manager) Touch(id string) {
	m.mu.RLock()
	sub, ok := m.subs[id]
	m.mu.RUnlock()
	if ok {
		sub.touch()
	}
}

// OnFrame routes one inbound frame to every interested queue. It runs on
// the adapter's feed goroutine and must never block; mu is held read-side
// only for the non-blocking enqueues, which keeps Unsubscribe strict: once
// it returns, the id is out of the index and can never be enqueued again.
func (m *Manager) OnFrame(frame types.TickFrame) {
	m.metrics.FramesReceived.Inc()

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.bySymbol[frame.StockCode] {
		m.enqueue(sub, frame)
	}
	for _, sub := range m.firehose {
		m.enqueue(sub, frame)
	}
}

func (m *Manager) enqueue(sub *subscription, frame types.TickFrame) {
	if sub.queue.push(frame) {
		m.metrics.FramesDropped.Inc()
		m.logger.Warn().
			Str("subscription_id", sub.id).
			Str("symbol", frame.StockCode).
			Uint64("dropped_total", sub.queue.dropCount()).
			Msg("subscriber queue full, dropped oldest frame")
		return
	}
	m.metrics.FramesDispatched.Inc()
}

// Run drives the idle sweeper until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	interval := m.cfg.HeartbeatTimeout / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepIdle(ctx)
		}
	}
}

// sweepIdle removes subscriptions with no activity within the heartbeat
// timeout. Activity is any frame yielded to the consumer or any client ping.
func (m *Manager) sweepIdle(ctx context.Context) {
	cutoff := time.Now().Add(-m.cfg.HeartbeatTimeout).UnixNano()

	m.mu.RLock()
	var expired []string
	for id, sub := range m.subs {
		if sub.lastActivity.Load() < cutoff {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		m.logger.Info().Str("subscription_id", id).Msg("subscription idle past heartbeat timeout, removing")
		if err := m.Unsubscribe(ctx, id); err != nil {
			m.logger.Warn().Err(err).Str("subscription_id", id).Msg("idle sweep unsubscribe failed")
		}
	}
}

// Shutdown tears down every live subscription, including upstream state.
func (m *Manager) Shutdown(ctx context.Context) {
	for _, info := range m.List() {
		if err := m.Unsubscribe(ctx, info.SubscriptionID); err != nil {
			m.logger.Warn().Err(err).Str("subscription_id", info.SubscriptionID).Msg("shutdown unsubscribe failed")
		}
	}
}

// asUpstreamErr passes taxonomy errors through and wraps everything else
// as an upstream failure.
func asUpstreamErr(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Upstream(err)
}
