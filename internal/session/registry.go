// Package session owns trading sessions: the opaque ids handed out by
// connect, the adapter account behind each one, and the simulated orders
// recorded against it by the policy gate's callers.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"quantgate/internal/apperr"
	"quantgate/internal/upstream"
	"quantgate/pkg/types"
)

// View is a read-only snapshot of one session.
type View struct {
	SessionID   string
	AccountID   string
	AccountType types.AccountType
	ConnectedAt time.Time
	Account     types.AccountInfo
}

type session struct {
	id          string
	accountID   string
	accountType types.AccountType
	connectedAt time.Time
	account     types.AccountInfo

	simOrders []*types.OrderRecord
	byOrderID map[string]*types.OrderRecord
}

func (s *session) view() View {
	return View{
		SessionID:   s.id,
		AccountID:   s.accountID,
		AccountType: s.accountType,
		ConnectedAt: s.connectedAt,
		Account:     s.account,
	}
}

// Registry maps session ids to connected accounts. Ids are uuids, never
// reused, and live in memory only; a restart disconnects everyone.
type Registry struct {
	adapter upstream.Adapter
	logger  zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewRegistry(adapter upstream.Adapter, logger zerolog.Logger) *Registry {
	return &Registry{
		adapter:  adapter,
		logger:   logger.With().Str("component", "session").Logger(),
		sessions: make(map[string]*session),
	}
}

// Connect authenticates against the adapter and opens a session. Adapter
// failures pass through with their message intact.
func (r *Registry) Connect(ctx context.Context, accountID, password string, accountType types.AccountType) (View, error) {
	info, err := r.adapter.Connect(ctx, accountID, password, accountType)
	if err != nil {
		return View{}, asUpstream(err)
	}

	s := &session{
		id:          uuid.NewString(),
		accountID:   accountID,
		accountType: accountType,
		connectedAt: time.Now().UTC(),
		account:     info,
		byOrderID:   make(map[string]*types.OrderRecord),
	}
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()

	r.logger.Info().Str("session_id", s.id).Str("account_id", accountID).Msg("session connected")
	return s.view(), nil
}

// Disconnect removes the session and releases the adapter account. Unknown
// ids succeed, so a retry after a half-failed disconnect converges.
func (r *Registry) Disconnect(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}

	r.logger.Info().Str("session_id", sessionID).Str("account_id", s.accountID).Msg("session disconnected")
	if err := r.adapter.Disconnect(ctx, s.accountID); err != nil {
		return asUpstream(err)
	}
	return nil
}

// Lookup resolves a session id. Unknown ids fail with the not-connected
// precondition error.
func (r *Registry) Lookup(sessionID string) (View, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return View{}, apperr.NotConnected(sessionID)
	}
	return s.view(), nil
}

// UpdateAccount refreshes the cached account snapshot after an explicit
// account query.
func (r *Registry) UpdateAccount(sessionID string, info types.AccountInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		s.account = info
	}
}

// RecordSimulated stores an order that never reached the broker, so order
// queries on this session stay coherent with the acks the client received.
func (r *Registry) RecordSimulated(sessionID string, rec types.OrderRecord) error {
	rec.Simulated = true
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return apperr.NotConnected(sessionID)
	}
	stored := rec
	s.simOrders = append(s.simOrders, &stored)
	s.byOrderID[rec.OrderID] = &stored
	return nil
}

// CancelSimulated cancels a recorded simulated order. Terminal orders
// acknowledge with Cancelled false; unknown ids are a miss.
func (r *Registry) CancelSimulated(sessionID, orderID string) (types.CancelResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return types.CancelResult{}, apperr.NotConnected(sessionID)
	}
	rec, ok := s.byOrderID[orderID]
	if !ok {
		return types.CancelResult{}, apperr.NotFound("order", orderID)
	}
	if rec.Status.Terminal() {
		return types.CancelResult{OrderID: orderID, Cancelled: false, Simulated: true}, nil
	}
	rec.Status = types.StatusCancelled
	return types.CancelResult{OrderID: orderID, Cancelled: true, Simulated: true}, nil
}

// SimulatedOrders lists the session's simulated orders, oldest first.
func (r *Registry) SimulatedOrders(sessionID string) ([]types.OrderRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, apperr.NotConnected(sessionID)
	}
	out := make([]types.OrderRecord, 0, len(s.simOrders))
	for _, rec := range s.simOrders {
		out = append(out, *rec)
	}
	return out, nil
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown disconnects every session. Adapter failures are logged, not
// returned; shutdown keeps going.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	sessions := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*session)
	r.mu.Unlock()

	for _, s := range sessions {
		if err := r.adapter.Disconnect(ctx, s.accountID); err != nil {
			r.logger.Warn().Err(err).Str("account_id", s.accountID).Msg("disconnect during shutdown failed")
		}
	}
}

func asUpstream(err error) error {
	if _, ok := apperr.AsError(err); ok {
		return err
	}
	return apperr.Upstream(err)
}
