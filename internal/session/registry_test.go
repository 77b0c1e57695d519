package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"quantgate/internal/apperr"
	"quantgate/internal/upstream"
	"quantgate/pkg/types"
)

// stubAdapter fakes the two adapter calls the registry makes. Everything
// else panics via the embedded nil interface, which is fine: the registry
// must not touch it.
type stubAdapter struct {
	upstream.Adapter
	connectErr  error
	disconnects atomic.Int32
}

func (a *stubAdapter) Connect(ctx context.Context, accountID, password string, accountType types.AccountType) (types.AccountInfo, error) {
	if a.connectErr != nil {
		return types.AccountInfo{}, a.connectErr
	}
	return types.AccountInfo{
		AccountID:   accountID,
		AccountType: accountType,
		Status:      "connected",
		ConnectedAt: time.Now().UTC(),
	}, nil
}

func (a *stubAdapter) Disconnect(ctx context.Context, accountID string) error {
	a.disconnects.Add(1)
	return nil
}

func TestConnectCreatesSession(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(&stubAdapter{}, zerolog.Nop())
	ctx := context.Background()

	view, err := reg.Connect(ctx, "acct-1", "pw", types.AccountSecurity)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if view.SessionID == "" {
		t.Fatal("empty session id")
	}
	if view.AccountID != "acct-1" || view.Account.Status != "connected" {
		t.Fatalf("view = %+v", view)
	}

	got, err := reg.Lookup(view.SessionID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.AccountID != "acct-1" {
		t.Fatalf("Lookup account = %q", got.AccountID)
	}
	if reg.Count() != 1 {
		t.Fatalf("Count = %d, want 1", reg.Count())
	}
}

func TestLookupUnknownSession(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(&stubAdapter{}, zerolog.Nop())
	_, err := reg.Lookup("nope")
	if !apperr.IsCode(err, apperr.CodeFailedPrecondition) {
		t.Fatalf("Lookup err = %v, want FAILED_PRECONDITION", err)
	}
}

func TestConnectAuthFailurePassesThrough(t *testing.T) {
	t.Parallel()

	adapter := &stubAdapter{connectErr: apperr.New(apperr.CodeUpstreamFailure, "account authentication failed")}
	reg := NewRegistry(adapter, zerolog.Nop())

	_, err := reg.Connect(context.Background(), "acct", "bad", types.AccountSecurity)
	if !apperr.IsCode(err, apperr.CodeUpstreamFailure) {
		t.Fatalf("Connect err = %v, want UPSTREAM_FAILURE", err)
	}
	if got := apperr.MessageOf(err); got != "account authentication failed" {
		t.Fatalf("Connect message = %q", got)
	}
}

func TestConnectWrapsPlainErrors(t *testing.T) {
	t.Parallel()

	adapter := &stubAdapter{connectErr: errors.New("dial tcp: connection refused")}
	reg := NewRegistry(adapter, zerolog.Nop())

	_, err := reg.Connect(context.Background(), "acct", "pw", types.AccountSecurity)
	if !apperr.IsCode(err, apperr.CodeUpstreamFailure) {
		t.Fatalf("Connect err = %v, want UPSTREAM_FAILURE", err)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	t.Parallel()

	adapter := &stubAdapter{}
	reg := NewRegistry(adapter, zerolog.Nop())
	ctx := context.Background()

	view, err := reg.Connect(ctx, "acct-1", "pw", types.AccountSecurity)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := reg.Disconnect(ctx, view.SessionID); err != nil {
		t.Fatalf("first Disconnect: %v", err)
	}
	if err := reg.Disconnect(ctx, view.SessionID); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}
	if got := adapter.disconnects.Load(); got != 1 {
		t.Fatalf("adapter disconnect calls = %d, want 1", got)
	}
	if _, err := reg.Lookup(view.SessionID); err == nil {
		t.Fatal("Lookup succeeded after disconnect")
	}
}

func TestSimulatedOrderLifecycle(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(&stubAdapter{}, zerolog.Nop())
	ctx := context.Background()

	view, err := reg.Connect(ctx, "acct-1", "pw", types.AccountSecurity)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	rec := types.OrderRecord{
		OrderID:     "ord-1",
		StockCode:   "600519.SH",
		Side:        types.SideBuy,
		Type:        types.OrderTypeLimit,
		Volume:      100,
		Price:       1700,
		Status:      types.StatusSubmitted,
		SubmittedAt: time.Now().UTC(),
	}
	if err := reg.RecordSimulated(view.SessionID, rec); err != nil {
		t.Fatalf("RecordSimulated: %v", err)
	}

	orders, err := reg.SimulatedOrders(view.SessionID)
	if err != nil {
		t.Fatalf("SimulatedOrders: %v", err)
	}
	if len(orders) != 1 || !orders[0].Simulated {
		t.Fatalf("orders = %+v, want one simulated", orders)
	}

	res, err := reg.CancelSimulated(view.SessionID, "ord-1")
	if err != nil {
		t.Fatalf("CancelSimulated: %v", err)
	}
	if !res.Cancelled || !res.Simulated {
		t.Fatalf("cancel = %+v", res)
	}

	// Terminal now, so a second cancel acknowledges without acting.
	res, err = reg.CancelSimulated(view.SessionID, "ord-1")
	if err != nil {
		t.Fatalf("CancelSimulated again: %v", err)
	}
	if res.Cancelled {
		t.Fatalf("second cancel = %+v, want Cancelled false", res)
	}

	if _, err := reg.CancelSimulated(view.SessionID, "missing"); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("unknown order err = %v, want NOT_FOUND", err)
	}

	orders, err = reg.SimulatedOrders(view.SessionID)
	if err != nil {
		t.Fatalf("SimulatedOrders: %v", err)
	}
	if orders[0].Status != types.StatusCancelled {
		t.Fatalf("order status = %v, want CANCELLED", orders[0].Status)
	}
}

func TestShutdownDisconnectsEverything(t *testing.T) {
	t.Parallel()

	adapter := &stubAdapter{}
	reg := NewRegistry(adapter, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := reg.Connect(ctx, "acct", "pw", types.AccountSecurity); err != nil {
			t.Fatalf("Connect: %v", err)
		}
	}
	reg.Shutdown(ctx)

	if reg.Count() != 0 {
		t.Fatalf("Count after shutdown = %d", reg.Count())
	}
	if got := adapter.disconnects.Load(); got != 3 {
		t.Fatalf("adapter disconnects = %d, want 3", got)
	}
}
