// Package policy is the trading gate. The decision whether a trading call
// may reach the real broker is made here and nowhere else; callers that are
// refused synthesize a simulated response instead of failing.
package policy

import (
	"quantgate/internal/config"
	"quantgate/pkg/types"
)

// Operation names a gateway trading operation for gating and audit logs.
type Operation string

const (
	OpConnect     Operation = "connect"
	OpDisconnect  Operation = "disconnect"
	OpQuery       Operation = "query"
	OpPlaceOrder  Operation = "place_order"
	OpCancelOrder Operation = "cancel_order"
)

// Mutating reports whether op changes broker state.
func Mutating(op Operation) bool {
	switch op {
	case OpPlaceOrder, OpCancelOrder:
		return true
	default:
		return false
	}
}

// Allowed reports whether op may be dispatched to the real adapter.
// Mutating operations pass only in prod mode with allow_real_trading set;
// everything else always passes.
func Allowed(op Operation, mode types.Mode, cfg config.TradingConfig) bool {
	if !Mutating(op) {
		return true
	}
	return mode == types.ModeProd && cfg.AllowRealTrading
}
