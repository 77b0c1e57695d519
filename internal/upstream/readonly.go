package upstream

import (
	"context"

	"quantgate/internal/apperr"
	"quantgate/pkg/types"
)

// ReadLive is the dev-mode adapter. Reads delegate to Live; order mutations
// are refused here even though the policy gate normally intercepts them
// first, so a gate bypass still cannot reach the broker.
type ReadLive struct {
	*Live
}

func NewReadLive(live *Live) *ReadLive {
	return &ReadLive{Live: live}
}

func (r *ReadLive) PlaceOrder(ctx context.Context, accountID string, req types.OrderRequest) (types.OrderRecord, error) {
	return types.OrderRecord{}, apperr.PolicyBlocked("place_order")
}

func (r *ReadLive) CancelOrder(ctx context.Context, accountID, orderID string) (types.CancelResult, error) {
	return types.CancelResult{}, apperr.PolicyBlocked("cancel_order")
}
