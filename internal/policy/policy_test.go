package policy

import (
	"testing"

	"quantgate/internal/config"
	"quantgate/pkg/types"
)

func TestAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		op    Operation
		mode  types.Mode
		allow bool
		want  bool
	}{
		{name: "place order in mock", op: OpPlaceOrder, mode: types.ModeMock, allow: true, want: false},
		{name: "place order in dev", op: OpPlaceOrder, mode: types.ModeDev, allow: true, want: false},
		{name: "place order in prod without flag", op: OpPlaceOrder, mode: types.ModeProd, allow: false, want: false},
		{name: "place order in prod with flag", op: OpPlaceOrder, mode: types.ModeProd, allow: true, want: true},
		{name: "cancel order in dev", op: OpCancelOrder, mode: types.ModeDev, allow: true, want: false},
		{name: "cancel order in prod with flag", op: OpCancelOrder, mode: types.ModeProd, allow: true, want: true},
		{name: "connect always passes", op: OpConnect, mode: types.ModeMock, allow: false, want: true},
		{name: "disconnect always passes", op: OpDisconnect, mode: types.ModeDev, allow: false, want: true},
		{name: "query always passes", op: OpQuery, mode: types.ModeProd, allow: false, want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.TradingConfig{AllowRealTrading: tt.allow}
			if got := Allowed(tt.op, tt.mode, cfg); got != tt.want {
				t.Fatalf("Allowed(%s, %s, allow=%v) = %v, want %v", tt.op, tt.mode, tt.allow, got, tt.want)
			}
		})
	}
}

func TestMutating(t *testing.T) {
	t.Parallel()

	if !Mutating(OpPlaceOrder) || !Mutating(OpCancelOrder) {
		t.Fatal("order mutations not classified as mutating")
	}
	if Mutating(OpConnect) || Mutating(OpDisconnect) || Mutating(OpQuery) {
		t.Fatal("non-mutating operation classified as mutating")
	}
}
