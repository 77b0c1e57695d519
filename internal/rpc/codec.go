// Package rpc is the gRPC surface of the gateway. It exposes the same data
// and trading operations as the HTTP API over two services,
// quantgate.v1.DataService and quantgate.v1.TradingService, plus the standard
// grpc.health.v1.Health service.
//
// Messages travel as JSON rather than protobuf: the service descriptors are
// written by hand against a registered "json" codec, so payloads are
// byte-compatible with the HTTP surface and no generated stubs are required.
// Clients opt in per call with grpc.CallContentSubtype(rpc.CodecName).
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the content-subtype both services speak. The default proto
// codec stays registered so stock health-check clients keep working.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
