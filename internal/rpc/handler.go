package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"quantgate/internal/apperr"
)

// unary builds a grpc.MethodDesc the way generated stubs do: decode the wire
// bytes into the typed request, then run the interceptor chain around the
// method call.
func unary[Req any](service, method string, call func(ctx context.Context, srv any, req *Req) (any, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(ctx, srv, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(ctx, srv, req.(*Req))
			})
		},
	}
}

// fromWire converts an integer-coded enum field, mapping unknown values to an
// invalid-argument status.
func fromWire[T any](v int32, conv func(int32) (T, error)) (T, error) {
	out, err := conv(v)
	if err != nil {
		var zero T
		return zero, rpcError(apperr.InvalidArgument("%v", err))
	}
	return out, nil
}

// rpcError maps the gateway's error taxonomy onto gRPC status codes. The
// taxonomy name leads the status message so clients see the same vocabulary
// on both surfaces.
func rpcError(err error) error {
	if err == nil {
		return nil
	}
	code := apperr.CodeOf(err)
	return status.Error(grpcCode(code), fmt.Sprintf("%s: %s", code, apperr.MessageOf(err)))
}

func grpcCode(code apperr.Code) codes.Code {
	switch code {
	case apperr.CodeOK:
		return codes.OK
	case apperr.CodeAuthMissing, apperr.CodeAuthInvalid:
		return codes.Unauthenticated
	case apperr.CodeInvalidArgument, apperr.CodeEmptySymbols:
		return codes.InvalidArgument
	case apperr.CodeFailedPrecondition, apperr.CodeFirehoseDisabled, apperr.CodeNotSupportedInSim:
		return codes.FailedPrecondition
	case apperr.CodeNotFound:
		return codes.NotFound
	case apperr.CodeSubLimit:
		return codes.ResourceExhausted
	case apperr.CodeUpstreamFailure:
		return codes.Unavailable
	default:
		// POLICY_BLOCKED never reaches a client, it falls through here
		// together with INTERNAL.
		return codes.Internal
	}
}
