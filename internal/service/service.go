// Package service implements the gateway's operations once, shared by the
// HTTP and RPC surfaces. Services validate input, consult the policy gate,
// call the adapter or the subscription manager, and classify every failure
// with a taxonomy code before it reaches a surface.
package service

import (
	"strings"

	"quantgate/internal/apperr"
	"quantgate/pkg/types"
)

// cleanSymbols trims, drops blanks, and shape-checks what remains. An empty
// result is the empty-symbols error, never an empty upstream query.
func cleanSymbols(symbols []string) ([]string, error) {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !types.ValidSymbol(s) {
			return nil, apperr.InvalidArgument("invalid stock code %q", s)
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, apperr.EmptySymbols()
	}
	return out, nil
}

// checkRange validates a required YYYYMMDD date range.
func checkRange(startDate, endDate string) error {
	if !types.ValidDate(startDate) {
		return apperr.InvalidArgument("invalid start_date %q, want YYYYMMDD", startDate)
	}
	if !types.ValidDate(endDate) {
		return apperr.InvalidArgument("invalid end_date %q, want YYYYMMDD", endDate)
	}
	if startDate > endDate {
		return apperr.InvalidArgument("start_date %s is after end_date %s", startDate, endDate)
	}
	return nil
}

// checkOptionalRange validates dates that may be omitted.
func checkOptionalRange(startDate, endDate string) error {
	if startDate != "" && !types.ValidDate(startDate) {
		return apperr.InvalidArgument("invalid start_date %q, want YYYYMMDD", startDate)
	}
	if endDate != "" && !types.ValidDate(endDate) {
		return apperr.InvalidArgument("invalid end_date %q, want YYYYMMDD", endDate)
	}
	if startDate != "" && endDate != "" && startDate > endDate {
		return apperr.InvalidArgument("start_date %s is after end_date %s", startDate, endDate)
	}
	return nil
}

// classify passes typed errors through and wraps everything else as an
// upstream failure with the cause text intact.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.AsError(err); ok {
		return err
	}
	return apperr.Upstream(err)
}
