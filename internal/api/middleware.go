package api

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"quantgate/internal/apperr"
)

// requestLogger writes one structured line per request and feeds the
// request histogram. The taxonomy code comes from fail() when a handler
// set one, otherwise it is derived from the status class.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		op := c.FullPath()
		if op == "" {
			op = "unmatched"
		}
		status := c.Writer.Status()
		code := c.GetString(codeKey)
		if code == "" {
			if status < 400 {
				code = apperr.CodeOK.String()
			} else {
				code = apperr.CodeInternal.String()
			}
		}
		s.metrics.ObserveRequest("http", op, code, elapsed.Seconds())

		evt := s.logger.Info()
		if status >= 500 {
			evt = s.logger.Error()
		} else if status >= 400 {
			evt = s.logger.Warn()
		}
		evt.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Str("code", code).
			Dur("elapsed", elapsed).
			Str("client", c.ClientIP()).
			Msg("request")
	}
}

// auth enforces the configured bearer token list. An empty list disables
// authentication entirely. Browser WebSocket clients cannot set headers,
// so a ?token= query parameter stands in for the Authorization header.
func (s *Server) auth() gin.HandlerFunc {
	tokens := s.cfg.Security.Tokens
	header := s.cfg.Security.Header
	if header == "" {
		header = "Authorization"
	}
	if len(tokens) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		raw := c.GetHeader(header)
		if raw == "" {
			if q := c.Query("token"); q != "" {
				raw = "Bearer " + q
			}
		}
		if raw == "" {
			abort(c, apperr.AuthMissing())
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
		for _, want := range tokens {
			if subtle.ConstantTimeCompare([]byte(token), []byte(want)) == 1 {
				c.Next()
				return
			}
		}
		abort(c, apperr.AuthInvalid())
	}
}
