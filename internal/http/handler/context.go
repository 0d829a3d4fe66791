package handler

import (
	"net"
	"net/http"
	"strconv"

	"github.com/securekit/secure-session-service/internal/domain"
	"github.com/securekit/secure-session-service/internal/http/middleware"
)

// requestContext builds the SecurityContext for an unauthenticated request
// from what the transport can attest: remote address and user agent.
func requestContext(r *http.Request) domain.SecurityContext {
	return domain.SecurityContext{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// clientIP strips the ephemeral port from RemoteAddr so the stored session IP
// is stable across connections. RealIP may have already rewritten RemoteAddr
// to a bare address, in which case the split fails and the value passes
// through.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// callerContext enriches the request context with the authenticated identity
// carried by the access token claims.
func callerContext(r *http.Request) domain.SecurityContext {
	sc := requestContext(r)
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return sc
	}
	if id, err := strconv.ParseUint(claims.Subject, 10, 64); err == nil {
		sc.UserID = uint(id)
	}
	sc.Permissions = claims.Permissions
	return sc
}
