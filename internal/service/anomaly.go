package service

import (
	"context"
	"net"
	"time"

	"github.com/securekit/secure-session-service/internal/domain"
	"github.com/securekit/secure-session-service/internal/repository"
)

// AnomalyCheck scores one risk signal for a session access. Checks are
// additive; the scorer compares the sum against a threshold.
type AnomalyCheck interface {
	Name() string
	Score(ctx context.Context, s *domain.Session, access domain.SecurityContext) int
}

type AnomalyScorer struct {
	checks    []AnomalyCheck
	threshold int
}

func NewAnomalyScorer(threshold int, checks ...AnomalyCheck) *AnomalyScorer {
	if threshold <= 0 {
		threshold = 3
	}
	return &AnomalyScorer{checks: checks, threshold: threshold}
}

// Score returns the total score, the names of the checks that fired, and
// whether the total meets the termination threshold.
func (s *AnomalyScorer) Score(ctx context.Context, sess *domain.Session, access domain.SecurityContext) (int, []string, bool) {
	total := 0
	var fired []string
	for _, check := range s.checks {
		if v := check.Score(ctx, sess, access); v > 0 {
			total += v
			fired = append(fired, check.Name())
		}
	}
	return total, fired, total >= s.threshold
}

// LocationChangeCheck treats a different network from the one the session was
// created on as a coarse location delta. IPv4 compares /24, IPv6 /48.
type LocationChangeCheck struct {
	Weight int
}

func (c LocationChangeCheck) Name() string { return "location_change" }

func (c LocationChangeCheck) Score(_ context.Context, s *domain.Session, access domain.SecurityContext) int {
	if s.IP == "" || access.IP == "" {
		return 0
	}
	if networkPrefix(s.IP) != networkPrefix(access.IP) {
		return c.Weight
	}
	return 0
}

// UnusualHourCheck flags accesses far outside the hour band the session has
// been active in.
type UnusualHourCheck struct {
	Weight int
	Now    func() time.Time
}

func (c UnusualHourCheck) Name() string { return "unusual_hour" }

func (c UnusualHourCheck) Score(_ context.Context, s *domain.Session, _ domain.SecurityContext) int {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	reference := s.LastActivityAt
	if reference.IsZero() {
		reference = s.CreatedAt
	}
	if reference.IsZero() {
		return 0
	}
	if hourDistance(now().Hour(), reference.Hour()) > 6 {
		return c.Weight
	}
	return 0
}

// ConcurrentOriginCheck fires when the same user holds another live session
// from a different origin IP.
type ConcurrentOriginCheck struct {
	Weight   int
	Sessions repository.SessionRepository
}

func (c ConcurrentOriginCheck) Name() string { return "concurrent_origin" }

func (c ConcurrentOriginCheck) Score(ctx context.Context, s *domain.Session, _ domain.SecurityContext) int {
	if c.Sessions == nil {
		return 0
	}
	others, err := c.Sessions.ListActiveByUserID(ctx, s.UserID)
	if err != nil {
		// scoring is advisory; a store error must not fail validation
		return 0
	}
	for _, other := range others {
		if other.ID != s.ID && other.IP != "" && other.IP != s.IP {
			return c.Weight
		}
	}
	return 0
}

func networkPrefix(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ip
	}
	if v4 := parsed.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return parsed.Mask(net.CIDRMask(48, 128)).String()
}

func hourDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	if d > 12 {
		d = 24 - d
	}
	return d
}
