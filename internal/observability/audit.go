package observability

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/securekit/secure-session-service/internal/domain"
)

// AuditSink appends an audit record to durable storage. Implemented by the
// audit repository; kept as an interface here so this package stays free of
// storage imports.
type AuditSink interface {
	Append(ctx context.Context, rec *domain.AuditRecord) error
}

// AuditLogger writes every security-relevant event to the structured log and
// to the durable trail. Sink failures are logged and swallowed: losing an
// audit row must never fail the request that produced it.
type AuditLogger struct {
	logger *slog.Logger
	sink   AuditSink
	now    func() time.Time
}

func NewAuditLogger(logger *slog.Logger, sink AuditSink) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{logger: logger, sink: sink, now: time.Now}
}

func (a *AuditLogger) Event(ctx context.Context, event string, sc domain.SecurityContext, detail map[string]string) {
	a.write(ctx, event, domain.SeverityInfo, sc, detail)
}

func (a *AuditLogger) Warning(ctx context.Context, event string, sc domain.SecurityContext, detail map[string]string) {
	a.write(ctx, event, domain.SeverityWarning, sc, detail)
}

func (a *AuditLogger) Critical(ctx context.Context, event string, sc domain.SecurityContext, detail map[string]string) {
	RecordAuditCritical(ctx, event)
	a.write(ctx, event, domain.SeverityCritical, sc, detail)
}

func (a *AuditLogger) write(ctx context.Context, event, severity string, sc domain.SecurityContext, detail map[string]string) {
	if a == nil {
		return
	}
	actor := MaskIdentifier(sc.Username)
	attrs := []any{
		"event", event,
		"severity", severity,
		"actor", actor,
		"ip", sc.IP,
	}
	for k, v := range detail {
		attrs = append(attrs, k, v)
	}
	switch severity {
	case domain.SeverityCritical:
		a.logger.ErrorContext(ctx, "audit", attrs...)
	case domain.SeverityWarning:
		a.logger.WarnContext(ctx, "audit", attrs...)
	default:
		a.logger.InfoContext(ctx, "audit", attrs...)
	}
	if a.sink == nil {
		return
	}
	rec := &domain.AuditRecord{
		Event:     event,
		Severity:  severity,
		Actor:     actor,
		IP:        sc.IP,
		Detail:    detail,
		CreatedAt: a.now(),
	}
	if err := a.sink.Append(ctx, rec); err != nil {
		a.logger.ErrorContext(ctx, "audit sink write failed", "event", event, "error", err)
	}
}

// MaskIdentifier keeps enough of an identifier to correlate incidents without
// exposing the full value in logs.
func MaskIdentifier(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if len(v) <= 2 {
		return "***"
	}
	if len(v) <= 6 {
		return v[:1] + "***"
	}
	return v[:3] + "***" + v[len(v)-2:]
}
