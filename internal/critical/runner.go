package critical

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/securekit/secure-session-service/internal/domain"
	"github.com/securekit/secure-session-service/internal/observability"

	"gorm.io/gorm"
)

var (
	ErrInvalidOperation = errors.New("invalid critical operation")
	ErrPermissionDenied = errors.New("permission denied")
	ErrResultValidation = errors.New("critical operation result validation failed")
)

// Operation names a unit of work and its precondition. One Runner wraps every
// critical mutation in the service; there is deliberately no per-caller
// variant of this wrapper.
type Operation struct {
	Name               string
	RequiredPermission string
	// ValidateResult, when set, runs after fn and before commit; failing it
	// rolls the transaction back.
	ValidateResult func(any) error
}

type Runner struct {
	db      *gorm.DB
	logger  *slog.Logger
	auditor *observability.AuditLogger
	now     func() time.Time
}

func NewRunner(db *gorm.DB, logger *slog.Logger, auditor *observability.AuditLogger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{db: db, logger: logger, auditor: auditor, now: time.Now}
}

// Execute validates preconditions, runs fn inside a transaction, validates
// the result, commits, and audits. Any failure rolls the transaction back
// before the error is returned; no partial state survives.
func (r *Runner) Execute(ctx context.Context, op Operation, sc domain.SecurityContext, fn func(tx *gorm.DB) (any, error)) (any, error) {
	if op.Name == "" {
		return nil, fmt.Errorf("%w: missing operation name", ErrInvalidOperation)
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: missing operation body", ErrInvalidOperation)
	}
	if op.RequiredPermission != "" && !sc.HasPermission(op.RequiredPermission) {
		r.auditor.Critical(ctx, "critical_operation_denied", sc, map[string]string{
			"operation":  op.Name,
			"permission": op.RequiredPermission,
		})
		return nil, ErrPermissionDenied
	}

	start := r.now()
	var result any
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var innerErr error
		result, innerErr = fn(tx)
		if innerErr != nil {
			return innerErr
		}
		if op.ValidateResult != nil {
			if vErr := op.ValidateResult(result); vErr != nil {
				return fmt.Errorf("%w: %v", ErrResultValidation, vErr)
			}
		}
		return nil
	})
	elapsed := r.now().Sub(start)

	if err != nil {
		snap := captureSnapshot()
		observability.RecordCriticalOperation(ctx, op.Name, "failure", float64(elapsed.Milliseconds()))
		r.logger.ErrorContext(ctx, "critical operation failed",
			"operation", op.Name,
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
			"goroutines", snap.Goroutines,
			"heap_in_use_bytes", snap.HeapInUse,
			"total_allocs", snap.Mallocs,
		)
		r.auditor.Warning(ctx, "critical_operation", sc, map[string]string{
			"operation": op.Name,
			"outcome":   "failure",
		})
		return nil, err
	}

	observability.RecordCriticalOperation(ctx, op.Name, "success", float64(elapsed.Milliseconds()))
	r.logger.InfoContext(ctx, "critical operation completed",
		"operation", op.Name,
		"duration_ms", elapsed.Milliseconds(),
	)
	r.auditor.Event(ctx, "critical_operation", sc, map[string]string{
		"operation": op.Name,
		"outcome":   "success",
	})
	return result, nil
}

type snapshot struct {
	Goroutines int
	HeapInUse  uint64
	Mallocs    uint64
}

func captureSnapshot() snapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return snapshot{
		Goroutines: runtime.NumGoroutine(),
		HeapInUse:  ms.HeapInuse,
		Mallocs:    ms.Mallocs,
	}
}
