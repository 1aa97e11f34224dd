package aggregates

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/yungbote/wellchat-backend/internal/domain/assessment"
	"github.com/yungbote/wellchat-backend/internal/observability"
	"github.com/yungbote/wellchat-backend/internal/platform/dbctx"
	"github.com/yungbote/wellchat-backend/internal/platform/logger"
)

// BaseDeps is shared by every assessment write path.
type BaseDeps struct {
	DB       *gorm.DB
	Log      *logger.Logger
	Runner   TxRunner
	Hooks    Hooks
	CASGuard CASGuard
}

func (d BaseDeps) withDefaults() BaseDeps {
	if d.Runner == nil {
		d.Runner = NewGormTxRunner(d.DB)
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	if d.CASGuard.db == nil {
		d.CASGuard = NewCASGuard(d.DB)
	}
	return d
}

// executeWrite runs fn in one transaction and reports the mapped outcome to
// the hooks, the trace and, for storage breakage, the log.
func executeWrite(ctx context.Context, deps BaseDeps, op string, fn func(dbc dbctx.Context) error) error {
	deps = deps.withDefaults()
	op = strings.TrimSpace(op)
	if op == "" {
		op = "PHQ9.Assessment.Write"
	}
	ctx, span := observability.StartSpan(ctx, "phq9.aggregate.write", attribute.String("aggregate.op", op))
	defer span.End()

	start := time.Now()
	err := MapError(op, deps.Runner.InTx(ctx, fn))
	status := writeStatus(err)
	span.SetAttributes(attribute.String("aggregate.status", status))

	if err != nil {
		span.RecordError(err)
		switch {
		case assessment.IsCode(err, assessment.CodeConcurrentModification):
			deps.Hooks.IncConflict(op)
		case IsRetryable(err):
			deps.Hooks.IncRetry(op)
		case assessment.IsCode(err, assessment.CodePersistenceFailure), assessment.IsCode(err, assessment.CodeInternal):
			span.SetStatus(codes.Error, status)
			if deps.Log != nil {
				deps.Log.Error("assessment write failed", "op", op, "status", status, "error", err)
			}
		}
	}
	deps.Hooks.ObserveOperation(op, status, time.Since(start))
	return err
}

// writeStatus is the metrics label for a mapped write error.
func writeStatus(err error) string {
	if err == nil {
		return "success"
	}
	if code := assessment.CodeOf(err); code != "" {
		return string(code)
	}
	return "failure"
}
