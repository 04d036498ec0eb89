package observability

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/geocoder89/hotchoc/internal/domain/rating"
	"github.com/geocoder89/hotchoc/internal/domain/user"
	"github.com/jackc/pgx/v5/pgconn"
)

// ObserveStore times one logical store operation. Expected outcomes such as a
// missing record or a taken email are recorded as "ok" latency but still
// counted by class.
func (p *Prom) ObserveStore(op string, fn func() error) error {
	start := time.Now()
	err := fn()

	status := "ok"

	if err != nil {
		class := ClassifyStoreErr(err)
		p.StoreErrorsTotal.WithLabelValues(op, class).Inc()

		if class != "not_found" && class != "unique_violation" {
			status = "error"
		}
	}
	p.StoreOpDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	return err
}

func ClassifyStoreErr(err error) string {
	switch {
	case errors.Is(err, user.ErrEmailTaken):
		return "unique_violation"
	case errors.Is(err, user.ErrNotFound), errors.Is(err, rating.ErrNotFound):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return "unique_violation"
		case "40001":
			return "serialization_failure"
		case "40P01":
			return "deadlock"
		case "57014":
			return "query_canceled"
		default:
			return "pg_" + pgErr.Code
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "connection"):
		return "connection"
	case strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy"):
		return "busy"
	default:
		return "unknown"
	}
}
