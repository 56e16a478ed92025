package library

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "library_circulation_transitions_total",
	Help: "Circulation transitions by operation and outcome.",
}, []string{"op", "outcome"})

func observeTransition(op string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrLockTimeout):
		outcome = "timeout"
	case errors.Is(err, ErrInvariant):
		outcome = "invariant"
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrInvalidState), errors.Is(err, ErrConflict),
		errors.Is(err, ErrForbidden):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	transitionsTotal.WithLabelValues(op, outcome).Inc()
}
