// Package storage persists finished batch runs. The matching core never
// calls it; the runner hands each run to the configured sinks.
package storage

import (
	"context"
	"errors"

	"github.com/north-cloud/huv-matcher/internal/domain"
)

// ResultSink stores a batch run.
type ResultSink interface {
	SaveRun(ctx context.Context, run *domain.BatchRun) error
}

// MultiSink fans a run out to every sink and joins their errors.
type MultiSink []ResultSink

// SaveRun implements ResultSink. Every sink is attempted.
func (m MultiSink) SaveRun(ctx context.Context, run *domain.BatchRun) error {
	var errs []error
	for _, s := range m {
		if err := s.SaveRun(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
