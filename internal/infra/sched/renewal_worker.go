package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ubid-billing/internal/usecase"
)

// RenewalWorker periodically applies due pending changes and cycle renewals
// via the use case.
type RenewalWorker struct {
	interval time.Duration
	renewal  *usecase.RenewalUseCase
	log      *zerolog.Logger
}

func NewRenewalWorker(interval time.Duration, renewal *usecase.RenewalUseCase, logger *zerolog.Logger) *RenewalWorker {
	l := logger.With().Str("component", "RenewalWorker").Logger()
	return &RenewalWorker{
		interval: interval,
		renewal:  renewal,
		log:      &l,
	}
}

func (w *RenewalWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting renewal worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping renewal worker")
			return ctx.Err()
		case now := <-ticker.C:
			applied, renewed, err := w.renewal.ApplyDue(ctx, now.UTC())
			if err != nil {
				w.log.Error().Err(err).Msg("renewal sweep error")
			}
			if applied > 0 || renewed > 0 {
				w.log.Info().Int("pending_applied", applied).Int("renewed", renewed).Msg("renewal sweep done")
			}
		}
	}
}
