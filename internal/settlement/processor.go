package settlement

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor drives the periodic repricing sweep.
type Processor struct {
	service  *Service
	interval time.Duration
}

// NewProcessor creates a processor sweeping at the given interval. A zero
// interval falls back to one minute.
func NewProcessor(service *Service, interval time.Duration) *Processor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Processor{
		service:  service,
		interval: interval,
	}
}

// Start begins the repricing loop and blocks until the context is canceled.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "settlement_processor").Logger()
	logger.Info().Dur("interval", p.interval).Msg("starting settlement processor")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down settlement processor")
			return
		case <-ticker.C:
			if err := p.service.RepriceAll(); err != nil {
				logger.Error().Err(err).Msg("failed to reprice markets")
			}
		}
	}
}
