package orchestrator

import (
	"context"
	"time"

	"github.com/jonathan/partner-intake/internal/logging"
	"go.uber.org/zap"
)

// DefaultPollInterval is used when no interval is configured.
const DefaultPollInterval = 30 * time.Second

// Poller is the polling strategy: it re-inspects every configured run on a fixed interval without
// relying on file-system events.
type Poller struct {
	loop     *Loop
	interval time.Duration
	logger   *zap.Logger
}

// NewPoller creates a Poller.
func NewPoller(loop *Loop, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{loop: loop, interval: interval, logger: logging.OrNop(logger)}
}

// Run drives every run immediately and then once per interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("polling for partner uploads",
		zap.Duration("interval", p.interval),
		zap.Int("runs", len(p.loop.Targets())))
	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return nil
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if err := p.loop.Tick(ctx); err != nil && ctx.Err() == nil {
		p.logger.Warn("poll tick finished with errors", zap.Error(err))
	}
}
