package keeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"rangeKeeper/internal/automation"
)

// RunConfig holds runtime settings for the keeper loop.
type RunConfig struct {
	RequestsPath string
	PollInterval time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	Once         bool
}

// Runner polls trigger conditions for a set of signed requests and
// executes them through the automation engine.
type Runner struct {
	cfg     RunConfig
	engine  *automation.Engine
	logger  *zap.Logger
	pending []*SignedRequest
}

func NewRunner(cfg RunConfig, engine *automation.Engine, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, engine: engine, logger: logger}
}

// Run loads the requests file and polls until every request has executed
// or the context is cancelled. With Once set it performs a single sweep.
func (r *Runner) Run(ctx context.Context) error {
	if r.engine == nil {
		return fmt.Errorf("engine is nil")
	}
	if r.cfg.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be greater than zero")
	}

	requests, err := LoadRequests(r.cfg.RequestsPath)
	if err != nil {
		return err
	}
	r.pending = requests
	r.logger.Info("loaded requests", zap.Int("count", len(r.pending)))

	if err := r.sweep(ctx); err != nil {
		return err
	}
	if r.cfg.Once || len(r.pending) == 0 {
		return nil
	}

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.sweep(ctx); err != nil {
				return err
			}
			if len(r.pending) == 0 {
				r.logger.Info("all requests executed")
				return nil
			}
		}
	}
}

// sweep evaluates every pending request once, dropping the ones that
// executed or can never execute.
func (r *Runner) sweep(ctx context.Context) error {
	remaining := r.pending[:0]
	for _, req := range r.pending {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		done, err := r.evaluate(ctx, req)
		if err != nil {
			r.logger.Warn("request evaluation failed",
				zap.String("kind", req.Kind),
				zap.Uint64("position_id", req.PositionID()),
				zap.Error(err))
		}
		if !done {
			remaining = append(remaining, req)
		}
	}
	r.pending = remaining
	return nil
}

// evaluate reports whether the request is finished, either because it
// executed or because it can never succeed.
func (r *Runner) evaluate(ctx context.Context, req *SignedRequest) (bool, error) {
	triggered, err := r.needs(ctx, req)
	if err != nil {
		return false, err
	}
	if !triggered {
		return false, nil
	}

	err = withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		return r.execute(ctx, req)
	})
	if err == nil {
		r.logger.Info("request executed",
			zap.String("kind", req.Kind),
			zap.Uint64("position_id", req.PositionID()))
		return true, nil
	}
	if errors.Is(err, automation.ErrDigestUsed) || errors.Is(err, automation.ErrNotOwner) {
		return true, err
	}
	return false, err
}

func (r *Runner) needs(ctx context.Context, req *SignedRequest) (bool, error) {
	switch req.Kind {
	case KindClaim:
		return r.engine.NeedsClaimFees(ctx, *req.claim)
	case KindClose:
		return r.engine.NeedsClose(ctx, *req.close)
	default:
		return r.engine.NeedsRebalance(ctx, *req.rebalance)
	}
}

func (r *Runner) execute(ctx context.Context, req *SignedRequest) error {
	var err error
	switch req.Kind {
	case KindClaim:
		_, err = r.engine.ExecuteClaim(ctx, *req.claim, req.sig)
	case KindClose:
		_, err = r.engine.ExecuteClose(ctx, *req.close, req.sig)
	default:
		_, err = r.engine.ExecuteRebalance(ctx, *req.rebalance, req.sig)
	}
	return err
}
