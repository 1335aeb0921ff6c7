package automation

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"rangeKeeper/internal/lifecycle"
	"rangeKeeper/internal/oracle"
	"rangeKeeper/internal/pool"
	"rangeKeeper/internal/storage"
)

// DefaultGuardBps is the manipulation band: the pool's live price must sit
// within this many basis points of the trusted price before an autonomous
// rebalance may act.
const DefaultGuardBps uint32 = 1000

// Config parameterizes an Engine. Name and Version bind the typed-digest
// domain and must stay stable per deployment.
type Config struct {
	Name     string
	Version  string
	GuardBps uint32
}

// Engine wraps a lifecycle manager with trigger evaluation, signature
// validation, replay protection, and the price-manipulation guard.
type Engine struct {
	manager *lifecycle.Manager
	pricer  *Pricer
	state   storage.StateStore
	domain  common.Hash
	guard   uint32
	now     func() time.Time
	logger  *zap.Logger
}

// NewEngine builds an Engine.
func NewEngine(manager *lifecycle.Manager, source oracle.PriceSource, state storage.StateStore, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	guard := cfg.GuardBps
	if guard == 0 {
		guard = DefaultGuardBps
	}
	return &Engine{
		manager: manager,
		pricer:  NewPricer(source, manager.Backend()),
		state:   state,
		domain:  DomainSeparator(cfg.Name, cfg.Version),
		guard:   guard,
		now:     time.Now,
		logger:  logger,
	}
}

// SetClock overrides the time source.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Domain returns the deployment's typed-digest domain separator.
func (e *Engine) Domain() common.Hash { return e.domain }

// NeedsClaimFees reports whether a claim request's time or USD-amount
// condition holds. Both conditions disabled means it never fires.
func (e *Engine) NeedsClaimFees(ctx context.Context, req ClaimRequest) (bool, error) {
	if _, err := e.manager.Registry().Get(ctx, req.PositionID); err != nil {
		return false, err
	}

	if req.Interval > 0 {
		lastClaimed, _, err := e.state.LastClaimedAt(ctx, req.PositionID)
		if err != nil {
			return false, err
		}
		base := req.InitialTimestamp
		if lastClaimed > base {
			base = lastClaimed
		}
		if base+req.Interval <= uint64(e.now().Unix()) {
			return true, nil
		}
	}

	if req.MinAmountUSD != nil && req.MinAmountUSD.Sign() > 0 {
		position, err := e.manager.Registry().Get(ctx, req.PositionID)
		if err != nil {
			return false, err
		}
		fee0, fee1, err := e.manager.PreviewFees(ctx, req.PositionID)
		if err != nil {
			return false, err
		}
		price0, price1, err := e.pricer.PairPrices(ctx, position.Pool)
		if err != nil {
			return false, err
		}
		value := new(big.Int).Mul(fee0, price0)
		value.Add(value, new(big.Int).Mul(fee1, price1))
		value.Quo(value, oracle.BaseUnit)
		if value.Cmp(req.MinAmountUSD) >= 0 {
			return true, nil
		}
	}

	return false, nil
}

// NeedsClose reports whether the price crossed the close trigger in the
// configured direction.
func (e *Engine) NeedsClose(ctx context.Context, req CloseRequest) (bool, error) {
	position, err := e.manager.Registry().Get(ctx, req.PositionID)
	if err != nil {
		return false, err
	}
	if req.TriggerSqrtPriceX96 == nil {
		return false, nil
	}
	sqrtCurrent, _, err := e.manager.Backend().Slot0(ctx, position.Pool)
	if err != nil {
		return false, err
	}
	if req.BelowOrAbove {
		return sqrtCurrent.Cmp(req.TriggerSqrtPriceX96) <= 0, nil
	}
	return sqrtCurrent.Cmp(req.TriggerSqrtPriceX96) >= 0, nil
}

// NeedsRebalance reports whether the price sits strictly outside the
// trigger band.
func (e *Engine) NeedsRebalance(ctx context.Context, req RebalanceRequest) (bool, error) {
	position, err := e.manager.Registry().Get(ctx, req.PositionID)
	if err != nil {
		return false, err
	}
	if req.TriggerLowerX96 == nil || req.TriggerUpperX96 == nil {
		return false, nil
	}
	sqrtCurrent, _, err := e.manager.Backend().Slot0(ctx, position.Pool)
	if err != nil {
		return false, err
	}
	return sqrtCurrent.Cmp(req.TriggerLowerX96) < 0 || sqrtCurrent.Cmp(req.TriggerUpperX96) > 0, nil
}

// ExecuteClaim collects the position's fees on behalf of the owner.
func (e *Engine) ExecuteClaim(ctx context.Context, req ClaimRequest, sig []byte) (lifecycle.CollectResult, error) {
	digest := req.Digest(e.domain)
	if err := e.authorize(ctx, req.PositionID, digest, sig); err != nil {
		return lifecycle.CollectResult{}, err
	}
	fired, err := e.NeedsClaimFees(ctx, req)
	if err != nil {
		return lifecycle.CollectResult{}, err
	}
	if !fired {
		return lifecycle.CollectResult{}, ErrTriggerNotMet
	}

	position, err := e.manager.Registry().Get(ctx, req.PositionID)
	if err != nil {
		return lifecycle.CollectResult{}, err
	}
	res, err := e.manager.CollectAs(ctx, req.PositionID, outputToken(position.Pool, req.Output))
	if err != nil {
		return lifecycle.CollectResult{}, err
	}

	now := uint64(e.now().Unix())
	if err := e.state.SetLastClaimedAt(ctx, req.PositionID, now); err != nil {
		return lifecycle.CollectResult{}, err
	}
	if err := e.consume(ctx, req.PositionID, digest, "claim", res.Fee0, res.Fee1); err != nil {
		return lifecycle.CollectResult{}, err
	}
	return res, nil
}

// ExecuteClose withdraws the whole position to the request's recipient.
func (e *Engine) ExecuteClose(ctx context.Context, req CloseRequest, sig []byte) (lifecycle.WithdrawResult, error) {
	digest := req.Digest(e.domain)
	if err := e.authorize(ctx, req.PositionID, digest, sig); err != nil {
		return lifecycle.WithdrawResult{}, err
	}
	fired, err := e.NeedsClose(ctx, req)
	if err != nil {
		return lifecycle.WithdrawResult{}, err
	}
	if !fired {
		return lifecycle.WithdrawResult{}, ErrTriggerNotMet
	}

	position, err := e.manager.Registry().Get(ctx, req.PositionID)
	if err != nil {
		return lifecycle.WithdrawResult{}, err
	}
	res, err := e.manager.Withdraw(ctx, lifecycle.WithdrawParams{
		PositionID: req.PositionID,
		PercentBps: 10000,
		Recipient:  req.Recipient,
		TokenOut:   outputToken(position.Pool, req.Output),
	})
	if err != nil {
		return lifecycle.WithdrawResult{}, err
	}
	if err := e.consume(ctx, req.PositionID, digest, "close", res.Amount0, res.Amount1); err != nil {
		return lifecycle.WithdrawResult{}, err
	}
	return res, nil
}

// ExecuteRebalance recentres the position around the current tick after
// the manipulation guard passes. The new range keeps the original width
// with both bounds snapped down to the tick spacing.
func (e *Engine) ExecuteRebalance(ctx context.Context, req RebalanceRequest, sig []byte) (lifecycle.OpenResult, error) {
	digest := req.Digest(e.domain)
	if err := e.authorize(ctx, req.PositionID, digest, sig); err != nil {
		return lifecycle.OpenResult{}, err
	}
	fired, err := e.NeedsRebalance(ctx, req)
	if err != nil {
		return lifecycle.OpenResult{}, err
	}
	if !fired {
		return lifecycle.OpenResult{}, ErrTriggerNotMet
	}

	position, err := e.manager.Registry().Get(ctx, req.PositionID)
	if err != nil {
		return lifecycle.OpenResult{}, err
	}
	if err := e.checkManipulation(ctx, position.Pool); err != nil {
		return lifecycle.OpenResult{}, err
	}

	newRange, err := e.recentredRange(ctx, position)
	if err != nil {
		return lifecycle.OpenResult{}, err
	}
	owner, err := e.manager.Registry().OwnerOf(ctx, req.PositionID)
	if err != nil {
		return lifecycle.OpenResult{}, err
	}
	res, err := e.manager.MoveRange(ctx, lifecycle.MoveRangeParams{
		PositionID: req.PositionID,
		NewRange:   newRange,
		Recipient:  owner,
		RefundTo:   owner,
	})
	if err != nil {
		return lifecycle.OpenResult{}, err
	}
	if err := e.consume(ctx, req.PositionID, digest, "rebalance", res.Used0, res.Used1); err != nil {
		return lifecycle.OpenResult{}, err
	}
	return res, nil
}

// Invalidate proactively consumes an unused digest so its signature can
// never execute. Caller authentication is the embedding application's
// concern.
func (e *Engine) Invalidate(ctx context.Context, positionID uint64, digest common.Hash) error {
	used, err := e.state.DigestUsed(ctx, digest)
	if err != nil {
		return err
	}
	if used {
		return ErrDigestUsed
	}
	return e.consume(ctx, positionID, digest, "invalidate", nil, nil)
}

func (e *Engine) authorize(ctx context.Context, positionID uint64, digest common.Hash, sig []byte) error {
	used, err := e.state.DigestUsed(ctx, digest)
	if err != nil {
		return err
	}
	if used {
		return ErrDigestUsed
	}
	signer, err := RecoverSigner(digest, sig)
	if err != nil {
		return err
	}
	owner, err := e.manager.Registry().OwnerOf(ctx, positionID)
	if err != nil {
		return err
	}
	if signer != owner {
		return ErrNotOwner
	}
	return nil
}

// checkManipulation requires the pool's live price to sit within the
// guard band of the oracle/TWAP trusted price. Autonomous rebalancing at
// a manipulated price would mint liquidity at an attacker-chosen ratio.
func (e *Engine) checkManipulation(ctx context.Context, ref pool.Ref) error {
	price0, price1, err := e.pricer.PairPrices(ctx, ref)
	if err != nil {
		return err
	}
	sqrtCurrent, _, err := e.manager.Backend().Slot0(ctx, ref)
	if err != nil {
		return err
	}

	// Live token1-per-token0 versus trusted price0/price1, cross
	// multiplied: live = s^2/2^192, trusted = price0/price1.
	live := new(big.Int).Mul(sqrtCurrent, sqrtCurrent)
	live.Mul(live, price1)
	trusted := new(big.Int).Mul(price0, new(big.Int).Lsh(big.NewInt(1), 192))

	diff := new(big.Int).Sub(live, trusted)
	diff.Abs(diff)
	diff.Mul(diff, big.NewInt(10000))
	bound := new(big.Int).Mul(trusted, big.NewInt(int64(e.guard)))
	if diff.Cmp(bound) > 0 {
		return ErrPriceManipulation
	}
	return nil
}

func (e *Engine) recentredRange(ctx context.Context, position pool.Position) (pool.Range, error) {
	_, tick, err := e.manager.Backend().Slot0(ctx, position.Pool)
	if err != nil {
		return pool.Range{}, err
	}
	width := position.Range.Width()
	spacing := position.Pool.TickSpacing
	newLower := pool.FloorToSpacing(tick-width/2, spacing)
	newUpper := pool.FloorToSpacing(tick+width/2, spacing)
	if newUpper <= newLower {
		newUpper = newLower + spacing
	}
	return pool.Range{TickLower: newLower, TickUpper: newUpper}, nil
}

func (e *Engine) consume(ctx context.Context, positionID uint64, digest common.Hash, action string, amount0, amount1 *big.Int) error {
	if err := e.state.MarkDigestUsed(ctx, digest); err != nil {
		return err
	}
	record := storage.ActionRecord{
		PositionID: positionID,
		Action:     action,
		Digest:     digest.Hex(),
		ExecutedAt: e.now().UTC().Format(time.RFC3339),
	}
	if amount0 != nil {
		record.Amount0 = amount0.String()
	}
	if amount1 != nil {
		record.Amount1 = amount1.String()
	}
	if err := e.state.AppendAction(ctx, record); err != nil {
		return err
	}
	e.logger.Info("automation action executed",
		zap.Uint64("position_id", positionID),
		zap.String("action", action),
		zap.String("digest", digest.Hex()),
	)
	return nil
}

func outputToken(ref pool.Ref, mode OutputMode) *common.Address {
	switch mode {
	case OutputToken0:
		token := ref.Token0
		return &token
	case OutputToken1:
		token := ref.Token1
		return &token
	default:
		return nil
	}
}
