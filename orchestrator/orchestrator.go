// Package orchestrator sequences the write path of every mutating action:
// approve if needed, submit, then wait for confirmation. Each action runs as
// a small state machine and reports a normalized result; a failure ends
// that action only.
package orchestrator

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/llamalend/sdk"
	"github.com/michaelpento.lv/llamalend/types"
	"github.com/michaelpento.lv/llamalend/utils"
	"github.com/michaelpento.lv/llamalend/utils/metrics"
)

type State int

const (
	StateIdle State = iota
	StateApproving
	StateSubmitting
	StateConfirming
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateApproving:
		return "approving"
	case StateSubmitting:
		return "submitting"
	case StateConfirming:
		return "confirming"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Transition is one state change of a run
type Transition struct {
	RunID  string
	Action string
	From   State
	To     State
}

type Orchestrator struct {
	provider       sdk.Provider
	logger         *zap.Logger
	metrics        *metrics.TxMetrics
	confirmTimeout time.Duration
	onTransition   func(Transition)
}

type Option func(*Orchestrator)

func WithMetrics(m *metrics.TxMetrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithConfirmTimeout bounds every confirmation wait
func WithConfirmTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.confirmTimeout = d
	}
}

// WithTransitionHook calls fn on every state change. fn must not block.
func WithTransitionHook(fn func(Transition)) Option {
	return func(o *Orchestrator) {
		o.onTransition = fn
	}
}

func New(provider sdk.Provider, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider: provider,
		logger:   utils.OrNop(logger).Named("orchestrator"),
		metrics:  metrics.NewTxMetrics(metrics.Namespace, nil),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// plan describes one action. A nil approve means the action spends no
// allowance; a nil isApproved means approval is always sent.
type plan struct {
	action     string
	market     string
	activeKey  string
	isApproved func(context.Context) (bool, error)
	approve    func(context.Context) ([]common.Hash, error)
	submit     func(context.Context) (common.Hash, error)
	// submitCode is the error code of a failed submit or confirmation
	submitCode string
}

type run struct {
	o      *Orchestrator
	id     string
	action string
	state  State
	start  time.Time
	logger *zap.Logger
}

func (o *Orchestrator) newRun(p *plan) *run {
	id := uuid.NewString()
	return &run{
		o:      o,
		id:     id,
		action: p.action,
		state:  StateIdle,
		start:  time.Now(),
		logger: o.logger.With(
			zap.String("run", id),
			zap.String("action", p.action),
			zap.String("market", p.market)),
	}
}

func (r *run) to(s State) {
	from := r.state
	r.state = s
	r.logger.Debug("Transaction state changed",
		zap.Stringer("from", from),
		zap.Stringer("to", s))
	if r.o.onTransition != nil {
		r.o.onTransition(Transition{RunID: r.id, Action: r.action, From: from, To: s})
	}
}

func (r *run) step(name string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.o.metrics.Steps.WithLabelValues(r.action, name, outcome).Inc()
}

func (r *run) finish() {
	r.o.metrics.Duration.WithLabelValues(r.action).Observe(time.Since(r.start).Seconds())
}

// fail moves the run to Failed and returns the normalized code
func (r *run) fail(step string, err error, code string) string {
	r.step(step, err)
	r.logger.Error("Transaction step failed",
		zap.String("step", step),
		zap.Stringer("state", r.state),
		zap.Error(err))
	r.to(StateFailed)
	r.finish()
	return types.ErrorMessage(err, code)
}

func (o *Orchestrator) confirmCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.confirmTimeout > 0 {
		return context.WithTimeout(ctx, o.confirmTimeout)
	}
	return context.WithCancel(ctx)
}

// approveStep sends and confirms the approvals. All hashes must confirm.
func (o *Orchestrator) approveStep(ctx context.Context, r *run, p *plan) ([]common.Hash, error) {
	r.to(StateApproving)
	hashes, err := p.approve(ctx)
	if err != nil {
		return nil, err
	}
	cctx, cancel := o.confirmCtx(ctx)
	defer cancel()
	return hashes, o.provider.WaitForTransactions(cctx, hashes)
}

// execute runs the full machine: Idle, Approving unless already approved,
// Submitting, Confirming, then Succeeded or Failed
func (o *Orchestrator) execute(ctx context.Context, p *plan) types.TxResult {
	r := o.newRun(p)
	res := types.TxResult{ActiveKey: p.activeKey}

	if p.approve != nil {
		approved := false
		if p.isApproved != nil {
			var err error
			if approved, err = p.isApproved(ctx); err != nil {
				res.Error, res.ErrorDetail = r.fail("isApproved", err, types.ErrCodeStepApprove), types.ErrorText(err)
				return res
			}
		}
		if !approved {
			hashes, err := o.approveStep(ctx, r, p)
			res.ApproveHashes = hexes(hashes)
			if err != nil {
				res.Error, res.ErrorDetail = r.fail("approve", err, types.ErrCodeStepApprove), types.ErrorText(err)
				return res
			}
			r.step("approve", nil)
		}
	}

	r.to(StateSubmitting)
	hash, err := p.submit(ctx)
	if err != nil {
		res.Error, res.ErrorDetail = r.fail("submit", err, p.submitCode), types.ErrorText(err)
		return res
	}
	r.step("submit", nil)
	res.Hash = hash.Hex()

	r.to(StateConfirming)
	cctx, cancel := o.confirmCtx(ctx)
	defer cancel()
	if err := o.provider.WaitForTransaction(cctx, hash); err != nil {
		res.Error, res.ErrorDetail = r.fail("confirm", err, p.submitCode), types.ErrorText(err)
		return res
	}
	r.step("confirm", nil)

	r.to(StateSucceeded)
	r.finish()
	r.logger.Info("Transaction confirmed", zap.String("hash", res.Hash))
	return res
}

// approveOnly runs just the approval part of a plan and reports every hash
func (o *Orchestrator) approveOnly(ctx context.Context, p *plan) types.TxHashesResult {
	r := o.newRun(p)
	res := types.TxHashesResult{ActiveKey: p.activeKey, Hashes: []string{}}
	if p.approve == nil {
		res.Error = r.fail("approve", sdk.ErrUnsupported, types.ErrCodeStepApprove)
		res.ErrorDetail = sdk.ErrUnsupported.Error()
		return res
	}

	hashes, err := o.approveStep(ctx, r, p)
	res.Hashes = hexes(hashes)
	if err != nil {
		res.Error, res.ErrorDetail = r.fail("approve", err, types.ErrCodeStepApprove), types.ErrorText(err)
		return res
	}
	r.step("approve", nil)
	r.to(StateSucceeded)
	r.finish()
	return res
}

func hexes(hashes []common.Hash) []string {
	out := make([]string, 0, len(hashes))
	for _, h := range hashes {
		out = append(out, h.Hex())
	}
	return out
}
