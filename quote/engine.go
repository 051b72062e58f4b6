// Package quote projects the outcome of loan and vault actions before they
// are submitted. Every quote returns its failure in the result's Error
// field instead of an error value, keeping whatever fields did resolve.
package quote

import (
	"errors"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/llamalend/gas"
	"github.com/michaelpento.lv/llamalend/pool"
	"github.com/michaelpento.lv/llamalend/sdk"
	"github.com/michaelpento.lv/llamalend/types"
	"github.com/michaelpento.lv/llamalend/utils"
	"github.com/michaelpento.lv/llamalend/utils/metrics"
)

var (
	ErrNoLeverage = errors.New("market has no leverage")
	ErrNoVault    = errors.New("market has no vault")
)

// Input is what the user entered for a loan action. Unset amounts are sent
// to the market as zero, but a quote whose amounts were never entered
// returns its placeholders without calling the market.
type Input struct {
	User            common.Address
	Collateral      types.Amount
	Borrowed        types.Amount
	Debt            types.Amount
	StateCollateral types.Amount
	N               int
	Slippage        decimal.Decimal
	IsFullRepay     bool
}

// Params converts the input to the arguments every market call takes
func (in Input) Params() sdk.LoanParams {
	return sdk.LoanParams{
		User:            in.User,
		Collateral:      in.Collateral.OrZero(),
		Borrowed:        in.Borrowed.OrZero(),
		Debt:            in.Debt.OrZero(),
		StateCollateral: in.StateCollateral.OrZero(),
		N:               in.N,
		Slippage:        in.Slippage,
	}
}

// haveValues reports whether any amount to put up was entered
func (in Input) haveValues() bool {
	return in.Collateral.IsSet() || in.Borrowed.IsSet()
}

func (in Input) parts() []string {
	return []string{
		in.User.Hex(),
		in.Collateral.String(),
		in.Borrowed.String(),
		in.Debt.String(),
		in.StateCollateral.String(),
		strconv.Itoa(in.N),
		in.Slippage.String(),
		strconv.FormatBool(in.IsFullRepay),
	}
}

type MaxRecvResult struct {
	ActiveKey string          `json:"activeKey"`
	MaxRecv   decimal.Decimal `json:"maxRecv"`
	Error     string          `json:"error"`
}

type MaxRecvLeverageResult struct {
	ActiveKey string `json:"activeKey"`
	types.MaxRecvLeverage
	Error string `json:"error"`
}

type DetailResult struct {
	ActiveKey string `json:"activeKey"`
	types.LoanQuote
}

type LeverageDetailResult struct {
	ActiveKey string `json:"activeKey"`
	types.LeverageQuote
}

// RepayLeverageResult is a leveraged repay quote. IsFullRepay is set when
// the swapped collateral covers the whole debt.
type RepayLeverageResult struct {
	ActiveKey string `json:"activeKey"`
	types.LeverageQuote
	IsFullRepay bool `json:"isFullRepay"`
	IsAvailable bool `json:"isAvailable"`
}

type SelfLiquidateResult struct {
	ActiveKey         string          `json:"activeKey"`
	TokensToLiquidate decimal.Decimal `json:"tokensToLiquidate"`
	FutureRates       *types.Rates    `json:"futureRates,omitempty"`
	Error             string          `json:"error"`
}

type SweepResult struct {
	ActiveKey string           `json:"activeKey"`
	LiqRanges []types.LiqRange `json:"liqRanges"`
}

// EstimateResult reports approval state and the gas of the next step: the
// action itself when approved, the approvals otherwise. Cost is the fee in
// native units and is unset without a gas estimator.
type EstimateResult struct {
	ActiveKey    string       `json:"activeKey"`
	IsApproved   bool         `json:"isApproved"`
	EstimatedGas types.Gas    `json:"estimatedGas"`
	Cost         types.Amount `json:"cost"`
	Error        string       `json:"error"`
}

type VaultMaxResult struct {
	ActiveKey string          `json:"activeKey"`
	Max       decimal.Decimal `json:"max"`
	Error     string          `json:"error"`
}

type VaultDetailResult struct {
	ActiveKey   string          `json:"activeKey"`
	Preview     decimal.Decimal `json:"preview"`
	FutureRates *types.Rates    `json:"futureRates,omitempty"`
	Error       string          `json:"error"`
}

type MaxLeverageResult struct {
	ActiveKey   string          `json:"activeKey"`
	N           int             `json:"n"`
	MaxLeverage decimal.Decimal `json:"maxLeverage"`
	Error       string          `json:"error"`
}

// Engine computes quotes. It keeps no per-request state.
type Engine struct {
	logger  *zap.Logger
	gas     *gas.Estimator
	metrics *metrics.QuoteMetrics
}

type Option func(*Engine)

// WithGasEstimator makes gas estimates also report their fee
func WithGasEstimator(g *gas.Estimator) Option {
	return func(e *Engine) {
		e.gas = g
	}
}

func WithMetrics(m *metrics.QuoteMetrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		logger:  utils.OrNop(logger).Named("quote"),
		metrics: metrics.NewQuoteMetrics(metrics.Namespace, nil),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func activeKey(m sdk.Market, family, kind string, parts ...string) string {
	return utils.ActiveKey(m.Info().ID+"-"+family+"-"+kind, parts...)
}

// observe records one quote. It is deferred with a pointer to the result's
// error so the final outcome is counted.
func (e *Engine) observe(family, kind string, start time.Time, errMsg *string) {
	outcome := "success"
	if *errMsg != "" {
		outcome = "error"
	}
	e.metrics.Requests.WithLabelValues(family, kind, outcome).Inc()
	e.metrics.Latency.WithLabelValues(family, kind).Observe(time.Since(start).Seconds())
}

func (e *Engine) warn(msg string, m sdk.Market, family string, err error) {
	e.logger.Warn(msg,
		zap.String("market", m.Info().ID),
		zap.String("family", family),
		zap.Error(err))
}

func family(m sdk.Market, action types.Action) (sdk.LoanFamily, error) {
	f := m.Family(action)
	if f == nil {
		return nil, sdk.ErrUnsupported
	}
	return f, nil
}

// leverageFamily resolves the market's leverage strategy once per quote
func leverageFamily(m sdk.Market, action types.Action) (sdk.LeverageFamily, error) {
	lev := sdk.PreferredLeverage(m)
	if lev == nil {
		return nil, ErrNoLeverage
	}
	f := lev.Family(action)
	if f == nil {
		return nil, sdk.ErrUnsupported
	}
	return f, nil
}

// settledAmount is the value of a settled call, or unset when it failed
func settledAmount(r *pool.Result[decimal.Decimal]) types.Amount {
	if !r.Ok() {
		return types.None()
	}
	return types.Some(r.Value)
}

func settledRates(r *pool.Result[types.Rates]) *types.Rates {
	if !r.Ok() {
		return nil
	}
	v := r.Value
	return &v
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return types.ErrorText(err)
}
