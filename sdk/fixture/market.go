package fixture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/michaelpento.lv/llamalend/sdk"
	"github.com/michaelpento.lv/llamalend/types"
)

const defaultA = 100

var hundred = decimal.NewFromInt(100)

// Market implements sdk.Market over a MarketSpec
type Market struct {
	spec  MarketSpec
	info  types.Market
	chain *Chain
	a     decimal.Decimal

	mu    sync.Mutex
	calls map[string]int
}

var _ sdk.Market = (*Market)(nil)

// NewMarket builds a market backed by chain
func NewMarket(spec MarketSpec, chain *Chain) (*Market, error) {
	kind, err := types.ParseMarketKind(spec.Kind)
	if err != nil {
		return nil, fmt.Errorf("market %s: %w", spec.ID, err)
	}
	if spec.A == 0 {
		spec.A = defaultA
	}
	if spec.A < 2 {
		return nil, fmt.Errorf("market %s: A must be at least 2", spec.ID)
	}
	if chain == nil {
		chain = NewChain()
	}
	return &Market{
		spec:  spec,
		chain: chain,
		a:     decimal.NewFromInt(int64(spec.A)),
		calls: make(map[string]int),
		info: types.Market{
			ID:              spec.ID,
			Kind:            kind,
			CollateralToken: token(spec.CollateralToken),
			BorrowedToken:   token(spec.BorrowedToken),
			MinBands:        spec.MinBands,
			MaxBands:        spec.MaxBands,
			Gauge:           common.HexToAddress(spec.Gauge),
		},
	}, nil
}

// NewMarkets builds every market of a fixture file on one chain
func NewMarkets(f *File, chain *Chain) ([]*Market, error) {
	out := make([]*Market, 0, len(f.Markets))
	for _, spec := range f.Markets {
		m, err := NewMarket(spec, chain)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func token(t TokenSpec) types.Token {
	return types.Token{Symbol: t.Symbol, Address: common.HexToAddress(t.Address), Decimals: t.Decimals}
}

// call counts an invocation and returns its injected failure, if any
func (m *Market) call(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[key]++
	if msg, ok := m.spec.Failures[key]; ok {
		return errors.New(msg)
	}
	return nil
}

// Calls returns how many times key was invoked
func (m *Market) Calls(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[key]
}

// CallsWithPrefix sums invocations of every key starting with prefix
func (m *Market) CallsWithPrefix(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for k, v := range m.calls {
		if strings.HasPrefix(k, prefix) {
			total += v
		}
	}
	return total
}

// TotalCalls returns the number of SDK invocations so far
func (m *Market) TotalCalls() int {
	return m.CallsWithPrefix("")
}

// Chain returns the chain the market submits to
func (m *Market) Chain() *Chain {
	return m.chain
}

// submit records a transaction labelled with the market and key
func (m *Market) submit(key string) common.Hash {
	return m.chain.submit(m.spec.ID+"."+key, m.spec.Failures["confirm."+key])
}

func (m *Market) Info() types.Market { return m.info }

func (m *Market) Stats() sdk.Stats { return stats{m} }

func (m *Market) Oracle() sdk.Oracle { return oracle{m} }

func (m *Market) User() sdk.UserReader {
	if len(m.spec.Leverage) > 0 {
		return leveragedUsers{users{m}}
	}
	return users{m}
}

func (m *Market) Wallet() sdk.Wallet { return wallet{m} }

func (m *Market) Vault() sdk.Vault {
	if m.spec.Vault == nil {
		return nil
	}
	return &vault{m: m, spec: m.spec.Vault}
}

func (m *Market) user(addr common.Address) (UserSpec, bool) {
	for k, u := range m.spec.Users {
		if common.HexToAddress(k) == addr {
			return u, true
		}
	}
	return UserSpec{}, false
}

// pUp is the upper price of band n: base * ((A-1)/A)^n
func (m *Market) pUp(n int) decimal.Decimal {
	ratio := m.a.Sub(decimal.NewFromInt(1)).Div(m.a)
	p := m.spec.BasePrice.Decimal
	for i := 0; i < n; i++ {
		p = p.Mul(ratio)
	}
	for i := 0; i > n; i-- {
		p = p.Div(ratio)
	}
	return p.Round(18)
}

func (m *Market) bandPrices(n int) [2]decimal.Decimal {
	return [2]decimal.Decimal{m.pUp(n), m.pUp(n + 1)}
}

// health projects health in percent for a position. Not-full health also
// accounts for the gap between the loan and liquidation discounts.
func (m *Market) health(collateral, debt decimal.Decimal, full bool) decimal.Decimal {
	if !debt.IsPositive() {
		return hundred
	}
	value := collateral.Mul(m.spec.OraclePrice.Decimal).Mul(decimal.NewFromInt(1).Sub(m.spec.LoanDiscount.Decimal))
	h := value.Div(debt).Sub(decimal.NewFromInt(1)).Mul(hundred)
	if !full {
		h = h.Sub(m.spec.LoanDiscount.Sub(m.spec.LiquidationDiscount.Decimal).Mul(hundred))
	}
	return h.Round(6)
}

// maxDebt is the debt a collateral amount supports over n bands
func (m *Market) maxDebt(collateral decimal.Decimal, n int) decimal.Decimal {
	spread := decimal.NewFromInt(1).Sub(decimal.NewFromInt(int64(n)).Div(decimal.NewFromInt(200)))
	return collateral.Mul(m.spec.OraclePrice.Decimal).
		Mul(decimal.NewFromInt(1).Sub(m.spec.LoanDiscount.Decimal)).
		Mul(spread).
		Round(18)
}

// bands places a position of n bands below the active band; lower
// loan-to-value ratios sit further away
func (m *Market) bands(collateral, debt decimal.Decimal, n int) types.RawBands {
	if !collateral.IsPositive() || !debt.IsPositive() || n <= 0 {
		return types.RawBands{0, 0}
	}
	ratio := debt.Div(collateral.Mul(m.spec.OraclePrice.Decimal))
	offset := 0
	if ratio.LessThan(decimal.NewFromInt(1)) {
		offset = int(decimal.NewFromInt(1).Sub(ratio).Mul(decimal.NewFromInt(20)).IntPart())
	}
	start := m.spec.ActiveBand + 1 + offset
	return types.RawBands{start + n - 1, start}
}

// prices returns the liquidation price pair of a raw band pair
func (m *Market) prices(raw types.RawBands) []decimal.Decimal {
	if raw[0] == 0 && raw[1] == 0 {
		return []decimal.Decimal{decimal.Zero, decimal.Zero}
	}
	high, low := raw[0], raw[1]
	return []decimal.Decimal{m.pUp(high + 1), m.pUp(low)}
}

func balances(in map[string]BalanceSpec) (types.BandsBalances, error) {
	raw := make(map[string]types.BandBalance, len(in))
	for k, v := range in {
		raw[k] = types.BandBalance{Borrowed: v.Borrowed.Decimal, Collateral: v.Collateral.Decimal}
	}
	return types.ParseBandsBalances(raw)
}

type stats struct{ m *Market }

func (s stats) Parameters(ctx context.Context) (sdk.Parameters, error) {
	if err := s.m.call("stats.parameters"); err != nil {
		return sdk.Parameters{}, err
	}
	spec := s.m.spec
	return sdk.Parameters{
		Fee:                 spec.Fee.Decimal,
		AdminFee:            spec.AdminFee.Decimal,
		LiquidationDiscount: spec.LiquidationDiscount.Decimal,
		LoanDiscount:        spec.LoanDiscount.Decimal,
		BasePrice:           spec.BasePrice.Decimal,
		A:                   spec.A,
	}, nil
}

func (s stats) Balances(ctx context.Context) ([2]decimal.Decimal, error) {
	if err := s.m.call("stats.balances"); err != nil {
		return [2]decimal.Decimal{}, err
	}
	return [2]decimal.Decimal{s.m.spec.AmmBalances.Borrowed.Decimal, s.m.spec.AmmBalances.Collateral.Decimal}, nil
}

func (s stats) BandsInfo(ctx context.Context) (sdk.BandsInfo, error) {
	if err := s.m.call("stats.bandsInfo"); err != nil {
		return sdk.BandsInfo{}, err
	}
	bb, err := balances(s.m.spec.BandsBalances)
	if err != nil {
		return sdk.BandsInfo{}, err
	}
	info := sdk.BandsInfo{ActiveBand: s.m.spec.ActiveBand, LiquidationBand: s.m.spec.LiquidationBand}
	first := true
	for n := range bb {
		if first || n < info.MinBand {
			info.MinBand = n
		}
		if first || n > info.MaxBand {
			info.MaxBand = n
		}
		first = false
	}
	return info, nil
}

func (s stats) BandsBalances(ctx context.Context) (types.BandsBalances, error) {
	if err := s.m.call("stats.bandsBalances"); err != nil {
		return nil, err
	}
	return balances(s.m.spec.BandsBalances)
}

func (s stats) BandBalances(ctx context.Context, n int) (types.BandBalance, error) {
	if err := s.m.call("stats.bandBalances"); err != nil {
		return types.BandBalance{}, err
	}
	bb, err := balances(s.m.spec.BandsBalances)
	if err != nil {
		return types.BandBalance{}, err
	}
	return bb[n], nil
}

func (s stats) AmmBalances(ctx context.Context, useMultiCall, useAPI bool) (sdk.AmmBalances, error) {
	if err := s.m.call("stats.ammBalances"); err != nil {
		return sdk.AmmBalances{}, err
	}
	return sdk.AmmBalances{Borrowed: s.m.spec.AmmBalances.Borrowed.Decimal, Collateral: s.m.spec.AmmBalances.Collateral.Decimal}, nil
}

func (s stats) CapAndAvailable(ctx context.Context, useMultiCall, useAPI bool) (sdk.CapAndAvailable, error) {
	if err := s.m.call("stats.capAndAvailable"); err != nil {
		return sdk.CapAndAvailable{}, err
	}
	return sdk.CapAndAvailable{Cap: s.m.spec.Cap.Decimal, Available: s.m.spec.Available.Decimal}, nil
}

func (s stats) TotalDebt(ctx context.Context, useMultiCall, useAPI bool) (decimal.Decimal, error) {
	if err := s.m.call("stats.totalDebt"); err != nil {
		return decimal.Zero, err
	}
	return s.m.spec.TotalDebt.Decimal, nil
}

func (s stats) Rates(ctx context.Context, useMultiCall, useAPI bool) (types.Rates, error) {
	if err := s.m.call("stats.rates"); err != nil {
		return types.Rates{}, err
	}
	r := s.m.spec.Rates
	return types.Rates{BorrowApr: r.BorrowApr.Decimal, LendApr: r.LendApr.Decimal, BorrowApy: r.BorrowApy.Decimal, LendApy: r.LendApy.Decimal}, nil
}

// FutureRates scales the current rates by the projected utilization change
func (s stats) FutureRates(ctx context.Context, dReserves, dDebt decimal.Decimal) (types.Rates, error) {
	if err := s.m.call("stats.futureRates"); err != nil {
		return types.Rates{}, err
	}
	spec := s.m.spec
	reserves := spec.TotalDebt.Add(spec.Available.Decimal)
	debt := spec.TotalDebt.Add(dDebt)
	reserves = reserves.Add(dReserves)
	factor := decimal.NewFromInt(1)
	if reserves.IsPositive() && spec.TotalDebt.IsPositive() {
		current := spec.TotalDebt.Div(spec.TotalDebt.Add(spec.Available.Decimal))
		future := debt.Div(reserves)
		if current.IsPositive() {
			factor = future.Div(current)
		}
	}
	if factor.IsNegative() {
		factor = decimal.Zero
	}
	r := spec.Rates
	return types.Rates{
		BorrowApr: r.BorrowApr.Mul(factor).Round(6),
		LendApr:   r.LendApr.Mul(factor).Round(6),
		BorrowApy: r.BorrowApy.Mul(factor).Round(6),
		LendApy:   r.LendApy.Mul(factor).Round(6),
	}, nil
}

type oracle struct{ m *Market }

func (o oracle) OraclePrice(ctx context.Context) (decimal.Decimal, error) {
	if err := o.m.call("oracle.oraclePrice"); err != nil {
		return decimal.Zero, err
	}
	return o.m.spec.OraclePrice.Decimal, nil
}

func (o oracle) OraclePriceBand(ctx context.Context) (*int, error) {
	if err := o.m.call("oracle.oraclePriceBand"); err != nil {
		return nil, err
	}
	return o.m.spec.OracleBand, nil
}

func (o oracle) Price(ctx context.Context) (decimal.Decimal, error) {
	if err := o.m.call("oracle.price"); err != nil {
		return decimal.Zero, err
	}
	return o.m.pUp(o.m.spec.ActiveBand), nil
}

func (o oracle) BasePrice(ctx context.Context) (decimal.Decimal, error) {
	if err := o.m.call("oracle.basePrice"); err != nil {
		return decimal.Zero, err
	}
	return o.m.spec.BasePrice.Decimal, nil
}

func (o oracle) CalcBandPrices(ctx context.Context, n int) ([2]decimal.Decimal, error) {
	if err := o.m.call("oracle.calcBandPrices"); err != nil {
		return [2]decimal.Decimal{}, err
	}
	return o.m.bandPrices(n), nil
}

func (o oracle) CalcRangePct(ctx context.Context, n int) (decimal.Decimal, error) {
	if err := o.m.call("oracle.calcRangePct"); err != nil {
		return decimal.Zero, err
	}
	base := o.m.spec.BasePrice.Decimal
	if !base.IsPositive() {
		return decimal.Zero, nil
	}
	return decimal.NewFromInt(1).Sub(o.m.pUp(n).Div(base)).Mul(hundred).Round(6), nil
}

type users struct{ m *Market }

func (u users) State(ctx context.Context, addr common.Address) (types.UserState, error) {
	if err := u.m.call("user.state"); err != nil {
		return types.UserState{}, err
	}
	spec, _ := u.m.user(addr)
	return types.UserState{Collateral: spec.Collateral.Decimal, Borrowed: spec.Borrowed.Decimal, Debt: spec.Debt.Decimal, N: spec.N}, nil
}

func (u users) Health(ctx context.Context, addr common.Address, full bool) (decimal.Decimal, error) {
	if err := u.m.call("user.health"); err != nil {
		return decimal.Zero, err
	}
	spec, _ := u.m.user(addr)
	if full {
		return spec.HealthFull.Decimal, nil
	}
	return spec.HealthNotFull.Decimal, nil
}

func (u users) Range(ctx context.Context, addr common.Address) (int, error) {
	if err := u.m.call("user.range"); err != nil {
		return 0, err
	}
	spec, _ := u.m.user(addr)
	return spec.N, nil
}

func (u users) Bands(ctx context.Context, addr common.Address) (types.RawBands, error) {
	if err := u.m.call("user.bands"); err != nil {
		return types.RawBands{}, err
	}
	spec, _ := u.m.user(addr)
	if len(spec.Bands) != 2 {
		return types.RawBands{0, 0}, nil
	}
	return types.RawBands{spec.Bands[0], spec.Bands[1]}, nil
}

func (u users) Prices(ctx context.Context, addr common.Address) ([]decimal.Decimal, error) {
	if err := u.m.call("user.prices"); err != nil {
		return nil, err
	}
	spec, _ := u.m.user(addr)
	if len(spec.Bands) != 2 {
		return []decimal.Decimal{decimal.Zero, decimal.Zero}, nil
	}
	return u.m.prices(types.RawBands{spec.Bands[0], spec.Bands[1]}), nil
}

func (u users) BandsBalances(ctx context.Context, addr common.Address) (types.BandsBalances, error) {
	if err := u.m.call("user.bandsBalances"); err != nil {
		return nil, err
	}
	spec, _ := u.m.user(addr)
	return balances(spec.BandsBalances)
}

func (u users) LoanExists(ctx context.Context, addr common.Address) (bool, error) {
	if err := u.m.call("user.loanExists"); err != nil {
		return false, err
	}
	spec, ok := u.m.user(addr)
	return ok && spec.Debt.IsPositive(), nil
}

func (u users) Loss(ctx context.Context, addr common.Address) (types.UserLoss, error) {
	if err := u.m.call("user.loss"); err != nil {
		return types.UserLoss{}, err
	}
	spec, _ := u.m.user(addr)
	if spec.Loss == nil {
		return types.UserLoss{}, nil
	}
	loss := spec.Loss.Deposited.Sub(spec.Loss.Current.Decimal)
	pct := decimal.Zero
	if spec.Loss.Deposited.IsPositive() {
		pct = loss.Div(spec.Loss.Deposited.Decimal).Mul(hundred).Round(4)
	}
	return types.UserLoss{
		DepositedCollateral:         spec.Loss.Deposited.Decimal,
		CurrentCollateralEstimation: spec.Loss.Current.Decimal,
		Loss:                        loss,
		LossPct:                     pct,
	}, nil
}

// leveragedUsers adds the current leverage read
type leveragedUsers struct{ users }

var _ sdk.LeverageReader = leveragedUsers{}

func (u leveragedUsers) CurrentLeverage(ctx context.Context, addr common.Address) (decimal.Decimal, error) {
	if err := u.m.call("user.currentLeverage"); err != nil {
		return decimal.Zero, err
	}
	spec, _ := u.m.user(addr)
	return spec.Leverage.Decimal, nil
}

type wallet struct{ m *Market }

func (w wallet) Balances(ctx context.Context, addr common.Address) (types.WalletBalances, error) {
	if err := w.m.call("wallet.balances"); err != nil {
		return types.WalletBalances{}, err
	}
	spec, _ := w.m.user(addr)
	return types.WalletBalances{
		Collateral:  spec.Wallet.Collateral.Decimal,
		Borrowed:    spec.Wallet.Borrowed.Decimal,
		VaultShares: spec.Wallet.VaultShares.Decimal,
		Gauge:       spec.Wallet.Gauge.Decimal,
	}, nil
}
