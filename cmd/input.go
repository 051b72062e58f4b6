package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"github.com/michaelpento.lv/llamalend/quote"
	"github.com/michaelpento.lv/llamalend/types"
)

var loanActions = []types.Action{
	types.ActionCreateLoan,
	types.ActionBorrowMore,
	types.ActionRepay,
	types.ActionFullRepay,
	types.ActionAddCollateral,
	types.ActionRemoveCollateral,
	types.ActionSelfLiquidate,
}

var vaultOps = []types.VaultOp{
	types.VaultDeposit,
	types.VaultMint,
	types.VaultWithdraw,
	types.VaultRedeem,
	types.VaultStake,
	types.VaultUnstake,
}

func parseAction(s string) (types.Action, error) {
	for _, a := range loanActions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown loan action %q", s)
}

func parseVaultOp(s string) (types.VaultOp, error) {
	for _, op := range vaultOps {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown vault operation %q", s)
}

// loanFlags are the user inputs of a loan action. Amounts stay strings
// until parsed so an omitted flag is unset rather than zero.
type loanFlags struct {
	user            string
	collateral      string
	borrowed        string
	debt            string
	stateCollateral string
	n               int
	slippage        string
	full            bool
	leverage        bool
}

func (f *loanFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.user, "user", "", "user address")
	fs.StringVar(&f.collateral, "collateral", "", "collateral amount")
	fs.StringVar(&f.borrowed, "borrowed", "", "borrowed token amount (leveraged actions)")
	fs.StringVar(&f.debt, "debt", "", "debt amount")
	fs.StringVar(&f.stateCollateral, "state-collateral", "", "collateral repaid from the position (leveraged repay)")
	fs.IntVar(&f.n, "n", 10, "number of bands")
	fs.StringVar(&f.slippage, "slippage", "0.1", "max slippage in percent")
	fs.BoolVar(&f.full, "full", false, "repay the whole debt")
	fs.BoolVar(&f.leverage, "leverage", false, "use the market's leverage route")
}

func (f *loanFlags) input() (quote.Input, error) {
	var (
		in  quote.Input
		err error
	)
	if f.user != "" {
		if in.User, err = parseUser(f.user); err != nil {
			return in, err
		}
	}
	if in.Collateral, err = types.ParseAmount(f.collateral); err != nil {
		return in, err
	}
	if in.Borrowed, err = types.ParseAmount(f.borrowed); err != nil {
		return in, err
	}
	if in.Debt, err = types.ParseAmount(f.debt); err != nil {
		return in, err
	}
	if in.StateCollateral, err = types.ParseAmount(f.stateCollateral); err != nil {
		return in, err
	}
	if in.Slippage, err = decimal.NewFromString(f.slippage); err != nil {
		return in, fmt.Errorf("invalid slippage %q: %w", f.slippage, err)
	}
	in.N = f.n
	in.IsFullRepay = f.full
	return in, nil
}

// vaultFlags are the user inputs of a vault operation
type vaultFlags struct {
	user   string
	amount string
}

func (f *vaultFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.user, "user", "", "user address")
	fs.StringVar(&f.amount, "amount", "", "amount of assets or shares")
}

func (f *vaultFlags) parse() (common.Address, types.Amount, error) {
	var user common.Address
	if f.user != "" {
		var err error
		if user, err = parseUser(f.user); err != nil {
			return user, types.None(), err
		}
	}
	amount, err := types.ParseAmount(f.amount)
	return user, amount, err
}
