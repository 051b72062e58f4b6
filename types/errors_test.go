package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type revertError struct {
	data string
}

func (e *revertError) Error() string          { return "execution reverted" }
func (e *revertError) ErrorData() interface{} { return e.data }

func encodeRevert(t *testing.T, reason string) string {
	t.Helper()
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	require.NoError(t, err)
	selector := []byte{0x08, 0xc3, 0x79, 0xa0}
	return hexutil.Encode(append(selector, packed...))
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fallback string
		want     string
	}{
		{"nil", nil, ErrCodeAPI, ""},
		{"swap type", errors.New("Bad swap type 3"), ErrCodeDetails, ErrCodeSwapNotAvailable},
		{"user rejected", errors.New("user rejected action (action=\"sendTransaction\")"), ErrCodeStepApprove, ErrCodeUserRejected},
		{"fallback", errors.New("timeout"), ErrCodeStepDeposit, ErrCodeStepDeposit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorMessage(tt.err, tt.fallback))
		})
	}
}

func TestEstimateErrorCode(t *testing.T) {
	t.Run("plain message", func(t *testing.T) {
		err := errors.New("execution reverted: Not in liquidation mode")
		assert.Equal(t, ErrCodeLiquidationMode, EstimateErrorCode(err))
	})

	t.Run("case sensitive", func(t *testing.T) {
		err := errors.New("execution reverted: Liquidation Mode")
		assert.Equal(t, ErrCodeEstGasApproval, EstimateErrorCode(err))
	})

	t.Run("decoded revert reason", func(t *testing.T) {
		err := fmt.Errorf("estimate addCollateral: %w", &revertError{data: encodeRevert(t, "Position in liquidation mode")})
		reason, ok := RevertReason(err)
		require.True(t, ok)
		assert.Equal(t, "Position in liquidation mode", reason)
		assert.Equal(t, ErrCodeLiquidationMode, EstimateErrorCode(err))
	})

	t.Run("other revert", func(t *testing.T) {
		err := &revertError{data: encodeRevert(t, "Debt too high")}
		assert.Equal(t, ErrCodeEstGasApproval, EstimateErrorCode(err))
		assert.Contains(t, ErrorText(err), "Debt too high")
	})
}
