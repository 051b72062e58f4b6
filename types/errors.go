package types

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Error codes surfaced to callers in result entries
const (
	ErrCodeAPI               = "error-api"
	ErrCodeMaxAmount         = "error-max-amount"
	ErrCodeMaxRemovable      = "error-max-removable"
	ErrCodeDetails           = "error-details"
	ErrCodeEstGasApproval    = "error-est-gas-approval"
	ErrCodeLiquidationMode   = "error-liquidation-mode"
	ErrCodeStepApprove       = "error-step-approve"
	ErrCodeStepDeposit       = "error-step-deposit"
	ErrCodeStepClaim         = "error-step-claim"
	ErrCodeStep              = "error-step"
	ErrCodeUserRejected      = "error-user-rejected-action"
	ErrCodeSwapNotAvailable  = "error-swap-not-available"
	liquidationModeSubstring = "liquidation mode"
)

// RevertReason extracts the Error(string) reason carried by an RPC data error
func RevertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return "", false
	}
	encoded, ok := dataErr.ErrorData().(string)
	if !ok {
		return "", false
	}
	data, decErr := hexutil.Decode(encoded)
	if decErr != nil {
		return "", false
	}
	reason, unpackErr := abi.UnpackRevert(data)
	if unpackErr != nil {
		return "", false
	}
	return reason, true
}

// ErrorText is the error message with any decoded revert reason appended
func ErrorText(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if reason, ok := RevertReason(err); ok && !strings.Contains(msg, reason) {
		msg += ": " + reason
	}
	return msg
}

// ErrorMessage maps err to a user-facing code. Swap-routing and wallet
// rejection errors get their own codes, everything else the fallback.
func ErrorMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	msg := ErrorText(err)
	switch {
	case strings.Contains(msg, "Bad swap type"):
		return ErrCodeSwapNotAvailable
	case strings.Contains(msg, "user rejected action"):
		return ErrCodeUserRejected
	default:
		return fallback
	}
}

// EstimateErrorCode maps a gas or approval estimation failure. A revert
// mentioning "liquidation mode" (case-sensitive) has its own code.
func EstimateErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if strings.Contains(ErrorText(err), liquidationModeSubstring) {
		return ErrCodeLiquidationMode
	}
	return ErrorMessage(err, ErrCodeEstGasApproval)
}
