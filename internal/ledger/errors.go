package ledger

import "fmt"

// Code identifies why an operation was rejected. The names mirror the
// on-chain custom errors so off-chain tooling can treat both surfaces
// uniformly.
type Code string

const (
	CodeZeroAddress          Code = "ZERO_ADDRESS"
	CodeZeroValue            Code = "ZERO_VALUE"
	CodeArraysLengthMismatch Code = "ARRAYS_LENGTH_MISMATCH"
	CodeWrongSignature       Code = "WRONG_SIGNATURE"
	CodeUnauthorized         Code = "UNAUTHORIZED_ACCOUNT"
	CodeDeadlineExpired      Code = "DEADLINE_EXPIRED"
	CodeOrderProcessed       Code = "ORDER_ALREADY_PROCESSED"
	CodeSignIDUsed           Code = "SIGN_ID_ALREADY_USED"
	CodeInsufficientBalance  Code = "INSUFFICIENT_BALANCE"
	CodeNotEnoughFee         Code = "NOT_ENOUGH_FEE"
	CodeExceedsTokenLimit    Code = "EXCEEDS_TOKEN_LIMIT"
	CodeInvalidRefundAmount  Code = "INVALID_REFUND_AMOUNT"
	CodeInvalidLockWeeks     Code = "INVALID_LOCK_WEEKS"
	CodeMinCoefficientTooLow Code = "MIN_COEFFICIENT_TOO_LOW"
	CodeInvalidCoefficients  Code = "INVALID_COEFFICIENT_ORDER"
)

// OpError is a rejected operation. Rejections abort only their own call;
// nothing is fatal to the vault and no consumed identifier is released.
type OpError struct {
	Code Code
	Msg  string
}

func (e *OpError) Error() string {
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Is matches on Code so sentinels work with errors.Is regardless of Msg.
func (e *OpError) Is(target error) bool {
	t, ok := target.(*OpError)
	return ok && t.Code == e.Code
}

func reject(code Code, format string, args ...any) *OpError {
	return &OpError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is checks in callers and tests.
var (
	ErrZeroAddress          = &OpError{Code: CodeZeroAddress}
	ErrZeroValue            = &OpError{Code: CodeZeroValue}
	ErrArraysLengthMismatch = &OpError{Code: CodeArraysLengthMismatch}
	ErrWrongSignature       = &OpError{Code: CodeWrongSignature}
	ErrUnauthorized         = &OpError{Code: CodeUnauthorized}
	ErrDeadlineExpired      = &OpError{Code: CodeDeadlineExpired}
	ErrOrderProcessed       = &OpError{Code: CodeOrderProcessed}
	ErrSignIDUsed           = &OpError{Code: CodeSignIDUsed}
	ErrInsufficientBalance  = &OpError{Code: CodeInsufficientBalance}
	ErrNotEnoughFee         = &OpError{Code: CodeNotEnoughFee}
	ErrExceedsTokenLimit    = &OpError{Code: CodeExceedsTokenLimit}
	ErrInvalidRefundAmount  = &OpError{Code: CodeInvalidRefundAmount}
	ErrInvalidLockWeeks     = &OpError{Code: CodeInvalidLockWeeks}
	ErrMinCoefficientTooLow = &OpError{Code: CodeMinCoefficientTooLow}
	ErrInvalidCoefficients  = &OpError{Code: CodeInvalidCoefficients}
)
