package appeal

import (
	"errors"
	"fmt"
)

// Error kinds. Every operation specific error below wraps one of them.
var (
	ErrInvalidState        = errors.New("invalid state")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrWindowClosed        = errors.New("funding window closed")
	ErrAlreadyFunded       = errors.New("already funded")
	ErrAlreadyRequested    = errors.New("arbitration already requested")
	ErrAlreadyReported     = errors.New("answer already reported")
	ErrHashMismatch        = errors.New("hash mismatch")
	ErrInsufficientPayment = errors.New("insufficient payment")
)

var (
	ErrNoActiveDispute     = fmt.Errorf("%w: no dispute to appeal", ErrInvalidState)
	ErrNotYetRuled         = fmt.Errorf("%w: there is no ruling yet", ErrInvalidState)
	ErrNotRuled            = fmt.Errorf("%w: the status should be ruled", ErrInvalidState)
	ErrAlreadyRuled        = fmt.Errorf("%w: dispute already ruled", ErrInvalidState)
	ErrRoundNotFound       = fmt.Errorf("%w: round does not exist", ErrInvalidState)
	ErrUnknownDispute      = fmt.Errorf("%w: unknown dispute", ErrInvalidState)
	ErrUnauthorizedCaller  = fmt.Errorf("%w: only the arbitrator may rule", ErrUnauthorized)
	ErrAppealPeriodOver    = fmt.Errorf("%w: funding must be made within the appeal period", ErrWindowClosed)
	ErrLoserPeriodOver     = fmt.Errorf("%w: funding must be made within the first half appeal period", ErrWindowClosed)
	ErrRulingAlreadyFunded = fmt.Errorf("%w: appeal fee has already been paid", ErrAlreadyFunded)
	ErrHistoryMismatch     = fmt.Errorf("%w: history input provided did not match the expected hash", ErrHashMismatch)
	ErrInsufficientFee     = fmt.Errorf("%w: value does not cover the arbitration cost", ErrInsufficientPayment)
	ErrStaleAnswerBond     = fmt.Errorf("%w: current answer bond exceeds max previous", ErrInvalidState)
	ErrInvalidMultipliers  = errors.New("invalid multipliers")
)
