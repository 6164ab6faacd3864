package settlement

import (
	"errors"
	"fmt"

	"market-engine/src/engine"
	"market-engine/src/fixedpoint"
	"market-engine/src/store"
)

// ValidationError rejects malformed input before the store is touched.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// InsufficientFundsError explains why a buy remainder could not rest. It is
// never raised for matched trades, which are skipped instead.
type InsufficientFundsError struct {
	RequiredCents  int64
	AvailableCents int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need $%s, have $%s",
		fixedpoint.FormatDollars(e.RequiredCents), fixedpoint.FormatDollars(e.AvailableCents))
}

// InsufficientSharesError explains why a sell remainder could not rest.
type InsufficientSharesError struct {
	Position            engine.Position
	RequiredMicroShares int64
	HeldMicroShares     int64
}

func (e *InsufficientSharesError) Error() string {
	return fmt.Sprintf("insufficient %s shares: need %.6f, hold %.6f",
		e.Position, fixedpoint.ToShares(e.RequiredMicroShares), fixedpoint.ToShares(e.HeldMicroShares))
}

type AlreadyResolvedError struct {
	MarketID string
	Outcome  engine.Position
}

func (e *AlreadyResolvedError) Error() string {
	return fmt.Sprintf("market %s already resolved %s", e.MarketID, e.Outcome)
}

type NotAuthorizedError struct {
	Action string
}

func (e *NotAuthorizedError) Error() string {
	return "not authorized to " + e.Action
}

// TransientFailure means every retry lost to concurrent writers. Nothing was
// committed and the caller may try again.
type TransientFailure struct {
	Attempts int
	Err      error
}

func (e *TransientFailure) Error() string {
	return fmt.Sprintf("transient failure after %d attempts, please retry: %v", e.Attempts, e.Err)
}

func (e *TransientFailure) Unwrap() error {
	return e.Err
}

// translate maps store level failures onto the public taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var exhausted *store.RetryExhaustedError
	if errors.As(err, &exhausted) {
		return &TransientFailure{Attempts: exhausted.Attempts, Err: exhausted.Err}
	}
	return err
}

// ErrorKind is a short stable label for err, used in metrics and responses.
func ErrorKind(err error) string {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		funds      *InsufficientFundsError
		shares     *InsufficientSharesError
		resolved   *AlreadyResolvedError
		auth       *NotAuthorizedError
		transient  *TransientFailure
	)
	switch {
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &funds):
		return "insufficient_funds"
	case errors.As(err, &shares):
		return "insufficient_shares"
	case errors.As(err, &resolved):
		return "already_resolved"
	case errors.As(err, &auth):
		return "not_authorized"
	case errors.As(err, &transient):
		return "transient"
	default:
		return "internal"
	}
}
