package hubd

import (
	"errors"
	"net/http"

	"stablecore/native/bank"
	nativecommon "stablecore/native/common"
	"stablecore/native/leadrate"
	"stablecore/native/mintinghub"
	"stablecore/native/position"
	"stablecore/native/roller"
	"stablecore/native/stablecoin"
)

// Error is a request failure rendered to clients.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Message }

func badRequest(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "invalid_argument", Message: msg}
}

type errorClass struct {
	status int
	code   string
	errs   []error
}

var errorClasses = []errorClass{
	{http.StatusNotFound, "not_found", []error{
		position.ErrNotFound,
		mintinghub.ErrChallengeNotFound,
		mintinghub.ErrNothingPending,
		mintinghub.ErrUnknownCollateral,
		bank.ErrUnknownToken,
	}},
	{http.StatusForbidden, "permission_denied", []error{
		position.ErrNotHub,
		position.ErrNotOwner,
		position.ErrNotQualified,
		leadrate.ErrNotQualified,
		stablecoin.ErrNotMinter,
	}},
	{http.StatusConflict, "failed_precondition", []error{
		position.ErrTooLate,
		position.ErrHot,
		position.ErrExpired,
		position.ErrAlive,
		position.ErrClosed,
		position.ErrChallenged,
		position.ErrAlreadyInitialized,
		stablecoin.ErrAlreadyRegistered,
		mintinghub.ErrTooEarly,
		leadrate.ErrChangePending,
		leadrate.ErrNoPendingRate,
		leadrate.ErrNotInitialized,
	}},
	{http.StatusUnprocessableEntity, "insufficient", []error{
		position.ErrInsufficientCollateral,
		position.ErrLimitExceeded,
		position.ErrChallengeTooSmall,
		position.ErrPriceTooHigh,
		position.ErrRepaidTooMuch,
		mintinghub.ErrUnexpectedPrice,
		mintinghub.ErrLeaveNoDust,
		roller.ErrRollSettlement,
		roller.ErrCollateralMismatch,
		roller.ErrNotWrappedCollateral,
		stablecoin.ErrInsufficientBalance,
		bank.ErrInsufficientBalance,
		bank.ErrWrapNotConfigured,
	}},
	{http.StatusBadRequest, "invalid_argument", []error{
		position.ErrInvalidExpiration,
		position.ErrInvalidAmount,
		mintinghub.ErrInvalidParams,
		mintinghub.ErrInvalidAmount,
		roller.ErrInvalidPlan,
		leadrate.ErrRateTooHigh,
		stablecoin.ErrInvalidAmount,
		stablecoin.ErrInvalidReservePPM,
		bank.ErrInvalidAmount,
	}},
	{http.StatusServiceUnavailable, "paused", []error{
		nativecommon.ErrModulePaused,
	}},
}

func classify(err error) (int, string) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status, apiErr.Code
	}
	for _, class := range errorClasses {
		for _, target := range class.errs {
			if errors.Is(err, target) {
				return class.status, class.code
			}
		}
	}
	return http.StatusInternalServerError, "internal"
}

func codeFor(err error) string {
	_, code := classify(err)
	return code
}

// toAPIError converts an engine failure into its client form. Internal
// failures are not echoed back.
func toAPIError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	return &Error{Status: status, Code: code, Message: msg}
}
