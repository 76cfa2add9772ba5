package apperrors

import "errors"

const (
	CodeNoHazardData       = "no_hazard_data"
	CodeNoForecastData     = "no_forecast_data"
	CodeUnsupportedHorizon = "unsupported_horizon"
	CodeHazardLookupFailed = "hazard_lookup_failed"
	CodeInvalidRequest     = "invalid_request"
	CodeRateLimited        = "rate_limited"
	CodeInternal           = "internal"
)

// AppError carries a stable code alongside the message shown to callers.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func Wrap(code, message string, err error) error {
	return &AppError{Code: code, Message: message, Err: err}
}

func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Code returns the code of the first AppError in err's chain, or CodeInternal.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// Message returns the caller-facing message without wrapped transport detail.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}
