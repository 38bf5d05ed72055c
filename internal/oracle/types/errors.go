package types

import "fmt"

// ErrorCode enumerates every typed failure the engine can return, matching
// the variant table documented for the get_exchange_rate ingress call.
type ErrorCode int

const (
	AnonymousPrincipalNotAllowed ErrorCode = iota
	Pending
	CryptoBaseAssetNotFound
	CryptoQuoteAssetNotFound
	StablecoinRateNotFound
	StablecoinRateTooFewRates
	StablecoinRateZeroRate
	ForexInvalidTimestamp
	ForexBaseAssetNotFound
	ForexQuoteAssetNotFound
	ForexAssetsNotFound
	RateLimited
	NotEnoughCycles
	FailedToAcceptCycles
	InconsistentRatesReceived
	Other
)

var codeNames = map[ErrorCode]string{
	AnonymousPrincipalNotAllowed: "AnonymousPrincipalNotAllowed",
	Pending:                      "Pending",
	CryptoBaseAssetNotFound:      "CryptoBaseAssetNotFound",
	CryptoQuoteAssetNotFound:     "CryptoQuoteAssetNotFound",
	StablecoinRateNotFound:       "StablecoinRateNotFound",
	StablecoinRateTooFewRates:    "StablecoinRateTooFewRates",
	StablecoinRateZeroRate:       "StablecoinRateZeroRate",
	ForexInvalidTimestamp:        "ForexInvalidTimestamp",
	ForexBaseAssetNotFound:       "ForexBaseAssetNotFound",
	ForexQuoteAssetNotFound:      "ForexQuoteAssetNotFound",
	ForexAssetsNotFound:          "ForexAssetsNotFound",
	RateLimited:                  "RateLimited",
	NotEnoughCycles:              "NotEnoughCycles",
	FailedToAcceptCycles:         "FailedToAcceptCycles",
	InconsistentRatesReceived:    "InconsistentRatesReceived",
	Other:                        "Other",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "Unknown"
}

// OracleError is the typed error surfaced to a get_exchange_rate caller.
// Description is only populated for Other; every other variant is
// self-describing via its Code.
type OracleError struct {
	Code        ErrorCode
	Description string
}

func (e *OracleError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code.String()
}

// NewError builds a typed error for a named variant.
func NewError(code ErrorCode) *OracleError {
	return &OracleError{Code: code}
}

// NewOtherError wraps an unanticipated failure in the Other escape hatch.
func NewOtherError(description string) *OracleError {
	return &OracleError{Code: Other, Description: description}
}

// Is lets errors.Is match on error code regardless of description, so
// callers can write errors.Is(err, types.NewError(types.Pending)).
func (e *OracleError) Is(target error) bool {
	t, ok := target.(*OracleError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}
