package market

import "errors"

// Sentinel errors for the market package.
var (
	// ErrInvalidOffer is returned when an offer fails validation.
	ErrInvalidOffer = errors.New("invalid offer")

	// ErrInvalidTemplate is returned when a template has no id.
	ErrInvalidTemplate = errors.New("invalid template")
)
