package records

import "errors"

// Sentinel errors for the records package.
var (
	// ErrStoreUnavailable is returned when the record directory cannot be
	// created. The store then serves empty histories and drops writes.
	ErrStoreUnavailable = errors.New("record store unavailable")

	// ErrInvalidPage is returned for a negative page or page size.
	ErrInvalidPage = errors.New("invalid page request")

	// ErrInvalidAccount is returned for account ids that cannot name a file
	// inside the record directory.
	ErrInvalidAccount = errors.New("invalid account id")

	// errUnknownFormat marks file content that is neither the current
	// format nor the legacy one.
	errUnknownFormat = errors.New("unrecognized history format")
)
