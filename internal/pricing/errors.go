package pricing

import "errors"

var (
	// ErrMalformedFeed marks an artifact that cannot be parsed. The tier is
	// dropped for the cycle; other tiers and regions still merge.
	ErrMalformedFeed = errors.New("pricing: malformed feed artifact")

	// ErrUnknownTier is returned when a merge names a tier the store does
	// not recognize.
	ErrUnknownTier = errors.New("pricing: unknown tier")

	// ErrNotFound is returned when no record exists for a (region, bucket).
	ErrNotFound = errors.New("pricing: record not found")
)
