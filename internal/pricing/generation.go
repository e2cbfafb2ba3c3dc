package pricing

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// generationPattern matches the YYYYMMDDHHMM stamp embedded in artifact
// names, e.g. PUBLIC_DISPATCH_202511182020_0000000469036372.zip.
var generationPattern = regexp.MustCompile(`_(\d{12})_?`)

// ExtractGenerationID pulls the 12-digit generation stamp out of an artifact
// name and validates that it decodes as a real timestamp. The stamp orders
// artifacts within a tier: a smaller stamp must never overwrite a larger one.
func ExtractGenerationID(artifact string) (int64, error) {
	m := generationPattern.FindStringSubmatch(artifact)
	if m == nil {
		return 0, fmt.Errorf("%w: no generation stamp in %q", ErrMalformedFeed, artifact)
	}

	stamp := m[1]
	if _, err := time.Parse("200601021504", stamp); err != nil {
		return 0, fmt.Errorf("%w: generation stamp %q is not a timestamp", ErrMalformedFeed, stamp)
	}

	id, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: generation stamp %q: %v", ErrMalformedFeed, stamp, err)
	}
	return id, nil
}

// GenerationTime decodes a generation id back to its timestamp, in UTC.
func GenerationTime(id int64) (time.Time, error) {
	return time.Parse("200601021504", fmt.Sprintf("%012d", id))
}
