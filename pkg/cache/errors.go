package cache

import "errors"

// Error kinds, matching the taxonomy in spec.md §7. Components wrap these
// with fmt.Errorf("...: %w", ...) for context; callers branch on the kind
// with errors.Is.
var (
	// ErrNotFound covers a missing file, an out-of-range index id, a
	// negative offset, or a member id outside an entry's capacity.
	ErrNotFound = errors.New("cache: not found")

	// ErrMalformed covers an unsupported reference-table format, an
	// unknown compression tag, a sector header mismatch, an uncompressed
	// size mismatch, a checksum-table digest mismatch, or EOF mid-record.
	ErrMalformed = errors.New("cache: malformed data")

	// ErrUnsupported covers a request the API does not serve, such as
	// CacheStore.Read on the meta index. Keys are never rejected: a key
	// with any zero word disables encryption instead.
	ErrUnsupported = errors.New("cache: unsupported operation")

	// ErrIOFailure covers an underlying file read/write failure that
	// isn't a clean not-found.
	ErrIOFailure = errors.New("cache: io failure")
)
