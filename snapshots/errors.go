package snapshots

import "errors"

// Sentinel errors of the snapshots package, checkable with errors.Is.
var (
	// ErrNilStoreSupplied is returned when a nil snapshot store is supplied.
	ErrNilStoreSupplied = errors.New("nil snapshot store supplied")

	// ErrNilCacheSupplied is returned when a nil cache is supplied as an option.
	ErrNilCacheSupplied = errors.New("nil snapshot cache supplied")

	// ErrNilLoggerSupplied is returned when a nil logger is supplied as an option.
	ErrNilLoggerSupplied = errors.New("nil logger supplied")

	// ErrZeroFrequencySupplied is returned when a snapshot policy is built
	// with a frequency of zero.
	ErrZeroFrequencySupplied = errors.New("zero snapshot frequency supplied")

	// ErrZeroRetainedSupplied is returned when a retention is configured to
	// keep zero snapshots; retention prunes old captures, it never deletes all of them.
	ErrZeroRetainedSupplied = errors.New("zero retained snapshots supplied")

	// ErrZeroIntervalSupplied is returned when a retention cleanup interval
	// of zero or below is supplied.
	ErrZeroIntervalSupplied = errors.New("zero cleanup interval supplied")
)
