// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Alignment constants
const (
	// DefaultOutputSize is the side of the aligned square canvas in pixels
	DefaultOutputSize = 1024

	// MaxOutputSize is the largest accepted aligned canvas side
	MaxOutputSize = 8192

	// DefaultReference is the canonical anchor layout used when none is configured
	DefaultReference = "ffhq"

	// DefaultWarpBackend is the resampling backend used when none is configured
	DefaultWarpBackend = "draw"
)

// Ledger constants
const (
	// DefaultLedgerDir is where per-image inverse transforms are stored
	DefaultLedgerDir = "result/npy"

	// DefaultBatchName is the stem of the integrated batch artifact
	DefaultBatchName = "integrated_affine"

	// DefaultLedgerBackend is the ledger store used when none is configured
	DefaultLedgerBackend = "file"
)

// Recovery constants
const (
	// DefaultRecoverWidth is the default width of recovered images
	DefaultRecoverWidth = 720

	// DefaultRecoverHeight is the default height of recovered images
	DefaultRecoverHeight = 1280
)

// Output constants
const (
	// DefaultImageFormat is the encoding used for written images
	DefaultImageFormat = "jpeg"

	// DefaultJPEGQuality is the JPEG quality used for written images
	DefaultJPEGQuality = 95
)
