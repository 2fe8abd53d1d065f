// Package constants provides shared constants used across the codebase.
package constants

// File upload constants
const (
	// MaxUploadSize is the maximum file upload size in bytes (100MB)
	MaxUploadSize = 100 << 20

	// MaxLandmarksSize is the maximum size of an uploaded landmark document in bytes
	MaxLandmarksSize = 1 << 20
)

// Server constants
const (
	// DefaultPort is the default HTTP listen port
	DefaultPort = 8080

	// RequestTimeoutSeconds bounds a single alignment or recovery request
	RequestTimeoutSeconds = 120
)
