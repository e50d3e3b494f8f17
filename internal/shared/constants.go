package shared

import "time"

// HTTP Client Configuration
const (
	DefaultHTTPTimeout = 2 * time.Minute
	// Added to the polling bound for submit, fetch, upload and insert
	GenerationTimeoutMargin = 5 * time.Minute
	DefaultShutdownTimeout  = 2 * time.Minute
)

// Cache Configuration
const (
	UserInfoCacheTTL = 1 * time.Minute
)

// API Configuration
const (
	APIKeyLength        = 32
	MaxPromptLength     = 1000
	DefaultListLimit    = 50
	MaxListLimit        = 200
	DefaultUserCredits  = 3
	DownloadSlugMaxChar = 20
	MaxRequestBodySize  = "16K"
)

// Polling Configuration
const (
	PredictionPollingInterval = 1 * time.Second
	PredictionPollingMaxWait  = 5 * time.Minute
)

// Storage Configuration
const (
	MaxArtifactBytes    = 32 << 20
	ArtifactContentType = "image/png"
	ArtifactExtension   = ".png"
	DefaultBucket       = "emojis"
	DefaultPublicURL    = "https://storage.googleapis.com"
)
