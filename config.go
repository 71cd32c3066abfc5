package trellis

import "time"

// Config holds configuration for a Client.
type Config struct {
	// BaseURL is the root of the Trellis REST API.
	BaseURL string

	// MaxConcurrency is the maximum number of batches in flight at once.
	MaxConcurrency int

	// BatchDelay is the debounce window between the first enqueue after
	// idle and the first dispatch.
	BatchDelay time.Duration

	// MaxBatchSize is the maximum number of operations pulled into a
	// single batch.
	MaxBatchSize int

	// RequestsPerSecond is the sustained mutation rate granted by the
	// service, used to refill the token bucket.
	RequestsPerSecond float64

	// BurstSize is the token bucket capacity, matching the short burst
	// the service tolerates above the sustained rate.
	BurstSize float64

	// RequestTimeout bounds a single HTTP attempt.
	RequestTimeout time.Duration

	// MaxAttempts is the number of tries per request before the
	// transport gives up on transient failures.
	MaxAttempts int

	// CacheSize is the maximum number of nodes held by the read cache.
	CacheSize int

	// JournalSize is the maximum number of failed operations retained
	// for inspection and replay.
	JournalSize int
}

// DefaultConfig returns a Config with sensible defaults matching the
// published Trellis API limits.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://api.trellis.dev/v1",
		MaxConcurrency:    3,
		BatchDelay:        50 * time.Millisecond,
		MaxBatchSize:      20,
		RequestsPerSecond: 5,
		BurstSize:         10,
		RequestTimeout:    15 * time.Second,
		MaxAttempts:       4,
		CacheSize:         1024,
		JournalSize:       256,
	}
}
