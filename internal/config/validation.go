package config

import "fmt"

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
//
// Note that an empty GeminiAPIKey is deliberately valid: the service runs
// without a model and the coaching engine produces deterministic fallback
// plans. Everything that would make the process misbehave is rejected here,
// fail-fast, before any component is constructed.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.Addr == "" {
		return fmt.Errorf("%w: addr cannot be empty", ErrInvalidAddr)
	}

	if c.DatabasePath == "" {
		return fmt.Errorf("%w: database_path cannot be empty", ErrInvalidDatabasePath)
	}

	if c.MaxToolRounds < MinToolRounds || c.MaxToolRounds > MaxToolRounds {
		return fmt.Errorf("%w: must be between %d and %d, got %d",
			ErrInvalidMaxToolRounds, MinToolRounds, MaxToolRounds, c.MaxToolRounds)
	}

	if c.RequestsPerMinute < 1 {
		return fmt.Errorf("%w: must be at least 1, got %d",
			ErrInvalidRequestsPerMinute, c.RequestsPerMinute)
	}

	if c.MaxUploadSizeMB < 1 || c.MaxUploadSizeMB > 50 {
		return fmt.Errorf("%w: must be between 1 and 50 MB, got %d",
			ErrInvalidUploadSize, c.MaxUploadSizeMB)
	}

	return nil
}
