package scan

import "fmt"

// Parameters represents user-configurable scan behavior.
// This is a domain value object that encapsulates business rules for
// scan execution.
type Parameters struct {
	// Resolution behavior
	MaxNestingDepth int  // Directory-group expansion bound
	MaxSubsiteDepth int  // Subsite recursion bound
	SkipHidden      bool // Skip hidden lists

	// Performance parameters
	BatchSize           int // Item page size for cursor pagination
	MaxThrottleRetries  int // Retry budget for rate-limit responses
	MaxTransientRetries int // Retry budget for other transient failures
	RequestsPerSecond   int // Client-side pacing of remote calls
}

// DefaultParameters returns sensible default scan parameters.
func DefaultParameters() *Parameters {
	return &Parameters{
		MaxNestingDepth:     5,
		MaxSubsiteDepth:     5,
		SkipHidden:          true,
		BatchSize:           500,
		MaxThrottleRetries:  5,
		MaxTransientRetries: 2,
		RequestsPerSecond:   10,
	}
}

// ApiConstraints defines the technical limits imposed by the platform
// APIs. These are infrastructure concerns, not user preferences.
type ApiConstraints struct {
	MinBatchSize int // Minimum valid page size (1)
	MaxBatchSize int // REST API page limit (5000)
	MaxRetries   int // Upper bound on any retry budget
	MaxDepth     int // Upper bound on nesting/subsite depth
}

// DefaultApiConstraints returns the platform API technical limits.
func DefaultApiConstraints() *ApiConstraints {
	return &ApiConstraints{
		MinBatchSize: 1,
		MaxBatchSize: 5000,
		MaxRetries:   10,
		MaxDepth:     10,
	}
}

// Validate checks the parameters against platform API constraints.
func (p *Parameters) Validate() error {
	c := DefaultApiConstraints()
	if p.BatchSize < c.MinBatchSize {
		return fmt.Errorf("batch_size must be at least %d, got: %d", c.MinBatchSize, p.BatchSize)
	}
	if p.BatchSize > c.MaxBatchSize {
		return fmt.Errorf("batch_size cannot exceed %d (REST API limit), got: %d", c.MaxBatchSize, p.BatchSize)
	}
	if p.MaxNestingDepth < 1 || p.MaxNestingDepth > c.MaxDepth {
		return fmt.Errorf("max_nesting_depth must be between 1 and %d, got: %d", c.MaxDepth, p.MaxNestingDepth)
	}
	if p.MaxSubsiteDepth < 1 || p.MaxSubsiteDepth > c.MaxDepth {
		return fmt.Errorf("max_subsite_depth must be between 1 and %d, got: %d", c.MaxDepth, p.MaxSubsiteDepth)
	}
	if p.MaxThrottleRetries < 0 || p.MaxThrottleRetries > c.MaxRetries {
		return fmt.Errorf("max_throttle_retries must be between 0 and %d, got: %d", c.MaxRetries, p.MaxThrottleRetries)
	}
	if p.MaxTransientRetries < 0 || p.MaxTransientRetries > c.MaxRetries {
		return fmt.Errorf("max_transient_retries must be between 0 and %d, got: %d", c.MaxRetries, p.MaxTransientRetries)
	}
	if p.RequestsPerSecond < 1 {
		return fmt.Errorf("requests_per_second must be positive, got: %d", p.RequestsPerSecond)
	}
	return nil
}

// ValidateAndSetDefaults fills zero values with defaults, then
// validates against constraints.
func (p *Parameters) ValidateAndSetDefaults() error {
	if p == nil {
		return fmt.Errorf("scan parameters cannot be nil")
	}
	d := DefaultParameters()
	if p.MaxNestingDepth == 0 {
		p.MaxNestingDepth = d.MaxNestingDepth
	}
	if p.MaxSubsiteDepth == 0 {
		p.MaxSubsiteDepth = d.MaxSubsiteDepth
	}
	if p.BatchSize == 0 {
		p.BatchSize = d.BatchSize
	}
	if p.MaxThrottleRetries == 0 {
		p.MaxThrottleRetries = d.MaxThrottleRetries
	}
	if p.MaxTransientRetries == 0 {
		p.MaxTransientRetries = d.MaxTransientRetries
	}
	if p.RequestsPerSecond == 0 {
		p.RequestsPerSecond = d.RequestsPerSecond
	}
	return p.Validate()
}
