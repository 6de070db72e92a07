package sandbox

import "time"

// Policy defines the execution bounds applied to every command.
type Policy struct {
	Shell          string        // Interpreter invoked as `<shell> -c <command>`
	MaxOutputBytes int           // Per-stream capture budget; <= 0 disables capping
	DefaultTimeout time.Duration // Used when a request carries no timeout
	MinTimeout     time.Duration
	MaxTimeout     time.Duration
}

// DefaultPolicy returns the limits the service ships with.
func DefaultPolicy() Policy {
	return Policy{
		Shell:          "/bin/sh",
		MaxOutputBytes: 200000,
		DefaultTimeout: 5 * time.Second,
		MinTimeout:     1 * time.Second,
		MaxTimeout:     60 * time.Second,
	}
}

// ClampTimeout maps a requested timeout onto [MinTimeout, MaxTimeout].
// Zero or negative values select DefaultTimeout.
func (p Policy) ClampTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		d = p.DefaultTimeout
	}
	if p.MinTimeout > 0 && d < p.MinTimeout {
		d = p.MinTimeout
	}
	if p.MaxTimeout > 0 && d > p.MaxTimeout {
		d = p.MaxTimeout
	}
	return d
}

// TimeoutInRange reports whether d lies within the policy bounds.
func (p Policy) TimeoutInRange(d time.Duration) bool {
	if p.MinTimeout > 0 && d < p.MinTimeout {
		return false
	}
	if p.MaxTimeout > 0 && d > p.MaxTimeout {
		return false
	}
	return true
}
