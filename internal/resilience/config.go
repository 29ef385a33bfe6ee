package resilience

import "time"

// Scorer breaker settings. The capture loop scores every frame, so a dead
// model server must stop being called quickly and be tried again soon.
const (
	ScorerThreshold         = 3
	ScorerResetTimeout      = 5 * time.Second
	ScorerHalfOpenSuccesses = 2
)

// Config holds circuit breaker settings. Zero fields take the scorer values.
type Config struct {
	Threshold         int              // consecutive failures before opening
	ResetTimeout      time.Duration    // wait before letting a trial call through
	HalfOpenSuccesses int              // trial successes needed to close
	Now               func() time.Time // defaults to time.Now
}

// ScorerConfig returns settings for per-frame remote scoring calls.
func ScorerConfig() Config {
	return Config{
		Threshold:         ScorerThreshold,
		ResetTimeout:      ScorerResetTimeout,
		HalfOpenSuccesses: ScorerHalfOpenSuccesses,
	}
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = ScorerThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = ScorerResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = ScorerHalfOpenSuccesses
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
