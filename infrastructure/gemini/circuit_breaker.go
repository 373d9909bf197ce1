package gemini

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-secure-circle/domain/chat"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// CircuitBreakerConfig holds configuration for circuit breaker behavior
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold" json:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	MaxRequests      uint32        `yaml:"max_requests" json:"max_requests"`
}

// DefaultCircuitBreakerConfig returns the breaker defaults. The breaker is off unless enabled.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:          false,
		FailureThreshold: 5,
		Timeout:          60 * time.Second,
		MaxRequests:      3,
	}
}

// CircuitBreakerProvider wraps a provider and fails fast while the upstream keeps failing.
// It never retries a call.
type CircuitBreakerProvider struct {
	provider chat.ProviderPort
	config   CircuitBreakerConfig
	breaker  *gobreaker.CircuitBreaker
}

func NewCircuitBreakerProvider(provider chat.ProviderPort, name string, config CircuitBreakerConfig) *CircuitBreakerProvider {
	cb := &CircuitBreakerProvider{
		provider: provider,
		config:   config,
	}
	if !config.Enabled {
		return cb
	}

	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("gemini-%s", name),
		MaxRequests: config.MaxRequests,
		Interval:    0,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// a cancelled caller says nothing about upstream health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"breaker":    name,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Info("Circuit breaker state changed")
		},
	}
	cb.breaker = gobreaker.NewCircuitBreaker(settings)
	return cb
}

// GenerateContent implements chat.ProviderPort with circuit breaker protection
func (c *CircuitBreakerProvider) GenerateContent(ctx context.Context, payload *chat.Payload) (*chat.GenerateResponse, error) {
	if c.breaker == nil {
		return c.provider.GenerateContent(ctx, payload)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.provider.GenerateContent(ctx, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logrus.WithField("state", c.breaker.State().String()).Warn("Circuit breaker is open, failing fast")
			return nil, fmt.Errorf("Gemini API unavailable: circuit breaker %s", c.breaker.State())
		}
		return nil, err
	}

	return result.(*chat.GenerateResponse), nil
}

// State reports the breaker state, "disabled" when the breaker is off.
func (c *CircuitBreakerProvider) State() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}
