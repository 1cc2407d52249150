package config

import (
	"fmt"
	"net"

	"go.uber.org/zap/zapcore"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the service configuration and returns validation errors.
func (c *ServiceConfig) Validate() []error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}
	if c.Server.QueueSize < 1 {
		errs = append(errs, &ValidationError{
			Field:   "server.queue_size",
			Message: fmt.Sprintf("queue size must be at least 1, got %d", c.Server.QueueSize),
		})
	}

	if c.Redis.Enabled {
		if _, _, err := net.SplitHostPort(c.Redis.Addr); err != nil {
			errs = append(errs, &ValidationError{
				Field:   "redis.addr",
				Message: fmt.Sprintf("invalid address format (expected host:port): %v", err),
			})
		}
	}
	if c.Buffer.MaxReadings < 1 {
		errs = append(errs, &ValidationError{
			Field:   "buffer.max_readings",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Buffer.MaxReadings),
		})
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, &ValidationError{
				Field:   "kafka.brokers",
				Message: "at least one broker is required when kafka is enabled",
			})
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, &ValidationError{
				Field:   "kafka.topic",
				Message: "topic is required when kafka is enabled",
			})
		}
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format '%s', must be json or console", c.Logging.Format),
		})
	}

	if c.Pipeline.Workers < 0 {
		errs = append(errs, &ValidationError{
			Field:   "pipeline.workers",
			Message: fmt.Sprintf("workers cannot be negative, got %d", c.Pipeline.Workers),
		})
	}

	if err := c.Detection.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errs
}
