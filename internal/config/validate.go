package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if c.Library.MaxPages < 1 {
		return errors.New("library.max_pages must be positive")
	}
	return c.validateLogging()
}

func (c *Config) validateBackend() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("backend.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.base_url must be http or https, got %q", c.Backend.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("backend.base_url has no host: %q", c.Backend.BaseURL)
	}
	if c.Backend.RequestTimeout < 0 {
		return errors.New("backend.request_timeout must not be negative")
	}
	if c.Backend.UploadTimeout < 0 {
		return errors.New("backend.upload_timeout must not be negative")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.MaxAttempts < 1 {
		return errors.New("workflow.max_attempts must be positive")
	}
	if c.Workflow.PollDelayMS < 1 {
		return errors.New("workflow.poll_delay_ms must be positive")
	}
	if c.Workflow.ExpectedShorts < 1 {
		return errors.New("workflow.expected_shorts must be positive")
	}
	switch c.Workflow.PollMode {
	case PollModeShorts, PollModeStatus:
	default:
		return fmt.Errorf("workflow.poll_mode must be %q or %q, got %q", PollModeShorts, PollModeStatus, c.Workflow.PollMode)
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("api.port must be between 1 and 65535, got %d", c.API.Port)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognised", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "auto", "json", "text":
	default:
		return fmt.Errorf("logging.format must be auto, json or text, got %q", c.Logging.Format)
	}
	return nil
}
