package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate validates Config using struct tags and cross-field rules.
// Returns an error if validation fails, with actionable error messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateChannelFields(); err != nil {
		return err
	}

	return nil
}

// validateChannelFields ensures the fields a channel variant requires are
// actually present — "kind: webhook" with no webhook_url would otherwise
// fail silently at dial time instead of at startup.
func (c *Config) validateChannelFields() error {
	switch c.Channel.Kind {
	case ChannelWebhook:
		if c.Channel.WebhookURL == "" {
			return errors.New("channel.webhook_url is required when channel.kind is \"webhook\"")
		}
	case ChannelPush:
		if c.Channel.PushBaseURL == "" || c.Channel.PushChatID == "" {
			return errors.New("channel.push_base_url and channel.push_chat_id are required when channel.kind is \"push\"")
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			msg := formatSingleValidationError(e)
			messages = append(messages, msg)
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
