package utils

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/vitwit/w3session/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ValidateConfig checks a session configuration against its struct tags. A
// non-production config must name one of the known test networks.
func ValidateConfig(config *types.Config) error {
	if config == nil {
		return &types.SessionError{
			Code:    types.ErrConfigError,
			Message: "config is required",
		}
	}

	if err := validate.Struct(config); err != nil {
		return &types.SessionError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("validation failed: %v", err),
		}
	}

	return nil
}

// ParseConfig parses and validates a session Config from JSON.
func ParseConfig(data []byte) (*types.Config, error) {
	var config types.Config

	if err := json.Unmarshal(data, &config); err != nil {
		return nil, &types.SessionError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("failed to parse session config: %v", err),
		}
	}

	if err := ValidateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
