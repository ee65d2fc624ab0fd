package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tag constraints plus rules that can't be expressed in tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	if c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("BlockSize: must be a power of two (value: %d)", c.BlockSize)
	}
	if c.MaxFileSize > c.FsSize {
		return fmt.Errorf("MaxFileSize: must not exceed FsSize (value: %d > %d)", c.MaxFileSize, c.FsSize)
	}
	return nil
}

// formatValidationError reports the first failed field in a readable form
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Field(), e.Tag(), e.Value())
	}
	return err
}
