package errors_test

import (
	"fmt"
	"testing"

	"codeberg.org/mutker/dcsystem/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	errFactory := errors.New()

	assert.Equal(t, "Invalid log level", errFactory.New(errors.ErrInvalidLogLevel).Error())
	assert.Equal(t, "custom", errFactory.WithMessage(errors.ErrInternal, "custom").Error())
	assert.Equal(t, "Invalid interval value: -1s",
		errFactory.WithData(errors.ErrInvalidInterval, "-1s").Error())
	assert.Equal(t, "unknown_code", errFactory.New(errors.ErrorCode("unknown_code")).Error())
}

func TestWrapUnwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := errors.New().Wrap(errors.ErrPublish, cause)

	assert.Equal(t, "Failed to publish snapshot: disk full", err.Error())
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, errors.ErrPublish, err.Code())
}

func TestHasCode(t *testing.T) {
	inner := errors.New().New(errors.ErrReadConfig)
	outer := errors.New().Wrap(errors.ErrInitApp, inner)

	assert.True(t, errors.HasCode(outer, errors.ErrInitApp))
	assert.True(t, errors.HasCode(outer, errors.ErrReadConfig))
	assert.False(t, errors.HasCode(outer, errors.ErrTimeout))
	assert.False(t, errors.HasCode(nil, errors.ErrTimeout))
}

func TestWithMessageKeepsCode(t *testing.T) {
	err := errors.New().New(errors.ErrMissingConfig).WithMessage("broker missing")

	assert.Equal(t, errors.ErrMissingConfig, err.Code())
	assert.Equal(t, "broker missing", err.Error())
}
