package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"codeberg.org/mutker/boostctl/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestFactoryMessages(t *testing.T) {
	f := errors.New()

	err := f.New(errors.ErrInvalidMode)
	assert.Equal(t, "Invalid performance mode", err.Error())
	assert.Equal(t, errors.ErrInvalidMode, err.Code())

	err = f.WithData(errors.ErrInvalidArgument, "mode 7")
	assert.Equal(t, "Invalid argument provided: mode 7", err.Error())

	err = f.WithMessage(errors.ErrorCode("custom_code"), "custom")
	assert.Equal(t, "custom", err.Error())

	assert.Equal(t, "unregistered", errors.GetErrorMessage("unregistered"))
}

func TestWrapUnwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := errors.New().Wrap(errors.ErrOperationFailed, cause)

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "Operation failed: disk full", err.Error())
}

func TestCodeLookup(t *testing.T) {
	inner := errors.New().New(errors.ErrInvalidLogLevel)
	outer := errors.New().Wrap(errors.ErrInvalidConfig, inner)
	wrapped := fmt.Errorf("load: %w", outer)

	assert.Equal(t, errors.ErrInvalidConfig, errors.CodeOf(wrapped))
	assert.True(t, errors.HasCode(wrapped, errors.ErrInvalidLogLevel))
	assert.True(t, errors.HasCode(wrapped, errors.ErrInvalidConfig))
	assert.False(t, errors.HasCode(wrapped, errors.ErrTimeout))
	assert.Equal(t, errors.ErrorCode(""), errors.CodeOf(stderrors.New("plain")))
}
