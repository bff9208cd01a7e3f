package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/keyfold/keyfold/internal/errors"
)

func TestWrapValidationError(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		assert.Nil(t, WrapValidationError(nil))
	})

	t.Run("non-nil error", func(t *testing.T) {
		err := WrapValidationError(assert.AnError)
		assert.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
	})
}

func TestNotBlank(t *testing.T) {
	assert.NoError(t, NotBlank.Validate("webhook"))
	assert.Error(t, NotBlank.Validate(""))
	assert.Error(t, NotBlank.Validate("   "))
}

func TestNoWhitespace(t *testing.T) {
	assert.NoError(t, NoWhitespace.Validate("payment-provider-key"))
	assert.Error(t, NoWhitespace.Validate(" padded"))
	assert.Error(t, NoWhitespace.Validate("padded "))
}

func TestMaxBytes(t *testing.T) {
	rule := MaxBytes(4)
	assert.NoError(t, rule.Validate([]byte("abcd")))
	assert.Error(t, rule.Validate([]byte("abcde")))
	assert.Error(t, rule.Validate("not bytes"))
}
