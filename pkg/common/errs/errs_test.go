package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	validation := fmt.Errorf("register: %w", Validation("email", "required"))
	violation := fmt.Errorf("update: %w", &SecurityViolation{Field: "phone", LinkingID: "abc"})
	unavailable := fmt.Errorf("create: %w", Unavailable(StoreClinical, "create", context.DeadlineExceeded))

	assert.True(t, IsValidation(validation))
	assert.False(t, IsValidation(violation))
	assert.True(t, IsSecurityViolation(violation))
	assert.True(t, IsUnavailable(unavailable))
	assert.True(t, errors.Is(unavailable, context.DeadlineExceeded))

	var ve *ValidationError
	if assert.True(t, errors.As(validation, &ve)) {
		assert.Equal(t, "email", ve.Field)
	}
	assert.Contains(t, violation.Error(), `"phone"`)
}
