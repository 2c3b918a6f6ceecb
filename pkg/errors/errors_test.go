package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorWrapsUnknown(t *testing.T) {
	err := FromError(fmt.Errorf("boom"))
	assert.Equal(t, ErrInternal.Code, err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.EqualError(t, errors.Unwrap(err), "boom")
}

func TestCloneKeepsCodeForErrorsIs(t *testing.T) {
	cloned := Clone(ErrNotFound, "support request not found")
	assert.True(t, errors.Is(cloned, ErrNotFound))
	assert.False(t, errors.Is(cloned, ErrForbidden))
	assert.Equal(t, "resource not found", ErrNotFound.Message)
}

func TestWithDetailsCopiesMap(t *testing.T) {
	details := map[string]string{"email": "Email is required"}
	err := WithDetails(ErrValidation, "invalid support request", details)
	details["email"] = "changed"

	assert.Equal(t, "Email is required", err.Details["email"])
	assert.Nil(t, ErrValidation.Details)
}
