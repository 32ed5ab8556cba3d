package errors

import (
	"fmt"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := Encoding("embed query", fmt.Errorf("connection refused"))
	assert.Equal(t, "[ENCODING_FAILED] embed query: connection refused", err.Error())

	assert.Equal(t, "[NOT_FOUND] entry not found: abc", NotFound("abc").Error())
}

func TestIsCode_WalksWrappedChain(t *testing.T) {
	base := NotFound("abc")
	wrapped := pkgerrors.Wrap(fmt.Errorf("update: %w", base), "service")

	assert.True(t, IsCode(wrapped, ErrCodeNotFound))
	assert.False(t, IsCode(wrapped, ErrCodeDecoding))
	assert.False(t, IsCode(fmt.Errorf("plain"), ErrCodeNotFound))
}

func TestGetCodeFromError(t *testing.T) {
	assert.Equal(t, ErrCodeDecoding, GetCodeFromError(Decoding("bad blob"), ErrCodeInvalidArgument))
	assert.Equal(t, ErrCodeInvalidArgument, GetCodeFromError(fmt.Errorf("plain"), ErrCodeInvalidArgument))
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("backend down")
	err := Generation("complete", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "x", err.WithContext("k", "x").Context["k"])
}
