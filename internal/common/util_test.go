package common

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeRandHexString_LengthAndHex(t *testing.T) {
	const n = 16
	s, err := MakeRandHexString(n)
	require.NoError(t, err)
	assert.Len(t, s, n*2)
	_, err = hex.DecodeString(s)
	assert.NoError(t, err)
}

func TestMakeRandHexString_ZeroSize(t *testing.T) {
	s, err := MakeRandHexString(0)
	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestGenerateRandByteArray_Length(t *testing.T) {
	buf := GenerateRandByteArray(24)
	require.NotNil(t, buf)
	assert.Len(t, buf, 24)
}

func TestValidationError_AddAndError(t *testing.T) {
	v := &ValidationError{}
	assert.True(t, v.Empty())
	assert.NoError(t, v.OrNil())

	v.Add("email", "already registered")
	v.Add("mobile_number", "invalid format")
	v.Add("email", "too long")

	require.False(t, v.Empty())
	assert.Equal(t, []string{"already registered", "too long"}, v.Fields["email"])
	assert.Equal(t, "validation error: email: already registered; too long, mobile_number: invalid format", v.Error())

	var target *ValidationError
	require.True(t, errors.As(v.OrNil(), &target))
	assert.Same(t, v, target)
}

func TestNewValidationError(t *testing.T) {
	v := NewValidationError("parent", "folder cannot be its own parent")
	assert.Equal(t, map[string][]string{"parent": {"folder cannot be its own parent"}}, v.Fields)
}
