package optout

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luach/internal/types"
)

func TestTokenRoundTrip(t *testing.T) {
	codec := NewTokenCodec("secret")

	cases := []Claims{
		{SubscriptionID: 1},
		{SubscriptionID: 42, Slot: 3},
		{SubscriptionID: 42, Slot: 3, OccurrenceKey: "abc123"},
		{SubscriptionID: 0, OccurrenceKey: "digest:a@example.com"},
		{SubscriptionID: 9, Slot: 2, OccurrenceKey: "key:with:colons"},
	}
	for _, want := range cases {
		token := codec.Encode(want.SubscriptionID, want.Slot, want.OccurrenceKey)
		got, err := codec.Decode(token)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestTokenIsURLSafe(t *testing.T) {
	token := NewTokenCodec("secret").Encode(42, 1, "0123abcdef")
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
	assert.NotContains(t, token, "=")
}

func TestDecodeRejectsTampering(t *testing.T) {
	codec := NewTokenCodec("secret")
	token := codec.Encode(42, 1, "")

	tampered := []string{
		"",
		"not-a-token",
		token + "x",
		strings.Replace(token, ".", "x", 1),
		"A" + token[1:],
	}
	for _, bad := range tampered {
		_, err := codec.Decode(bad)
		require.Error(t, err)

		var appErr *types.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, types.ErrCodeValidationToken, appErr.Code)
	}
}

func TestDecodeRejectsForeignSecret(t *testing.T) {
	token := NewTokenCodec("secret-a").Encode(42, 1, "")
	_, err := NewTokenCodec("secret-b").Decode(token)
	assert.Error(t, err)
}
