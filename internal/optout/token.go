// Package optout manages per-subscriber suppression: subscription-wide
// unsubscribes, per-slot mutes and per-occurrence skips. Tokens embedded in
// outgoing mail let recipients opt out with a single unauthenticated click
// while remaining unforgeable.
package optout

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"luach/internal/types"
)

// TokenCodec signs and verifies opt-out tokens. A token encodes the
// subscription ID, the slot (0 for subscription-wide) and the occurrence key
// (empty for non-occurrence scopes), authenticated with HMAC-SHA256 over a
// deployment secret.
type TokenCodec struct {
	secret []byte
}

// NewTokenCodec creates a codec from the shared secret.
func NewTokenCodec(secret string) *TokenCodec {
	return &TokenCodec{secret: []byte(secret)}
}

// Claims is the decoded content of a valid token.
type Claims struct {
	SubscriptionID int64
	Slot           int
	OccurrenceKey  string
}

// Encode produces a URL-safe token for the given scope.
func (c *TokenCodec) Encode(subscriptionID int64, slot int, occurrenceKey string) string {
	payload := fmt.Sprintf("%d:%d:%s", subscriptionID, slot, occurrenceKey)
	encoded := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return encoded + "." + c.sign(encoded)
}

// Decode verifies the signature and returns the claims. Any structural or
// signature failure yields ErrCodeValidationToken; the handler must not
// distinguish tampering from corruption to the caller.
func (c *TokenCodec) Decode(token string) (Claims, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok {
		return Claims{}, invalidToken(nil)
	}
	if !hmac.Equal([]byte(c.sign(encoded)), []byte(sig)) {
		return Claims{}, invalidToken(nil)
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Claims{}, invalidToken(err)
	}
	parts := strings.SplitN(string(raw), ":", 3)
	if len(parts) != 3 {
		return Claims{}, invalidToken(nil)
	}
	subID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Claims{}, invalidToken(err)
	}
	slot, err := strconv.Atoi(parts[1])
	if err != nil || slot < 0 {
		return Claims{}, invalidToken(err)
	}
	return Claims{SubscriptionID: subID, Slot: slot, OccurrenceKey: parts[2]}, nil
}

func (c *TokenCodec) sign(encoded string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func invalidToken(err error) error {
	return &types.AppError{
		Code:    types.ErrCodeValidationToken,
		Message: "invalid opt-out token",
		Err:     err,
	}
}
