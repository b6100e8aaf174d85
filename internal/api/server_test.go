package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luach/internal/optout"
	"luach/internal/types"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func (nopLogger) With(...any) types.Logger { return nopLogger{} }

type fakeOptOutStore struct {
	upserts []types.OptOut
}

func (f *fakeOptOutStore) Upsert(_ context.Context, o types.OptOut) error {
	f.upserts = append(f.upserts, o)
	return nil
}

type fakeSubs struct {
	known map[int64]bool
}

func (f *fakeSubs) GetByID(_ context.Context, id int64) (*types.Subscription, error) {
	if !f.known[id] {
		return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
	}
	return &types.Subscription{ID: id, Status: types.StatusActive}, nil
}

type fakeDigests struct {
	unsubscribed []string
}

func (f *fakeDigests) Unsubscribe(_ context.Context, email string) (int64, error) {
	f.unsubscribed = append(f.unsubscribed, email)
	return 1, nil
}

type fixture struct {
	codec   *optout.TokenCodec
	store   *fakeOptOutStore
	digests *fakeDigests
	handler http.Handler
}

func newFixture() *fixture {
	codec := optout.NewTokenCodec("test-secret")
	store := &fakeOptOutStore{}
	digests := &fakeDigests{}
	subs := &fakeSubs{known: map[int64]bool{42: true}}
	server := NewServer(codec, optout.NewService(store, subs, nopLogger{}), digests, nopLogger{})
	return &fixture{codec: codec, store: store, digests: digests, handler: server.Handler()}
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := newFixture().get(t, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestUnsubscribe_SubscriptionWide(t *testing.T) {
	f := newFixture()
	token := f.codec.Encode(42, 0, "")

	rec := f.get(t, "/unsubscribe?token="+url.QueryEscape(token))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsubscribed")
	require.Len(t, f.store.upserts, 1)
	assert.Equal(t, types.OptOut{SubscriptionID: 42}, f.store.upserts[0])
}

func TestUnsubscribe_OccurrenceScoped(t *testing.T) {
	f := newFixture()
	token := f.codec.Encode(42, 3, "deadbeef")

	rec := f.get(t, "/unsubscribe?token="+url.QueryEscape(token))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.store.upserts, 1)
	assert.Equal(t, types.OptOut{SubscriptionID: 42, Slot: 3, OccurrenceKey: "deadbeef"}, f.store.upserts[0])
}

func TestUnsubscribe_DigestSubscriber(t *testing.T) {
	f := newFixture()
	token := f.codec.Encode(0, 0, "digest:a@example.com")

	rec := f.get(t, "/unsubscribe?token="+url.QueryEscape(token))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a@example.com"}, f.digests.unsubscribed)
	assert.Empty(t, f.store.upserts)
}

func TestUnsubscribe_BadRequests(t *testing.T) {
	f := newFixture()

	rec := f.get(t, "/unsubscribe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.get(t, "/unsubscribe?token=garbage")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid or expired link")
}

func TestUnsubscribe_UnknownSubscription(t *testing.T) {
	f := newFixture()
	token := f.codec.Encode(999, 0, "")

	rec := f.get(t, "/unsubscribe?token="+url.QueryEscape(token))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, f.store.upserts)
}

func TestCreateOptOut_JSON(t *testing.T) {
	f := newFixture()
	token := f.codec.Encode(42, 1, "")

	body, err := json.Marshal(map[string]string{"token": token})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/optouts", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, f.store.upserts, 1)
	assert.Equal(t, int64(42), f.store.upserts[0].SubscriptionID)
}

func TestCreateOptOut_MissingToken(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodPost, "/v1/optouts", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.store.upserts)
}
