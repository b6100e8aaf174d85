package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luach/internal/types"
)

type fakeItem struct {
	email string
}

func (f fakeItem) Recipient() string { return f.email }

type fakeComposer struct {
	failFor map[string]bool
}

func (c *fakeComposer) Compose(_ context.Context, item fakeItem) (types.Message, error) {
	if c.failFor[item.email] {
		return types.Message{}, errors.New("render exploded")
	}
	return types.Message{
		Recipient: item.email,
		Subject:   "hello " + item.email,
		BodyText:  "body",
		Headers:   map[string]string{"X-Reference-ID": "ref-" + item.email},
	}, nil
}

type fakeProvider struct {
	failFor map[string]error
	sent    []types.SendInput
}

func (p *fakeProvider) Send(_ context.Context, input types.SendInput) (string, error) {
	if err := p.failFor[input.To]; err != nil {
		return "", err
	}
	p.sent = append(p.sent, input)
	return "msg-" + input.To, nil
}

type fakeRecorder struct {
	recorded []string // "email/msgID"
	failFor  map[string]bool
}

func (r *fakeRecorder) RecordSent(_ context.Context, item fakeItem, msgID string) error {
	if r.failFor[item.email] {
		return errors.New("ledger down")
	}
	r.recorded = append(r.recorded, item.email+"/"+msgID)
	return nil
}

type captureMetrics struct {
	engine       string
	sent, failed int
	calls        int
}

func (m *captureMetrics) RecordRun(_ context.Context, engine string, sent, failed int) {
	m.engine, m.sent, m.failed = engine, sent, failed
	m.calls++
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func (nopLogger) With(...any) types.Logger { return nopLogger{} }

func newTestDispatcher(composer *fakeComposer, provider *fakeProvider, recorder *fakeRecorder, metrics RunMetrics, dryRun bool) *Dispatcher[fakeItem] {
	return New(Config[fakeItem]{
		Engine:   "test",
		From:     types.EmailAddress{Name: "Test", Address: "noreply@example.com"},
		Composer: composer,
		Provider: provider,
		Recorder: recorder,
		Metrics:  metrics,
		DryRun:   dryRun,
		Logger:   nopLogger{},
	})
}

func TestDispatch_SendsInOrderAndRecordsEach(t *testing.T) {
	provider := &fakeProvider{}
	recorder := &fakeRecorder{}
	d := newTestDispatcher(&fakeComposer{}, provider, recorder, nil, false)

	res := d.Dispatch(context.Background(), []fakeItem{
		{email: "a@example.com"}, {email: "b@example.com"}, {email: "c@example.com"},
	})

	require.Equal(t, 3, res.Sent)
	assert.Zero(t, res.Failed)
	assert.Empty(t, res.Errors)

	require.Len(t, provider.sent, 3)
	assert.Equal(t, "a@example.com", provider.sent[0].To)
	assert.Equal(t, "c@example.com", provider.sent[2].To)
	assert.Equal(t, "noreply@example.com", provider.sent[0].From.Address)
	assert.Equal(t, "ref-a@example.com", provider.sent[0].ReferenceID)

	require.Equal(t, []string{
		"a@example.com/msg-a@example.com",
		"b@example.com/msg-b@example.com",
		"c@example.com/msg-c@example.com",
	}, recorder.recorded)
}

func TestDispatch_FailureIsIsolated(t *testing.T) {
	provider := &fakeProvider{failFor: map[string]error{
		"b@example.com": errors.New("smtp 550"),
	}}
	recorder := &fakeRecorder{}
	d := newTestDispatcher(&fakeComposer{}, provider, recorder, nil, false)

	res := d.Dispatch(context.Background(), []fakeItem{
		{email: "a@example.com"}, {email: "b@example.com"}, {email: "c@example.com"},
	})

	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)

	// The failed send must not reach the recorder; it stays eligible.
	assert.Equal(t, []string{
		"a@example.com/msg-a@example.com",
		"c@example.com/msg-c@example.com",
	}, recorder.recorded)
}

func TestDispatch_ComposeFailureSkipsTransport(t *testing.T) {
	provider := &fakeProvider{}
	recorder := &fakeRecorder{}
	composer := &fakeComposer{failFor: map[string]bool{"a@example.com": true}}
	d := newTestDispatcher(composer, provider, recorder, nil, false)

	res := d.Dispatch(context.Background(), []fakeItem{{email: "a@example.com"}})

	assert.Zero(t, res.Sent)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, provider.sent)
	assert.Empty(t, recorder.recorded)
}

func TestDispatch_DryRunTouchesNothing(t *testing.T) {
	provider := &fakeProvider{}
	recorder := &fakeRecorder{}
	d := newTestDispatcher(&fakeComposer{}, provider, recorder, nil, true)

	res := d.Dispatch(context.Background(), []fakeItem{
		{email: "a@example.com"}, {email: "b@example.com"},
	})

	assert.Equal(t, 2, res.Sent)
	assert.Empty(t, provider.sent)
	assert.Empty(t, recorder.recorded)
}

func TestDispatch_RecorderFailureTalliedButSendCounts(t *testing.T) {
	provider := &fakeProvider{}
	recorder := &fakeRecorder{failFor: map[string]bool{"a@example.com": true}}
	d := newTestDispatcher(&fakeComposer{}, provider, recorder, nil, false)

	res := d.Dispatch(context.Background(), []fakeItem{{email: "a@example.com"}})

	assert.Equal(t, 1, res.Sent)
	assert.Zero(t, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Len(t, provider.sent, 1)
}

func TestDispatch_MetricsReceiveTally(t *testing.T) {
	provider := &fakeProvider{failFor: map[string]error{
		"b@example.com": errors.New("down"),
	}}
	metrics := &captureMetrics{}
	d := newTestDispatcher(&fakeComposer{}, provider, &fakeRecorder{}, metrics, false)

	d.Dispatch(context.Background(), []fakeItem{
		{email: "a@example.com"}, {email: "b@example.com"},
	})

	assert.Equal(t, 1, metrics.calls)
	assert.Equal(t, "test", metrics.engine)
	assert.Equal(t, 1, metrics.sent)
	assert.Equal(t, 1, metrics.failed)
}

func TestNewMetrics_DisabledYieldsNoop(t *testing.T) {
	m, err := NewMetrics(context.Background(), false, "us-east-1", nopLogger{})

	require.NoError(t, err)
	assert.IsType(t, NoopMetrics{}, m)
}
