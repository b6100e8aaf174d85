package bounce

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luach/internal/types"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func (nopLogger) With(...any) types.Logger { return nopLogger{} }

type fakeSuppressor struct {
	marked  []string
	failing bool
}

func (f *fakeSuppressor) MarkBounced(_ context.Context, email string) (int64, error) {
	if f.failing {
		return 0, errors.New("db down")
	}
	f.marked = append(f.marked, email)
	return 1, nil
}

func permanentBounce(t *testing.T, email string) string {
	t.Helper()
	return string(wrapSNS(t, map[string]any{
		"notificationType": "Bounce",
		"bounce": map[string]any{
			"bounceType": "Permanent",
			"bouncedRecipients": []map[string]string{
				{"emailAddress": email},
			},
			"timestamp": "2025-03-13T10:00:00Z",
		},
		"mail": map[string]string{"messageId": "m-1"},
	}))
}

func TestProcessMessage_SuppressesInAllTargets(t *testing.T) {
	reminders := &fakeSuppressor{}
	digests := &fakeSuppressor{}
	w := NewWorker(nil, "q", []Suppressor{reminders, digests}, nopLogger{})

	ok := w.processMessage(context.Background(), permanentBounce(t, "gone@example.com"))

	assert.True(t, ok)
	assert.Equal(t, []string{"gone@example.com"}, reminders.marked)
	assert.Equal(t, []string{"gone@example.com"}, digests.marked)
}

func TestProcessMessage_UnparseableIsDropped(t *testing.T) {
	target := &fakeSuppressor{}
	w := NewWorker(nil, "q", []Suppressor{target}, nopLogger{})

	ok := w.processMessage(context.Background(), "not json")

	assert.True(t, ok, "poison messages must be deleted, not redelivered forever")
	assert.Empty(t, target.marked)
}

func TestProcessMessage_SuppressionFailureKeepsMessage(t *testing.T) {
	healthy := &fakeSuppressor{}
	broken := &fakeSuppressor{failing: true}
	w := NewWorker(nil, "q", []Suppressor{broken, healthy}, nopLogger{})

	ok := w.processMessage(context.Background(), permanentBounce(t, "gone@example.com"))

	assert.False(t, ok, "a failed suppression leaves the message for redelivery")
	// The healthy store was still updated; redelivery re-applies it
	// harmlessly because MarkBounced only touches active rows.
	assert.Equal(t, []string{"gone@example.com"}, healthy.marked)
}

func TestProcessMessage_TransientBounceDeletesWithoutAction(t *testing.T) {
	target := &fakeSuppressor{}
	w := NewWorker(nil, "q", []Suppressor{target}, nopLogger{})

	body := string(wrapSNS(t, map[string]any{
		"notificationType": "Bounce",
		"bounce": map[string]any{
			"bounceType": "Transient",
			"bouncedRecipients": []map[string]string{
				{"emailAddress": "full@example.com"},
			},
			"timestamp": "2025-03-13T10:00:00Z",
		},
		"mail": map[string]string{"messageId": "m-2"},
	}))
	ok := w.processMessage(context.Background(), body)

	assert.True(t, ok)
	assert.Empty(t, target.marked)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewWorker(nil, "q", nil, nopLogger{})
	require.NoError(t, w.Run(ctx))
}
