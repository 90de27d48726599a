package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingAdapter struct {
	sent []Message
	err  error
}

func (a *recordingAdapter) Send(ctx context.Context, message Message, destination string) error {
	if a.err != nil {
		return a.err
	}
	a.sent = append(a.sent, message)
	return nil
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	adapter := &recordingAdapter{}
	r.Register("inproc", "In-Process", adapter)

	resolved, ok := r.Resolve("inproc")
	require.True(t, ok)
	require.Equal(t, adapter, resolved)

	require.NoError(t, resolved.Send(context.Background(), Message{MessageID: "m1"}, "dest"))
	require.Len(t, adapter.sent, 1)
}

func TestRegistry_ResolveMissingReturnsFalse(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Resolve("missing")
	require.False(t, ok)
}

func TestRegistry_MustResolveReturnsConfigurationMissing(t *testing.T) {
	r := NewRegistry()
	_, err := r.MustResolve("missing")
	require.Error(t, err)
}

func TestRegistry_NamesListsRegistered(t *testing.T) {
	r := NewRegistry()
	r.Register("a", "A", &recordingAdapter{})
	r.Register("b", "B", &recordingAdapter{})
	require.ElementsMatch(t, []string{"a", "b"}, r.Names())
}

func TestRegistry_SendFailurePropagates(t *testing.T) {
	r := NewRegistry()
	adapter := &recordingAdapter{err: errors.New("boom")}
	r.Register("inproc", "In-Process", adapter)

	resolved, _ := r.Resolve("inproc")
	err := resolved.Send(context.Background(), Message{}, "dest")
	require.Error(t, err)
}
