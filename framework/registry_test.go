package framework

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aether-frame/aether-frame/contracts"
)

type fakeAdapter struct {
	initErr      error
	initCalls    int
	shutdownErr  error
	shutdownCall int
	available    bool
	streaming    bool
}

func (f *fakeAdapter) Initialize(ctx context.Context, settings map[string]any) error {
	f.initCalls++
	return f.initErr
}

func (f *fakeAdapter) Shutdown(ctx context.Context) error {
	f.shutdownCall++
	return f.shutdownErr
}

func (f *fakeAdapter) IsAvailable() bool          { return f.available }
func (f *fakeAdapter) SupportsLiveExecution() bool { return f.streaming }

func TestGetAdapterInitializesLazilyOnce(t *testing.T) {
	r := New()
	a := &fakeAdapter{available: true}
	r.RegisterAdapter("demo", a, map[string]any{"k": "v"}, contracts.FrameworkCapabilities{})

	got, err := r.GetAdapter(context.Background(), "demo")
	require.NoError(t, err)
	require.Same(t, a, got)
	require.Equal(t, 1, a.initCalls)

	_, err = r.GetAdapter(context.Background(), "demo")
	require.NoError(t, err)
	require.Equal(t, 1, a.initCalls, "second GetAdapter must not re-initialize")
}

func TestGetAdapterUnregisteredReturnsNilWithoutError(t *testing.T) {
	r := New()
	got, err := r.GetAdapter(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestGetAdapterPropagatesInitializeError(t *testing.T) {
	r := New()
	wantErr := errors.New("boom")
	r.RegisterAdapter("demo", &fakeAdapter{initErr: wantErr}, nil, contracts.FrameworkCapabilities{})

	_, err := r.GetAdapter(context.Background(), "demo")
	require.Error(t, err)
	require.ErrorIs(t, err, wantErr)
}

func TestInitializeAllStopsOnFirstError(t *testing.T) {
	r := New()
	wantErr := errors.New("boom")
	r.RegisterAdapter("ok", &fakeAdapter{}, nil, contracts.FrameworkCapabilities{})
	r.RegisterAdapter("bad", &fakeAdapter{initErr: wantErr}, nil, contracts.FrameworkCapabilities{})

	err := r.InitializeAll(context.Background())
	require.Error(t, err)
}

func TestShutdownAllCollectsErrorsWithoutStopping(t *testing.T) {
	r := New()
	good := &fakeAdapter{}
	bad := &fakeAdapter{shutdownErr: errors.New("boom")}
	r.RegisterAdapter("good", good, nil, contracts.FrameworkCapabilities{})
	r.RegisterAdapter("bad", bad, nil, contracts.FrameworkCapabilities{})

	errs := r.ShutdownAll(context.Background())
	require.Len(t, errs, 1)
	require.Equal(t, 1, good.shutdownCall)
	require.Equal(t, 1, bad.shutdownCall)
}

func TestGetAdapterStatusReflectsInitializationAndCapabilities(t *testing.T) {
	r := New()
	caps := contracts.FrameworkCapabilities{Streaming: true, MaxIterations: 12}
	r.RegisterAdapter("demo", &fakeAdapter{available: true}, nil, caps)

	_, ok := r.GetAdapterStatus("missing")
	require.False(t, ok)

	status, ok := r.GetAdapterStatus("demo")
	require.True(t, ok)
	require.False(t, status.Initialized)
	require.True(t, status.Available)
	require.Equal(t, caps, status.Capabilities)

	_, err := r.GetAdapter(context.Background(), "demo")
	require.NoError(t, err)

	status, ok = r.GetAdapterStatus("demo")
	require.True(t, ok)
	require.True(t, status.Initialized)
}

func TestGetAvailableFrameworksListsRegistered(t *testing.T) {
	r := New()
	r.RegisterAdapter("a", &fakeAdapter{}, nil, contracts.FrameworkCapabilities{})
	r.RegisterAdapter("b", &fakeAdapter{}, nil, contracts.FrameworkCapabilities{})

	names := r.GetAvailableFrameworks()
	require.ElementsMatch(t, []string{"a", "b"}, names)
}
