package app

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadengine/instance-sync/internal/config"
	"github.com/leadengine/instance-sync/internal/sync/coordinator"
)

// fakeCoordinator records lifecycle calls and blocks in Start until stopped
type fakeCoordinator struct {
	mu          sync.Mutex
	startCalled bool
	stopCalled  bool
	stop        chan struct{}
	stopOnce    sync.Once
}

func newFakeCoordinator() *fakeCoordinator {
	return &fakeCoordinator{stop: make(chan struct{})}
}

func (*fakeCoordinator) Collect(context.Context, string, coordinator.Options) (*coordinator.View, error) {
	return &coordinator.View{Instances: []coordinator.PublicInstance{}}, nil
}

func (f *fakeCoordinator) Start(ctx context.Context) error {
	f.mu.Lock()
	f.startCalled = true
	f.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-f.stop:
	}
	return nil
}

func (f *fakeCoordinator) Stop() error {
	f.mu.Lock()
	f.stopCalled = true
	f.mu.Unlock()
	f.stopOnce.Do(func() { close(f.stop) })
	return nil
}

func (f *fakeCoordinator) wasStartCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalled
}

func (f *fakeCoordinator) wasStopCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalled
}

// freeAddress returns a loopback address with an unused port
func freeAddress(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

// createTestApp builds an InstanceSyncApp around a fake coordinator
func createTestApp(t *testing.T, background bool) (*InstanceSyncApp, *fakeCoordinator, *atomic.Int32) {
	t.Helper()

	coord := newFakeCoordinator()
	cleanups := &atomic.Int32{}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithCancel(context.Background())
	app := &InstanceSyncApp{
		config:     &config.Config{Sync: config.SyncConfig{Background: background}},
		components: &Components{Coordinator: coord},
		httpServer: &http.Server{
			Addr:              freeAddress(t),
			Handler:           mux,
			ReadHeaderTimeout: time.Second,
		},
		ctx:        ctx,
		cancelFunc: cancel,
		cleanup:    func() { cleanups.Add(1) },
	}
	return app, coord, cleanups
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health") //nolint:noctx // test helper
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
}

func TestInstanceSyncApp_StartStop(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		background bool
	}{
		{name: "background refresh enabled", background: true},
		{name: "background refresh disabled", background: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, coord, cleanups := createTestApp(t, tt.background)

			errCh := make(chan error, 1)
			go func() { errCh <- app.Start() }()
			waitForServer(t, app.GetHTTPServer().Addr)

			if tt.background {
				assert.Eventually(t, coord.wasStartCalled, time.Second, 10*time.Millisecond)
			} else {
				assert.False(t, coord.wasStartCalled())
			}

			require.NoError(t, app.Stop(5*time.Second))
			require.NoError(t, <-errCh)

			assert.True(t, coord.wasStopCalled())
			assert.Equal(t, int32(1), cleanups.Load())
			assert.Error(t, app.ctx.Err())
		})
	}
}

func TestInstanceSyncApp_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	app, _, cleanups := createTestApp(t, false)
	app.Close()
	app.Close()
	assert.Equal(t, int32(1), cleanups.Load())
}

func TestInstanceSyncApp_Getters(t *testing.T) {
	t.Parallel()

	app, coord, _ := createTestApp(t, false)
	assert.True(t, app.GetConfig() == app.config)
	assert.Equal(t, coordinator.Coordinator(coord), app.Components().Coordinator)
	assert.NotNil(t, app.GetHTTPServer())
}
