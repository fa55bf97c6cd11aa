// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"net/http"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/datakettle/snapsvc/internal/config"
)

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		ListenAddr:      "127.0.0.1:0",
		ReadTimeout:     1 * time.Second,
		WriteTimeout:    1 * time.Second,
		IdleTimeout:     10 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 2 * time.Second,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

func TestNewManagerRequiresAPIHandler(t *testing.T) {
	if _, err := NewManager(testServerConfig(), Deps{}); err == nil {
		t.Fatal("expected error for missing API handler")
	}
}

func TestManagerStartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr, err := NewManager(testServerConfig(), Deps{APIHandler: okHandler()})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- mgr.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

func TestManagerShutdownHooksLIFO(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr, err := NewManager(testServerConfig(), Deps{APIHandler: okHandler()})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	var order []string
	mgr.RegisterShutdownHook("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	mgr.RegisterShutdownHook("second", func(context.Context) error {
		order = append(order, "second")
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() {
		errChan <- mgr.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-errChan

	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Errorf("expected LIFO hook order, got %v", order)
	}
}

func TestManagerShutdownNotStarted(t *testing.T) {
	mgr, err := NewManager(testServerConfig(), Deps{APIHandler: okHandler()})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	if err := mgr.Shutdown(context.Background()); err != ErrManagerNotStarted {
		t.Errorf("expected ErrManagerNotStarted, got %v", err)
	}
}
