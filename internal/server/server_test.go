package server

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/morezero/component-runtime/pkg/model"
	"github.com/morezero/component-runtime/pkg/service"
)

const serverTestPrefix = "server:server_test"

func setLocalOnlyEnv(t *testing.T) {
	t.Helper()
	overrides := map[string]string{
		"REMOTE_ENABLED":   "false",
		"SHUTDOWN_TIMEOUT": "5s",
		"LOG_LEVEL":        "error",
	}
	for key, val := range overrides {
		os.Setenv(key, val)
	}
	t.Cleanup(func() {
		for key := range overrides {
			os.Unsetenv(key)
		}
	})
}

// guardSignals keeps a test-owned handler on SIGTERM so the self-delivered
// shutdown signal is never handled by the default action.
func guardSignals(t *testing.T) {
	t.Helper()
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM)
	t.Cleanup(func() { signal.Stop(ch) })
}

func lifecycleModel(t *testing.T, created, deleted *atomic.Int32) *model.Model {
	t.Helper()
	entry := model.ComponentEntry{
		Thread: "thread-a",
		Role:   "collector",
		Create: func(ctx model.CreateContext) (model.Component, error) {
			ctx.Manager.RequestRegisterServer(service.StubAddress{Address: service.Address{
				Interface: "more0.telemetry",
				Role:      "collector",
				Category:  service.CategoryLocal,
				Cookie:    service.CookieLocal,
				Source:    ctx.Source,
			}})
			created.Add(1)
			return struct{}{}, nil
		},
		Delete: func(model.Component, model.ComponentEntry) { deleted.Add(1) },
	}
	thread := model.ComponentThreadEntry{Name: "thread-a"}
	thread.Components.Add(entry)

	m := model.NewModel("server-test")
	if err := m.AddThread(thread); err != nil {
		t.Fatalf("%s - AddThread: %v", serverTestPrefix, err)
	}
	return m
}

func TestRun_LifecycleWithModel(t *testing.T) {
	setLocalOnlyEnv(t)
	guardSignals(t)

	var created, deleted atomic.Int32
	m := lifecycleModel(t, &created, &deleted)

	done := make(chan error, 1)
	go func() { done <- Run(Options{Model: m}) }()

	// Wait until the model is up, then ask the runtime to shut down.
	deadline := time.Now().Add(5 * time.Second)
	for created.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if created.Load() != 1 {
		t.Fatalf("%s - component never created", serverTestPrefix)
	}
	time.Sleep(50 * time.Millisecond)
	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("%s - sending shutdown signal: %v", serverTestPrefix, err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("%s - Run returned %v", serverTestPrefix, err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("%s - Run did not return after the shutdown signal", serverTestPrefix)
	}

	if deleted.Load() != 1 {
		t.Errorf("%s - component not deleted on shutdown", serverTestPrefix)
	}
	if m.IsLoaded() {
		t.Errorf("%s - model still loaded after shutdown", serverTestPrefix)
	}
}

func TestRun_FailsOnInvalidModel(t *testing.T) {
	setLocalOnlyEnv(t)

	// A model without threads cannot be loaded; Run must fail before the
	// signal wait instead of serving an empty husk.
	if err := Run(Options{Model: model.NewModel("broken")}); err == nil {
		t.Fatalf("%s - Run accepted an invalid model", serverTestPrefix)
	}
}

func TestRun_FailsOnInvalidConfig(t *testing.T) {
	setLocalOnlyEnv(t)
	os.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	defer os.Unsetenv("SHUTDOWN_TIMEOUT")

	if err := Run(Options{}); err == nil {
		t.Fatalf("%s - Run accepted a broken SHUTDOWN_TIMEOUT", serverTestPrefix)
	}
}
