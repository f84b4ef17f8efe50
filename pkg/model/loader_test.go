package model

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/morezero/component-runtime/pkg/dispatcher"
	"github.com/morezero/component-runtime/pkg/events"
	"github.com/morezero/component-runtime/pkg/service"
)

const loaderTestPrefix = "model:loader_test"

// fakeManager records registration calls so tests can check what a component
// create function did with the manager it was handed.
type fakeManager struct {
	mu    sync.Mutex
	stubs []service.StubAddress
}

func (m *fakeManager) RequestRegisterServer(stub service.StubAddress) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, stub)
	return true
}

func (m *fakeManager) RequestUnregisterServer(service.StubAddress) bool  { return true }
func (m *fakeManager) RequestRegisterClient(service.ProxyAddress) bool   { return true }
func (m *fakeManager) RequestUnregisterClient(service.ProxyAddress) bool { return true }

// journal records component lifecycle transitions in order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// journaledComponent also listens for client connections.
type journaledComponent struct {
	role string
	log  *journal
}

func (c *journaledComponent) ServiceClientConnection(ev events.StubConnectEvent) {
	c.log.add("event " + c.role + " " + ev.Status.String())
}

func journaled(log *journal) (CreateFunc, DeleteFunc) {
	create := func(ctx CreateContext) (Component, error) {
		log.add("create " + ctx.Entry.Role)
		return &journaledComponent{role: ctx.Entry.Role, log: log}, nil
	}
	del := func(_ Component, entry ComponentEntry) {
		log.add("delete " + entry.Role)
	}
	return create, del
}

func testModel(t *testing.T, log *journal) *Model {
	t.Helper()
	create, del := journaled(log)

	m := NewModel("runtime")
	first := thread("thread-a",
		ComponentEntry{Thread: "thread-a", Role: "collector", Create: create, Delete: del},
		ComponentEntry{Thread: "thread-a", Role: "archiver", Create: create, Delete: del},
	)
	second := thread("thread-b",
		ComponentEntry{Thread: "thread-b", Role: "tracer", Create: create, Delete: del},
	)
	if err := m.AddThread(first); err != nil {
		t.Fatalf("%s - AddThread: %v", loaderTestPrefix, err)
	}
	if err := m.AddThread(second); err != nil {
		t.Fatalf("%s - AddThread: %v", loaderTestPrefix, err)
	}
	return m
}

func unloadCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLoader_CreateAndDeleteOrder(t *testing.T) {
	log := &journal{}
	registry := dispatcher.NewRegistry()
	loader := NewLoader(registry, &fakeManager{})
	m := testModel(t, log)

	if err := loader.Load(m); err != nil {
		t.Fatalf("%s - Load: %v", loaderTestPrefix, err)
	}
	if !m.IsLoaded() {
		t.Errorf("%s - model not marked loaded", loaderTestPrefix)
	}
	if err := loader.Unload(unloadCtx(t)); err != nil {
		t.Fatalf("%s - Unload: %v", loaderTestPrefix, err)
	}
	if m.IsLoaded() {
		t.Errorf("%s - model still marked loaded after Unload", loaderTestPrefix)
	}

	want := []string{
		"create collector", "create archiver", "create tracer",
		"delete tracer", "delete archiver", "delete collector",
	}
	got := log.list()
	if len(got) != len(want) {
		t.Fatalf("%s - journal = %v, want %v", loaderTestPrefix, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%s - journal[%d] = %q, want %q (unload must reverse creation)",
				loaderTestPrefix, i, got[i], want[i])
		}
	}
}

func TestLoader_EventsReachComponents(t *testing.T) {
	log := &journal{}
	registry := dispatcher.NewRegistry()
	loader := NewLoader(registry, &fakeManager{})

	var source service.SourceID
	create := func(ctx CreateContext) (Component, error) {
		source = ctx.Source
		return &journaledComponent{role: ctx.Entry.Role, log: log}, nil
	}
	m := NewModel("runtime")
	if err := m.AddThread(thread("thread-a",
		ComponentEntry{Thread: "thread-a", Role: "collector", Create: create})); err != nil {
		t.Fatalf("%s - AddThread: %v", loaderTestPrefix, err)
	}
	if err := loader.Load(m); err != nil {
		t.Fatalf("%s - Load: %v", loaderTestPrefix, err)
	}
	defer func() { _ = loader.Unload(unloadCtx(t)) }()

	if source == service.SourceUnknown {
		t.Fatalf("%s - create context carried no source id", loaderTestPrefix)
	}
	if !registry.Deliver(source, events.StubConnectEvent{Status: service.StatusConnected}) {
		t.Fatalf("%s - delivery to the thread dispatcher failed", loaderTestPrefix)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(log.list()) > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	got := log.list()
	if len(got) != 1 || got[0] != "event collector "+service.StatusConnected.String() {
		t.Fatalf("%s - journal = %v, want the delivered connect event", loaderTestPrefix, got)
	}
}

func TestLoader_CreateFailureRollsBack(t *testing.T) {
	log := &journal{}
	registry := dispatcher.NewRegistry()
	loader := NewLoader(registry, &fakeManager{})

	create, del := journaled(log)
	boom := errors.New("collector refused to start")
	failing := func(ctx CreateContext) (Component, error) {
		log.add("create " + ctx.Entry.Role)
		return nil, boom
	}

	m := NewModel("runtime")
	_ = m.AddThread(thread("thread-a",
		ComponentEntry{Thread: "thread-a", Role: "collector", Create: create, Delete: del}))
	_ = m.AddThread(thread("thread-b",
		ComponentEntry{Thread: "thread-b", Role: "archiver", Create: failing, Delete: del}))

	err := loader.Load(m)
	if !errors.Is(err, boom) {
		t.Fatalf("%s - Load: err = %v, want the create failure", loaderTestPrefix, err)
	}
	if m.IsLoaded() {
		t.Errorf("%s - failed load left the model marked loaded", loaderTestPrefix)
	}

	got := log.list()
	want := []string{"create collector", "create archiver", "delete collector"}
	if len(got) != len(want) {
		t.Fatalf("%s - journal = %v, want %v", loaderTestPrefix, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%s - journal[%d] = %q, want %q", loaderTestPrefix, i, got[i], want[i])
		}
	}

	// The rolled-back loader is reusable.
	if err := loader.Load(testModel(t, &journal{})); err != nil {
		t.Fatalf("%s - Load after rollback: %v", loaderTestPrefix, err)
	}
	if err := loader.Unload(unloadCtx(t)); err != nil {
		t.Fatalf("%s - Unload: %v", loaderTestPrefix, err)
	}
}

func TestLoader_RejectsSecondModelAndReload(t *testing.T) {
	registry := dispatcher.NewRegistry()
	loader := NewLoader(registry, &fakeManager{})
	log := &journal{}

	m := testModel(t, log)
	if err := loader.Load(m); err != nil {
		t.Fatalf("%s - Load: %v", loaderTestPrefix, err)
	}
	if err := loader.Load(testModel(t, log)); err == nil {
		t.Errorf("%s - a busy loader accepted a second model", loaderTestPrefix)
	}

	other := NewLoader(registry, &fakeManager{})
	if err := other.Load(m); !errors.Is(err, ErrModelLoaded) {
		t.Errorf("%s - loading an already loaded model: err = %v, want ErrModelLoaded", loaderTestPrefix, err)
	}

	if err := loader.Unload(unloadCtx(t)); err != nil {
		t.Fatalf("%s - Unload: %v", loaderTestPrefix, err)
	}
	// Unload with nothing loaded is a no-op.
	if err := loader.Unload(unloadCtx(t)); err != nil {
		t.Errorf("%s - idle Unload: %v", loaderTestPrefix, err)
	}
}

func TestLoader_ComponentsRegisterThroughManager(t *testing.T) {
	mgr := &fakeManager{}
	registry := dispatcher.NewRegistry()
	loader := NewLoader(registry, mgr)

	create := func(ctx CreateContext) (Component, error) {
		ctx.Manager.RequestRegisterServer(service.StubAddress{Address: service.Address{
			Interface: "more0.telemetry",
			Role:      ctx.Entry.Role,
			Category:  service.CategoryLocal,
			Cookie:    service.CookieLocal,
			Source:    ctx.Source,
		}})
		return struct{}{}, nil
	}
	m := NewModel("runtime")
	_ = m.AddThread(thread("thread-a",
		ComponentEntry{Thread: "thread-a", Role: "collector", Create: create}))

	if err := loader.Load(m); err != nil {
		t.Fatalf("%s - Load: %v", loaderTestPrefix, err)
	}
	defer func() { _ = loader.Unload(unloadCtx(t)) }()

	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if len(mgr.stubs) != 1 || mgr.stubs[0].Role != "collector" {
		t.Fatalf("%s - manager saw %d stub registrations, want the collector's", loaderTestPrefix, len(mgr.stubs))
	}
}
