package model

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/component-runtime/pkg/dispatcher"
	"github.com/morezero/component-runtime/pkg/events"
	"github.com/morezero/component-runtime/pkg/service"
)

const loaderLogPrefix = "model:loader"

// ManagerAPI is the slice of the service manager the loader and component
// create functions need: the non-blocking registration calls.
type ManagerAPI interface {
	RequestRegisterServer(stub service.StubAddress) bool
	RequestUnregisterServer(stub service.StubAddress) bool
	RequestRegisterClient(proxy service.ProxyAddress) bool
	RequestUnregisterClient(proxy service.ProxyAddress) bool
}

// threadHost pumps connect events to the components of one thread. It is the
// dispatcher consumer for a component thread; components are added during
// load, before the first event can arrive for them.
type threadHost struct {
	components []Component
}

func (h *threadHost) ProcessEvent(ev dispatcher.Event) {
	switch e := ev.(type) {
	case events.StubConnectEvent:
		for _, c := range h.components {
			if consumer, ok := c.(events.StubConnectConsumer); ok {
				consumer.ServiceClientConnection(e)
			}
		}
	case events.ProxyConnectEvent:
		for _, c := range h.components {
			if consumer, ok := c.(events.ProxyConnectConsumer); ok {
				consumer.ServiceConnection(e)
			}
		}
	default:
		slog.Warn(fmt.Sprintf("%s - thread host dropped event of kind %s", loaderLogPrefix, ev.Kind()))
	}
}

type loadedComponent struct {
	entry ComponentEntry
	comp  Component
}

type loadedThread struct {
	entry      ComponentThreadEntry
	disp       *dispatcher.Dispatcher
	source     service.SourceID
	host       *threadHost
	components []loadedComponent
}

// Loader instantiates models: one dispatcher per component thread, one create
// call per component, in declaration order. Unload reverses the walk. A
// loader drives at most one model at a time.
type Loader struct {
	registry *dispatcher.Registry
	mgr      ManagerAPI

	model   *Model
	threads []loadedThread
}

// NewLoader creates a loader bound to a dispatcher registry and a manager.
func NewLoader(registry *dispatcher.Registry, mgr ManagerAPI) *Loader {
	return &Loader{registry: registry, mgr: mgr}
}

// Load validates the model and brings it to life. On any failure everything
// already instantiated is torn down again and the model stays unloaded.
func (l *Loader) Load(m *Model) error {
	if l.model != nil {
		return fmt.Errorf("%s - loader already drives model %q", loaderLogPrefix, l.model.Name)
	}
	if m.IsLoaded() {
		return ErrModelLoaded
	}
	if err := m.Validate(); err != nil {
		return err
	}

	for ti := 0; ti < m.Threads().Len(); ti++ {
		thread := m.Threads().At(ti)
		if err := l.loadThread(thread); err != nil {
			l.unloadAll()
			return err
		}
	}

	l.model = m
	m.markLoaded(true)
	slog.Info(fmt.Sprintf("%s - model %q loaded, %d threads", loaderLogPrefix, m.Name, len(l.threads)))
	return nil
}

func (l *Loader) loadThread(thread ComponentThreadEntry) error {
	host := &threadHost{}
	disp := dispatcher.New(thread.Name, host, dispatcher.KindStubConnect, dispatcher.KindProxyConnect)
	source := l.registry.Attach(disp)
	if err := disp.Start(); err != nil {
		l.registry.Detach(source)
		return fmt.Errorf("%s - thread %q: %w", loaderLogPrefix, thread.Name, err)
	}

	lt := loadedThread{entry: thread, disp: disp, source: source, host: host}
	for ci := 0; ci < thread.Components.Len(); ci++ {
		entry := thread.Components.At(ci)
		comp, err := entry.Create(CreateContext{Entry: entry, Manager: l.mgr, Source: source})
		if err != nil {
			l.threads = append(l.threads, lt)
			return fmt.Errorf("%s - creating component %q: %w", loaderLogPrefix, entry.Role, err)
		}
		host.components = append(host.components, comp)
		lt.components = append(lt.components, loadedComponent{entry: entry, comp: comp})
		slog.Debug(fmt.Sprintf("%s - component %q up on thread %q", loaderLogPrefix, entry.Role, thread.Name))
	}
	l.threads = append(l.threads, lt)
	return nil
}

// Unload tears the loaded model down in reverse declaration order and joins
// every thread dispatcher before returning.
func (l *Loader) Unload(ctx context.Context) error {
	if l.model == nil {
		return nil
	}
	name := l.model.Name
	l.model.markLoaded(false)
	l.model = nil

	err := l.unloadAllCtx(ctx)
	slog.Info(fmt.Sprintf("%s - model %q unloaded", loaderLogPrefix, name))
	return err
}

func (l *Loader) unloadAll() {
	_ = l.unloadAllCtx(context.Background())
}

func (l *Loader) unloadAllCtx(ctx context.Context) error {
	var firstErr error
	for ti := len(l.threads) - 1; ti >= 0; ti-- {
		lt := l.threads[ti]
		for ci := len(lt.components) - 1; ci >= 0; ci-- {
			lc := lt.components[ci]
			if lc.entry.Delete != nil {
				lc.entry.Delete(lc.comp, lc.entry)
			}
		}
		lt.disp.PulseExit()
		if err := lt.disp.CompletionWait(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		l.registry.Detach(lt.source)
	}
	l.threads = nil
	return firstErr
}
