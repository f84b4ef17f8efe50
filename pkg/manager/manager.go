// Package manager implements the per-process service manager: the single
// goroutine that owns the service directory, drives the remote router and
// delivers connect events to stub and proxy dispatchers. All mutation is
// serialized through one dispatcher; the public API only ever enqueues.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/component-runtime/pkg/directory"
	"github.com/morezero/component-runtime/pkg/dispatcher"
	"github.com/morezero/component-runtime/pkg/events"
	"github.com/morezero/component-runtime/pkg/router"
	"github.com/morezero/component-runtime/pkg/service"
)

const logPrefix = "manager:manager"

// ThreadName is the fixed name of the manager dispatcher.
const ThreadName = "_AREG_SERVICE_MANAGER_THREAD_"

// Manager owns the service directory of a process. Stubs and proxies register
// through the non-blocking Request* methods; remote-origin changes arrive
// through the router.Consumer callbacks. Every path funnels into the same
// dispatcher, which is the ordering guarantee: two commands posted from the
// same goroutine take effect in posting order.
type Manager struct {
	registry *dispatcher.Registry
	disp     *dispatcher.Dispatcher

	mu     sync.Mutex
	dir    *directory.Directory
	rt     router.Router
	cookie service.Cookie
}

// New creates a manager bound to the given dispatcher registry. A nil router
// leaves remote servicing switched off.
func New(registry *dispatcher.Registry, rt router.Router) *Manager {
	if rt == nil {
		rt = router.NewNoOpRouter()
	}
	m := &Manager{
		registry: registry,
		dir:      directory.New(),
		rt:       rt,
		cookie:   service.CookieLocal,
	}
	m.disp = dispatcher.New(ThreadName, m, dispatcher.KindServiceManager)
	return m
}

// UseRouter swaps the remote router. It must be called before Start; the
// usual shape is constructing the router with the manager as its consumer.
func (m *Manager) UseRouter(rt router.Router) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rt = rt
}

// Start spins up the manager dispatcher. Commands posted before Start are
// dropped.
func (m *Manager) Start() error {
	if err := m.disp.Start(); err != nil {
		return fmt.Errorf("%s - starting: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - service manager started", logPrefix))
	return nil
}

// IsStarted reports whether the manager dispatcher is pumping commands.
func (m *Manager) IsStarted() bool { return m.disp.IsReady() }

// Stop requests an orderly shutdown and waits for the dispatcher to drain.
func (m *Manager) Stop(ctx context.Context) error {
	if !m.disp.PostEvent(command{kind: cmdShutdownService}) {
		return nil
	}
	return m.disp.CompletionWait(ctx)
}

// Registry returns the dispatcher registry connect events are routed through.
func (m *Manager) Registry() *dispatcher.Registry { return m.registry }

func (m *Manager) post(c command) bool {
	return m.disp.PostEvent(c)
}

// RequestRegisterServer announces a stub. The stub is entered into the
// directory on the manager goroutine; waiting clients are resolved against it.
func (m *Manager) RequestRegisterServer(stub service.StubAddress) bool {
	return m.post(command{kind: cmdRegisterStub, stub: stub})
}

// RequestUnregisterServer withdraws a stub. Its clients fall back to waiting.
func (m *Manager) RequestUnregisterServer(stub service.StubAddress) bool {
	return m.post(command{kind: cmdUnregisterStub, stub: stub})
}

// RequestRegisterClient subscribes a proxy to its (interface, role) pair.
func (m *Manager) RequestRegisterClient(proxy service.ProxyAddress) bool {
	return m.post(command{kind: cmdRegisterProxy, proxy: proxy})
}

// RequestUnregisterClient removes a proxy subscription.
func (m *Manager) RequestUnregisterClient(proxy service.ProxyAddress) bool {
	return m.post(command{kind: cmdUnregisterProxy, proxy: proxy})
}

// RequestConfigureConnection enables remote servicing and asks the router to
// read its endpoint from the given properties file; an empty path leaves the
// router's default endpoint in effect. The connection is not started.
func (m *Manager) RequestConfigureConnection(path string) bool {
	return m.post(command{kind: cmdConfigureConnection, path: path})
}

// RequestStartConnection enables remote servicing, configures it from path
// when it has no endpoint yet, and starts it.
func (m *Manager) RequestStartConnection(path string) bool {
	return m.post(command{kind: cmdStartConnection, path: path})
}

// RequestStartNetConnection points the router at host:port and starts it.
func (m *Manager) RequestStartNetConnection(host string, port uint16) bool {
	return m.post(command{kind: cmdStartNetConnection, host: host, port: port})
}

// RequestStopConnection stops remote servicing.
func (m *Manager) RequestStopConnection() bool {
	return m.post(command{kind: cmdStopConnection})
}

// RequestEnableRemoteService flips the remote servicing switch. Disabling
// while started also stops the connection.
func (m *Manager) RequestEnableRemoteService(enable bool) bool {
	return m.post(command{kind: cmdSetEnableService, enable: enable})
}

// RequestStopRoutingClient drops every imported endpoint, disconnects from the
// router, discards the commands still queued and stops the manager dispatcher.
func (m *Manager) RequestStopRoutingClient() bool {
	return m.post(command{kind: cmdStopRoutingClient})
}

// IsRoutingServiceConfigured reports whether the router has an endpoint.
func (m *Manager) IsRoutingServiceConfigured() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rt.IsRemoteServicingConfigured()
}

// IsRoutingServiceStarted reports whether the router connection is live.
func (m *Manager) IsRoutingServiceStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rt.IsRemoteServicingStarted()
}

// IsRoutingServiceEnabled reports whether remote servicing is switched on.
func (m *Manager) IsRoutingServiceEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rt.IsRemoteServicingEnabled()
}

// RegisterRemoteStub implements router.Consumer.
func (m *Manager) RegisterRemoteStub(stub service.StubAddress) {
	m.post(command{kind: cmdRegisterStub, stub: stub})
}

// RegisterRemoteProxy implements router.Consumer.
func (m *Manager) RegisterRemoteProxy(proxy service.ProxyAddress) {
	m.post(command{kind: cmdRegisterProxy, proxy: proxy})
}

// UnregisterRemoteStub implements router.Consumer.
func (m *Manager) UnregisterRemoteStub(stub service.StubAddress, cookie service.Cookie) {
	m.post(command{kind: cmdUnregisterStub, stub: stub, cookie: cookie})
}

// UnregisterRemoteProxy implements router.Consumer.
func (m *Manager) UnregisterRemoteProxy(proxy service.ProxyAddress, cookie service.Cookie) {
	m.post(command{kind: cmdUnregisterProxy, proxy: proxy, cookie: cookie})
}

// RemoteServiceStarted implements router.Consumer.
func (m *Manager) RemoteServiceStarted(channel service.Channel) {
	m.post(command{kind: cmdRegisterConnection, channel: channel})
}

// RemoteServiceStopped implements router.Consumer.
func (m *Manager) RemoteServiceStopped(channel service.Channel) {
	m.post(command{kind: cmdUnregisterConnection, channel: channel})
}

// RemoteServiceConnectionLost implements router.Consumer.
func (m *Manager) RemoteServiceConnectionLost(channel service.Channel) {
	m.post(command{kind: cmdLostConnection, channel: channel})
}

// GetServiceList implements router.Consumer: a snapshot of every stub and
// proxy whose cookie matches, or all of them when cookie is CookieAny. Unlike
// the commands this runs on the caller's goroutine, so it takes the lock the
// command handlers mutate under.
func (m *Manager) GetServiceList(cookie service.Cookie) ([]service.StubAddress, []service.ProxyAddress) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stubs []service.StubAddress
	var proxies []service.ProxyAddress
	for _, pair := range m.dir.Snapshot() {
		if pair.Server.Addr.IsValid() && (cookie == service.CookieAny || pair.Server.Addr.Cookie == cookie) {
			stubs = append(stubs, pair.Server.Addr)
		}
		for _, c := range pair.Clients {
			if cookie == service.CookieAny || c.Addr.Cookie == cookie {
				proxies = append(proxies, c.Addr)
			}
		}
	}
	return stubs, proxies
}

// ProcessEvent implements dispatcher.Consumer. It runs on the manager
// goroutine and is the only place the directory is mutated.
func (m *Manager) ProcessEvent(ev dispatcher.Event) {
	c, ok := ev.(command)
	if !ok {
		slog.Warn(fmt.Sprintf("%s - dropped foreign event of kind %s", logPrefix, ev.Kind()))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch c.kind {
	case cmdRegisterStub:
		m.registerServer(c.stub)
	case cmdUnregisterStub:
		m.unregisterServer(c.stub)
	case cmdRegisterProxy:
		m.registerClient(c.proxy)
	case cmdUnregisterProxy:
		m.unregisterClient(c.proxy)
	case cmdConfigureConnection:
		m.rt.EnableRemoteServicing(true)
		if err := m.rt.ConfigureRemoteServicing(c.path); err != nil {
			slog.Error(fmt.Sprintf("%s - configuring remote servicing: %v", logPrefix, err))
		}
	case cmdStartConnection:
		m.startConnection(c.path)
	case cmdStartNetConnection:
		m.rt.SetRemoteServiceAddress(c.host, c.port)
		m.startConnection("")
	case cmdStopConnection:
		m.rt.StopRemoteServicing()
	case cmdSetEnableService:
		if !c.enable && m.rt.IsRemoteServicingStarted() {
			m.rt.StopRemoteServicing()
		}
		m.rt.EnableRemoteServicing(c.enable)
	case cmdRegisterConnection:
		m.registerConnection(c.channel)
	case cmdUnregisterConnection:
		slog.Info(fmt.Sprintf("%s - remote servicing stopped, dropping imported endpoints", logPrefix))
		m.dropRemote()
	case cmdLostConnection:
		slog.Warn(fmt.Sprintf("%s - remote connection lost, dropping imported endpoints", logPrefix))
		m.dropRemote()
	case cmdStopRoutingClient:
		m.dropRemote()
		m.rt.StopRemoteServicing()
		m.disp.RemoveEvents(false)
		m.disp.PulseExit()
	case cmdShutdownService:
		m.shutdown()
	default:
		slog.Warn(fmt.Sprintf("%s - unknown command %d", logPrefix, c.kind))
	}
}

// stampChannel rewrites the delivery channel from the address identity,
// defaulting an unknown cookie to the local process.
func stampChannel(a *service.Address) {
	cookie := a.Cookie
	if cookie == service.CookieUnknown {
		cookie = service.CookieLocal
	}
	a.SetChannel(service.Channel{Cookie: cookie, Source: a.Source, Target: a.Source})
}

func (m *Manager) registerServer(stub service.StubAddress) {
	stampChannel(&stub.Address)
	if stub.IsLocal(m.cookie) && stub.IsPublic() {
		m.rt.RegisterService(stub)
	}

	server, resolved, err := m.dir.RegisterServer(stub)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - registering %s: %v", logPrefix, stub, err))
		return
	}
	slog.Debug(fmt.Sprintf("%s - registered %s, %d clients resolved", logPrefix, stub, len(resolved)))
	for _, client := range resolved {
		m.sendConnected(server, client)
	}
}

func (m *Manager) unregisterServer(stub service.StubAddress) {
	if stub.Cookie == service.CookieUnknown {
		stub.Cookie = service.CookieLocal
	}
	if stub.IsLocal(m.cookie) && stub.IsPublic() {
		m.rt.UnregisterService(stub)
	}

	gone, affected, ok := m.dir.UnregisterServer(stub)
	if !ok {
		return
	}
	slog.Debug(fmt.Sprintf("%s - unregistered %s, %d clients waiting", logPrefix, stub, len(affected)))
	for _, client := range affected {
		m.sendDisconnected(gone, client)
	}
}

func (m *Manager) registerClient(proxy service.ProxyAddress) {
	stampChannel(&proxy.Address)
	if proxy.IsLocal(m.cookie) && proxy.IsPublic() {
		m.rt.RegisterServiceClient(proxy)
	}

	server, client, err := m.dir.RegisterClient(proxy)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - registering %s: %v", logPrefix, proxy, err))
		return
	}
	slog.Debug(fmt.Sprintf("%s - registered %s, status %s", logPrefix, proxy, client.Status))
	m.sendConnected(server, client)
}

func (m *Manager) unregisterClient(proxy service.ProxyAddress) {
	if proxy.Cookie == service.CookieUnknown {
		proxy.Cookie = service.CookieLocal
	}
	if proxy.IsLocal(m.cookie) && proxy.IsPublic() {
		m.rt.UnregisterServiceClient(proxy)
	}

	server, removed, ok := m.dir.UnregisterClient(proxy)
	if !ok {
		return
	}
	slog.Debug(fmt.Sprintf("%s - unregistered %s", logPrefix, proxy))
	m.sendDisconnected(server, removed)
}

// sendConnected notifies both endpoints of a fresh pairing. Nothing is sent
// unless the directory marked the client connected.
func (m *Manager) sendConnected(server directory.ServerInfo, client directory.ClientInfo) {
	if !client.IsConnected() {
		return
	}
	stub, proxy := server.Addr, client.Addr
	if stub.IsLocal(m.cookie) && stub.Source != service.SourceUnknown {
		m.registry.Deliver(stub.Source, events.StubConnectEvent{
			Proxy:  proxy,
			Stub:   stub,
			Status: service.StatusConnected,
		})
	}
	if proxy.IsLocal(m.cookie) && proxy.Source != service.SourceUnknown {
		m.registry.Deliver(proxy.Source, events.ProxyConnectEvent{
			Proxy:  proxy,
			Stub:   stub,
			Status: service.StatusConnected,
		})
	}
}

// sendDisconnected tells the client its server went away. Clients that were
// never announced a state are skipped; a local proxy is always informed even
// when its source is not resolved yet, so the delivery may be dropped by the
// registry rather than suppressed here.
func (m *Manager) sendDisconnected(server directory.ServerInfo, client directory.ClientInfo) {
	if !client.IsWaitingConnection() {
		return
	}
	stub, proxy := server.Addr, client.Addr
	if stub.IsLocal(m.cookie) && stub.Source != service.SourceUnknown {
		m.registry.Deliver(stub.Source, events.StubConnectEvent{
			Proxy:  proxy,
			Stub:   stub,
			Status: service.StatusDisconnected,
		})
	}
	if proxy.IsLocal(m.cookie) {
		m.registry.Deliver(proxy.Source, events.ProxyConnectEvent{
			Proxy:  proxy,
			Stub:   stub,
			Status: service.StatusDisconnected,
		})
	}
}

func (m *Manager) startConnection(path string) {
	m.rt.EnableRemoteServicing(true)
	if !m.rt.IsRemoteServicingConfigured() {
		if err := m.rt.ConfigureRemoteServicing(path); err != nil {
			slog.Error(fmt.Sprintf("%s - configuring remote servicing: %v", logPrefix, err))
			return
		}
	}
	if err := m.rt.StartRemoteServicing(); err != nil {
		slog.Error(fmt.Sprintf("%s - starting remote servicing: %v", logPrefix, err))
	}
}

// registerConnection records the channel assigned by the router and replays
// every local public endpoint to it, so a process joining late still exports
// its full directory.
func (m *Manager) registerConnection(channel service.Channel) {
	m.cookie = channel.Cookie
	slog.Info(fmt.Sprintf("%s - remote servicing online, cookie %d", logPrefix, m.cookie))

	for _, pair := range m.dir.Snapshot() {
		if s := pair.Server.Addr; s.IsValid() && s.IsLocal(m.cookie) && s.IsPublic() {
			m.rt.RegisterService(s)
		}
		for _, c := range pair.Clients {
			if p := c.Addr; p.IsLocal(m.cookie) && p.IsPublic() {
				m.rt.RegisterServiceClient(p)
			}
		}
	}
}

// dropRemote withdraws every imported endpoint. Collection and removal are
// two separate passes so the directory is not mutated mid-traversal.
func (m *Manager) dropRemote() {
	var stubs []service.StubAddress
	var proxies []service.ProxyAddress
	for _, pair := range m.dir.Snapshot() {
		if s := pair.Server.Addr; s.IsValid() && s.IsRemote(m.cookie) {
			stubs = append(stubs, s)
		}
		for _, c := range pair.Clients {
			if c.Addr.IsRemote(m.cookie) {
				proxies = append(proxies, c.Addr)
			}
		}
	}
	for _, p := range proxies {
		m.unregisterClient(p)
	}
	for _, s := range stubs {
		m.unregisterServer(s)
	}
	m.cookie = service.CookieLocal
}

// shutdown disconnects everything, clears the directory and stops the
// dispatcher.
func (m *Manager) shutdown() {
	m.disp.RemoveEvents(true)
	m.rt.StopRemoteServicing()
	for _, pair := range m.dir.Snapshot() {
		for _, client := range pair.Clients {
			m.sendDisconnected(pair.Server, client)
		}
	}
	m.dir.RemoveAll()
	m.disp.PulseExit()
	slog.Info(fmt.Sprintf("%s - service manager shut down", logPrefix))
}
