// Package router defines the boundary between the service manager and the
// remote message router: the capability interface the manager drives, the
// consumer callbacks remote-origin events arrive through, and the transport
// implementations behind them.
package router

import (
	"errors"
	"sync"

	"github.com/morezero/component-runtime/pkg/service"
)

var (
	// ErrNotConfigured is returned when starting a router that has no
	// address to connect to.
	ErrNotConfigured = errors.New("router: remote servicing not configured")
	// ErrNotStarted is returned by operations requiring a live connection.
	ErrNotStarted = errors.New("router: remote servicing not started")
	// ErrDisabled is returned when remote servicing is switched off.
	ErrDisabled = errors.New("router: remote servicing disabled")
)

// Router is the capability interface the service manager drives. All methods
// are called from the service manager dispatcher; registration calls made
// while the router is down are silent no-ops.
type Router interface {
	// ConfigureRemoteServicing reads the connection address from the given
	// properties file; an empty path leaves the implementation's default
	// endpoint in effect.
	ConfigureRemoteServicing(path string) error
	IsRemoteServicingConfigured() bool
	IsRemoteServicingStarted() bool
	IsRemoteServicingEnabled() bool
	EnableRemoteServicing(enable bool)
	// SetRemoteServiceAddress points the router at an explicit endpoint and
	// marks it configured.
	SetRemoteServiceAddress(host string, port uint16)
	StartRemoteServicing() error
	StopRemoteServicing()

	// RegisterService announces a local public stub to the router.
	RegisterService(stub service.StubAddress)
	// UnregisterService withdraws a previously announced stub.
	UnregisterService(stub service.StubAddress)
	// RegisterServiceClient announces a local public proxy.
	RegisterServiceClient(proxy service.ProxyAddress)
	// UnregisterServiceClient withdraws a previously announced proxy.
	UnregisterServiceClient(proxy service.ProxyAddress)
}

// Consumer receives remote-origin events from the transport. The service
// manager implements it; every callback translates into a command posted to
// the manager dispatcher, so implementations must be non-blocking.
type Consumer interface {
	// RegisterRemoteStub enters an imported stub into the local directory.
	RegisterRemoteStub(stub service.StubAddress)
	// RegisterRemoteProxy enters an imported proxy into the local directory.
	RegisterRemoteProxy(proxy service.ProxyAddress)
	// UnregisterRemoteStub withdraws an imported stub.
	UnregisterRemoteStub(stub service.StubAddress, cookie service.Cookie)
	// UnregisterRemoteProxy withdraws an imported proxy.
	UnregisterRemoteProxy(proxy service.ProxyAddress, cookie service.Cookie)

	// RemoteServiceStarted signals the router connection came online.
	RemoteServiceStarted(channel service.Channel)
	// RemoteServiceStopped signals an orderly router shutdown.
	RemoteServiceStopped(channel service.Channel)
	// RemoteServiceConnectionLost signals an unexpected connection loss.
	RemoteServiceConnectionLost(channel service.Channel)

	// GetServiceList snapshots all stubs and proxies whose cookie matches,
	// or all when cookie is CookieAny.
	GetServiceList(cookie service.Cookie) ([]service.StubAddress, []service.ProxyAddress)
}

// NoOpRouter is a Router with no transport behind it: registration calls are
// dropped and starting fails. It is the default when remote servicing is
// switched off.
type NoOpRouter struct {
	enabled bool
}

// NewNoOpRouter creates a NoOpRouter.
func NewNoOpRouter() *NoOpRouter { return &NoOpRouter{} }

func (r *NoOpRouter) ConfigureRemoteServicing(string) error { return nil }
func (r *NoOpRouter) IsRemoteServicingConfigured() bool     { return false }
func (r *NoOpRouter) IsRemoteServicingStarted() bool        { return false }
func (r *NoOpRouter) IsRemoteServicingEnabled() bool        { return r.enabled }
func (r *NoOpRouter) EnableRemoteServicing(enable bool)     { r.enabled = enable }
func (r *NoOpRouter) SetRemoteServiceAddress(string, uint16) {}
func (r *NoOpRouter) StartRemoteServicing() error           { return ErrNotConfigured }
func (r *NoOpRouter) StopRemoteServicing()                  {}

func (r *NoOpRouter) RegisterService(service.StubAddress)          {}
func (r *NoOpRouter) UnregisterService(service.StubAddress)        {}
func (r *NoOpRouter) RegisterServiceClient(service.ProxyAddress)   {}
func (r *NoOpRouter) UnregisterServiceClient(service.ProxyAddress) {}

// CallbackRouter is a Router that records announcements and forwards them to
// optional callbacks. It exists for tests; the recorded slices are guarded
// because the manager announces from its own dispatcher goroutine.
type CallbackRouter struct {
	OnRegisterService         func(service.StubAddress)
	OnUnregisterService       func(service.StubAddress)
	OnRegisterServiceClient   func(service.ProxyAddress)
	OnUnregisterServiceClient func(service.ProxyAddress)

	mu         sync.Mutex
	configured bool
	started    bool
	enabled    bool
	host       string
	port       uint16

	registeredStubs     []service.StubAddress
	unregisteredStubs   []service.StubAddress
	registeredProxies   []service.ProxyAddress
	unregisteredProxies []service.ProxyAddress
}

// NewCallbackRouter creates a CallbackRouter.
func NewCallbackRouter() *CallbackRouter { return &CallbackRouter{} }

func (r *CallbackRouter) ConfigureRemoteServicing(string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configured = true
	return nil
}

func (r *CallbackRouter) IsRemoteServicingConfigured() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.configured
}

func (r *CallbackRouter) IsRemoteServicingStarted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

func (r *CallbackRouter) IsRemoteServicingEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

func (r *CallbackRouter) EnableRemoteServicing(enable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enable
}

func (r *CallbackRouter) SetRemoteServiceAddress(host string, port uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.host, r.port = host, port
	r.configured = true
}

// RemoteAddress returns the explicit endpoint set via SetRemoteServiceAddress.
func (r *CallbackRouter) RemoteAddress() (string, uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.host, r.port
}

func (r *CallbackRouter) StartRemoteServicing() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.configured {
		return ErrNotConfigured
	}
	r.started = true
	return nil
}

func (r *CallbackRouter) StopRemoteServicing() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = false
}

func (r *CallbackRouter) RegisterService(stub service.StubAddress) {
	r.mu.Lock()
	r.registeredStubs = append(r.registeredStubs, stub)
	cb := r.OnRegisterService
	r.mu.Unlock()
	if cb != nil {
		cb(stub)
	}
}

func (r *CallbackRouter) UnregisterService(stub service.StubAddress) {
	r.mu.Lock()
	r.unregisteredStubs = append(r.unregisteredStubs, stub)
	cb := r.OnUnregisterService
	r.mu.Unlock()
	if cb != nil {
		cb(stub)
	}
}

func (r *CallbackRouter) RegisterServiceClient(proxy service.ProxyAddress) {
	r.mu.Lock()
	r.registeredProxies = append(r.registeredProxies, proxy)
	cb := r.OnRegisterServiceClient
	r.mu.Unlock()
	if cb != nil {
		cb(proxy)
	}
}

func (r *CallbackRouter) UnregisterServiceClient(proxy service.ProxyAddress) {
	r.mu.Lock()
	r.unregisteredProxies = append(r.unregisteredProxies, proxy)
	cb := r.OnUnregisterServiceClient
	r.mu.Unlock()
	if cb != nil {
		cb(proxy)
	}
}

// RegisteredStubs returns a copy of the stubs announced so far.
func (r *CallbackRouter) RegisteredStubs() []service.StubAddress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]service.StubAddress(nil), r.registeredStubs...)
}

// UnregisteredStubs returns a copy of the stubs withdrawn so far.
func (r *CallbackRouter) UnregisteredStubs() []service.StubAddress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]service.StubAddress(nil), r.unregisteredStubs...)
}

// RegisteredProxies returns a copy of the proxies announced so far.
func (r *CallbackRouter) RegisteredProxies() []service.ProxyAddress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]service.ProxyAddress(nil), r.registeredProxies...)
}

// UnregisteredProxies returns a copy of the proxies withdrawn so far.
func (r *CallbackRouter) UnregisteredProxies() []service.ProxyAddress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]service.ProxyAddress(nil), r.unregisteredProxies...)
}
