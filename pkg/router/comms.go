package router

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/component-runtime/pkg/commsutil"
	"github.com/morezero/component-runtime/pkg/properties"
	"github.com/morezero/component-runtime/pkg/service"
	"github.com/morezero/component-runtime/pkg/wire"
)

const logPrefix = "router:comms"

// Broker subjects carrying registration traffic between processes.
const (
	SubjectStubRegister    = commsutil.SubjectStubRegister
	SubjectStubUnregister  = commsutil.SubjectStubUnregister
	SubjectProxyRegister   = commsutil.SubjectProxyRegister
	SubjectProxyUnregister = commsutil.SubjectProxyUnregister
	SubjectSyncRequest     = commsutil.SubjectSyncRequest
)

// DefaultBrokerURL is used when no routing configuration names an address.
const DefaultBrokerURL = "nats://127.0.0.1:4222"

// SyncReplySubject returns the per-process subject directory snapshots are
// replied to during the join handshake.
func SyncReplySubject(instanceID string) string {
	return commsutil.SyncReplySubject(instanceID)
}

// CommsRouter connects the service manager to the message broker. Local
// public registrations are broadcast on the registration subjects; remote
// announcements are fed back through the Consumer. A joining process asks the
// fleet for a directory snapshot so late starters see earlier services.
type CommsRouter struct {
	consumer   Consumer
	clientName string
	instanceID string

	mu         sync.Mutex
	url        string
	enabled    bool
	configured bool
	started    bool
	cookie     service.Cookie
	nc         *comms.Conn
	subs       []*comms.Subscription
}

// NewCommsRouter creates a broker-backed router feeding remote events into
// consumer. clientName identifies the process on the broker.
func NewCommsRouter(consumer Consumer, clientName string) *CommsRouter {
	return &CommsRouter{
		consumer:   consumer,
		clientName: clientName,
		instanceID: uuid.NewString(),
	}
}

// InstanceID returns the unique id this process announces under.
func (r *CommsRouter) InstanceID() string { return r.instanceID }

// Cookie returns the cookie assigned on the last successful start.
func (r *CommsRouter) Cookie() service.Cookie {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cookie
}

// ConfigureRemoteServicing reads the broker address from a routing properties
// file. An empty path keeps any previously configured URL or falls back to
// the default broker address.
func (r *CommsRouter) ConfigureRemoteServicing(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if path == "" {
		if r.url == "" {
			r.url = DefaultBrokerURL
		}
		r.configured = true
		return nil
	}

	props, err := properties.ParseFile(path)
	if err != nil {
		return fmt.Errorf("%s - configure from %s: %w", logPrefix, path, err)
	}
	host := props.GetDefault(properties.KeyConnectionAddress, "127.0.0.1")
	portText := props.GetDefault(properties.KeyConnectionPort, "4222")
	port, err := strconv.ParseUint(portText, 10, 16)
	if err != nil {
		return fmt.Errorf("%s - invalid %s value %q: %w", logPrefix, properties.KeyConnectionPort, portText, err)
	}
	if enabledText, ok := props.Get(properties.KeyConnectionEnabled); ok {
		if enabled, err := strconv.ParseBool(enabledText); err == nil {
			r.enabled = enabled
		}
	}

	r.url = fmt.Sprintf("nats://%s:%d", host, port)
	r.configured = true
	slog.Info(fmt.Sprintf("%s - configured broker %s from %s", logPrefix, r.url, path))
	return nil
}

func (r *CommsRouter) IsRemoteServicingConfigured() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.configured
}

func (r *CommsRouter) IsRemoteServicingStarted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

func (r *CommsRouter) IsRemoteServicingEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

func (r *CommsRouter) EnableRemoteServicing(enable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enable
}

// SetRemoteServiceAddress points the router at an explicit broker endpoint.
func (r *CommsRouter) SetRemoteServiceAddress(host string, port uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.url = fmt.Sprintf("nats://%s:%d", host, port)
	r.configured = true
}

// SetBrokerURL points the router at a full broker URL, e.g. from environment
// configuration, and marks it configured.
func (r *CommsRouter) SetBrokerURL(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.url = url
	r.configured = true
}

// StartRemoteServicing connects to the broker, subscribes the registration
// subjects and requests a directory snapshot from the fleet.
func (r *CommsRouter) StartRemoteServicing() error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil
	}
	if !r.enabled {
		r.mu.Unlock()
		return ErrDisabled
	}
	if !r.configured || r.url == "" {
		r.mu.Unlock()
		return ErrNotConfigured
	}
	url := r.url
	r.mu.Unlock()

	nc, err := commsutil.Connect(url, r.clientName,
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			slog.Warn(fmt.Sprintf("%s - broker disconnected: %v", logPrefix, err))
			r.consumer.RemoteServiceConnectionLost(r.channel())
		}),
		comms.ReconnectHandler(func(nc *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - broker reconnected to %s", logPrefix, nc.ConnectedUrl()))
			r.consumer.RemoteServiceStarted(r.channel())
		}),
	)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to broker: %w", logPrefix, err)
	}

	clientID, err := nc.GetClientID()
	if err != nil {
		nc.Close()
		return fmt.Errorf("%s - failed to read broker client id: %w", logPrefix, err)
	}

	r.mu.Lock()
	r.nc = nc
	r.cookie = service.CookieFirstValid + service.Cookie(clientID)
	r.started = true
	r.mu.Unlock()

	if err := r.subscribeAll(nc); err != nil {
		r.teardown()
		return err
	}

	slog.Info(fmt.Sprintf("%s - broker online, cookie %d assigned", logPrefix, r.Cookie()))
	r.consumer.RemoteServiceStarted(r.channel())

	// Ask running processes for their current public services.
	if err := nc.Publish(SubjectSyncRequest, []byte(r.instanceID)); err != nil {
		slog.Warn(fmt.Sprintf("%s - sync request failed: %v", logPrefix, err))
	}
	return nil
}

// StopRemoteServicing withdraws from the broker. The local directory is left
// untouched; the service manager decides what to drop.
func (r *CommsRouter) StopRemoteServicing() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.consumer.RemoteServiceStopped(r.channel())
	r.teardown()
}

func (r *CommsRouter) teardown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subs {
		_ = sub.Unsubscribe()
	}
	r.subs = nil
	if r.nc != nil {
		r.nc.Close()
		r.nc = nil
	}
	r.started = false
	r.cookie = service.CookieUnknown
}

func (r *CommsRouter) channel() service.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return service.Channel{Cookie: r.cookie, Source: service.SourceUnknown, Target: service.SourceUnknown}
}

func (r *CommsRouter) conn() (*comms.Conn, service.Cookie, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nc, r.cookie, r.started
}

// exportAddress rewrites a local address so the rest of the fleet sees it
// under this process's assigned cookie.
func exportAddress(a service.Address, cookie service.Cookie) service.Address {
	if a.Cookie == service.CookieLocal || a.Cookie == service.CookieUnknown {
		a.Cookie = cookie
		a.Channel.Cookie = cookie
	}
	return a
}

func (r *CommsRouter) announce(subject string, a service.Address) {
	nc, cookie, started := r.conn()
	if !started {
		return
	}
	data, err := wire.EncodeAnnounce(r.instanceID, exportAddress(a, cookie))
	if err != nil {
		slog.Error(fmt.Sprintf("%s - encode announce for %s: %v", logPrefix, a.Path(), err))
		return
	}
	if err := nc.Publish(subject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - publish %s: %v", logPrefix, subject, err))
	}
}

func (r *CommsRouter) RegisterService(stub service.StubAddress) {
	r.announce(SubjectStubRegister, stub.Address)
}

func (r *CommsRouter) UnregisterService(stub service.StubAddress) {
	r.announce(SubjectStubUnregister, stub.Address)
}

func (r *CommsRouter) RegisterServiceClient(proxy service.ProxyAddress) {
	r.announce(SubjectProxyRegister, proxy.Address)
}

func (r *CommsRouter) UnregisterServiceClient(proxy service.ProxyAddress) {
	r.announce(SubjectProxyUnregister, proxy.Address)
}

func (r *CommsRouter) subscribeAll(nc *comms.Conn) error {
	type handler struct {
		subject string
		fn      comms.MsgHandler
	}
	handlers := []handler{
		{SubjectStubRegister, r.onAnnounce(func(a service.Address) {
			r.consumer.RegisterRemoteStub(service.StubAddress{Address: a})
		})},
		{SubjectStubUnregister, r.onAnnounce(func(a service.Address) {
			r.consumer.UnregisterRemoteStub(service.StubAddress{Address: a}, a.Cookie)
		})},
		{SubjectProxyRegister, r.onAnnounce(func(a service.Address) {
			r.consumer.RegisterRemoteProxy(service.ProxyAddress{Address: a})
		})},
		{SubjectProxyUnregister, r.onAnnounce(func(a service.Address) {
			r.consumer.UnregisterRemoteProxy(service.ProxyAddress{Address: a}, a.Cookie)
		})},
		{SubjectSyncRequest, r.onSyncRequest},
		{SyncReplySubject(r.instanceID), r.onSyncReply},
	}

	subs := make([]*comms.Subscription, 0, len(handlers))
	for _, h := range handlers {
		sub, err := nc.Subscribe(h.subject, h.fn)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return fmt.Errorf("%s - subscribe %s: %w", logPrefix, h.subject, err)
		}
		subs = append(subs, sub)
	}

	r.mu.Lock()
	r.subs = subs
	r.mu.Unlock()
	return nil
}

func (r *CommsRouter) onAnnounce(deliver func(service.Address)) comms.MsgHandler {
	return func(msg *comms.Msg) {
		instanceID, addr, err := wire.DecodeAnnounce(msg.Data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - bad announce on %s: %v", logPrefix, msg.Subject, err))
			return
		}
		if instanceID == r.instanceID {
			return
		}
		deliver(addr)
	}
}

// onSyncRequest replies to a joining process with this process's local
// public services.
func (r *CommsRouter) onSyncRequest(msg *comms.Msg) {
	requester := string(msg.Data)
	if requester == "" || requester == r.instanceID {
		return
	}
	nc, cookie, started := r.conn()
	if !started {
		return
	}

	stubs, proxies := r.consumer.GetServiceList(service.CookieAny)
	exportStubs := make([]service.StubAddress, 0, len(stubs))
	for _, s := range stubs {
		if s.IsPublic() && s.IsLocal(service.CookieLocal) {
			exportStubs = append(exportStubs, service.StubAddress{Address: exportAddress(s.Address, cookie)})
		}
	}
	exportProxies := make([]service.ProxyAddress, 0, len(proxies))
	for _, p := range proxies {
		if p.IsPublic() && p.IsLocal(service.CookieLocal) {
			exportProxies = append(exportProxies, service.ProxyAddress{Address: exportAddress(p.Address, cookie)})
		}
	}
	if len(exportStubs) == 0 && len(exportProxies) == 0 {
		return
	}

	data, err := wire.EncodeServiceList(exportStubs, exportProxies)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - encode sync reply: %v", logPrefix, err))
		return
	}
	if err := nc.Publish(SyncReplySubject(requester), data); err != nil {
		slog.Error(fmt.Sprintf("%s - publish sync reply: %v", logPrefix, err))
	}
}

// onSyncReply imports a peer's snapshot into the local directory.
func (r *CommsRouter) onSyncReply(msg *comms.Msg) {
	stubs, proxies, err := wire.DecodeServiceList(msg.Data)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - bad sync reply: %v", logPrefix, err))
		return
	}
	_, cookie, started := r.conn()
	if !started {
		return
	}
	for _, s := range stubs {
		if s.Cookie != cookie {
			r.consumer.RegisterRemoteStub(s)
		}
	}
	for _, p := range proxies {
		if p.Cookie != cookie {
			r.consumer.RegisterRemoteProxy(p)
		}
	}
}
