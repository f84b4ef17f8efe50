// Package events defines the connect notifications the service manager
// emits to stubs and proxies when their pairing state changes.
package events

import (
	"github.com/morezero/component-runtime/pkg/dispatcher"
	"github.com/morezero/component-runtime/pkg/service"
)

// StubConnectEvent notifies a stub that a client connected or disconnected.
type StubConnectEvent struct {
	Proxy  service.ProxyAddress
	Stub   service.StubAddress
	Status service.ConnectionStatus
}

// Kind implements dispatcher.Event.
func (StubConnectEvent) Kind() dispatcher.Kind { return dispatcher.KindStubConnect }

// ProxyConnectEvent notifies a proxy that its server connected or
// disconnected.
type ProxyConnectEvent struct {
	Proxy  service.ProxyAddress
	Stub   service.StubAddress
	Status service.ConnectionStatus
}

// Kind implements dispatcher.Event.
func (ProxyConnectEvent) Kind() dispatcher.Kind { return dispatcher.KindProxyConnect }

// StubConnectConsumer is implemented by stub-side endpoints interested in
// client connection changes.
type StubConnectConsumer interface {
	ServiceClientConnection(ev StubConnectEvent)
}

// ProxyConnectConsumer is implemented by proxy-side endpoints interested in
// server connection changes.
type ProxyConnectConsumer interface {
	ServiceConnection(ev ProxyConnectEvent)
}
