package manager

import (
	"github.com/morezero/component-runtime/pkg/dispatcher"
	"github.com/morezero/component-runtime/pkg/service"
)

// commandKind enumerates everything the manager dispatcher knows how to do.
type commandKind uint8

const (
	cmdRegisterStub commandKind = iota + 1
	cmdUnregisterStub
	cmdRegisterProxy
	cmdUnregisterProxy
	cmdConfigureConnection
	cmdStartConnection
	cmdStartNetConnection
	cmdStopConnection
	cmdSetEnableService
	cmdRegisterConnection
	cmdUnregisterConnection
	cmdLostConnection
	cmdStopRoutingClient
	cmdShutdownService
)

// String returns the command name for logs.
func (k commandKind) String() string {
	switch k {
	case cmdRegisterStub:
		return "register-stub"
	case cmdUnregisterStub:
		return "unregister-stub"
	case cmdRegisterProxy:
		return "register-proxy"
	case cmdUnregisterProxy:
		return "unregister-proxy"
	case cmdConfigureConnection:
		return "configure-connection"
	case cmdStartConnection:
		return "start-connection"
	case cmdStartNetConnection:
		return "start-net-connection"
	case cmdStopConnection:
		return "stop-connection"
	case cmdSetEnableService:
		return "set-enable-service"
	case cmdRegisterConnection:
		return "register-connection"
	case cmdUnregisterConnection:
		return "unregister-connection"
	case cmdLostConnection:
		return "lost-connection"
	case cmdStopRoutingClient:
		return "stop-routing-client"
	case cmdShutdownService:
		return "shutdown-service"
	default:
		return "unknown"
	}
}

// command is the single event type flowing through the manager dispatcher.
// Only the fields the kind needs are populated.
type command struct {
	kind    commandKind
	stub    service.StubAddress
	proxy   service.ProxyAddress
	cookie  service.Cookie
	channel service.Channel
	path    string
	host    string
	port    uint16
	enable  bool
}

// Kind implements dispatcher.Event.
func (command) Kind() dispatcher.Kind { return dispatcher.KindServiceManager }
