// Package directory holds the authoritative in-process map of registered
// service endpoints: one server entry per (interface, role) pair, each with
// the ordered list of client endpoints subscribed to it.
package directory

import (
	"errors"
	"sort"

	"github.com/morezero/component-runtime/pkg/service"
)

var (
	// ErrInvalidAddress is returned when a stub or proxy fails its own
	// validity check.
	ErrInvalidAddress = errors.New("directory: invalid service address")
	// ErrDuplicateStub is returned when a second, different stub registers
	// for an occupied (interface, role) pair. First writer wins.
	ErrDuplicateStub = errors.New("directory: duplicate stub registration")
)

// ServerInfo is a directory key: the stub address (empty while pending) and
// its connection status.
type ServerInfo struct {
	Addr   service.StubAddress
	Status service.ConnectionStatus
}

// IsConnected reports whether the server side is live.
func (s ServerInfo) IsConnected() bool {
	return s.Status == service.StatusConnected
}

// ClientInfo is one subscribed proxy and its last known status.
type ClientInfo struct {
	Addr   service.ProxyAddress
	Status service.ConnectionStatus
}

// IsConnected reports whether the client has been told it is connected.
func (c ClientInfo) IsConnected() bool {
	return c.Status == service.StatusConnected
}

// IsWaitingConnection reports whether the client has ever been announced a
// state, i.e. it must be told about a disconnect.
func (c ClientInfo) IsWaitingConnection() bool {
	return c.Status == service.StatusPending || c.Status == service.StatusConnected
}

type serviceKey struct {
	iface string
	role  string
}

type entry struct {
	server  ServerInfo
	clients []ClientInfo
}

// Directory maps server entries to their client lists. It is not safe for
// concurrent use; the service manager serializes all mutation on its own
// dispatcher and guards snapshot reads with its lock.
type Directory struct {
	entries map[serviceKey]*entry
}

// New creates an empty directory.
func New() *Directory {
	return &Directory{entries: make(map[serviceKey]*entry)}
}

func keyOf(a service.Address) serviceKey {
	return serviceKey{iface: a.Interface, role: a.Role}
}

// Len returns the number of (interface, role) entries, pending included.
func (d *Directory) Len() int {
	return len(d.entries)
}

// RegisterServer enters a stub into the directory. It returns the resulting
// server entry and the subset of waiting clients that became resolvable
// against the new stub, already flipped to connected.
//
// A pending entry left behind by early proxies is upgraded in place,
// preserving its accumulated client list. Re-registering the same stub is
// idempotent. A different stub for an occupied pair is rejected with
// ErrDuplicateStub.
func (d *Directory) RegisterServer(stub service.StubAddress) (ServerInfo, []ClientInfo, error) {
	if !stub.IsValid() {
		return ServerInfo{}, nil, ErrInvalidAddress
	}
	key := keyOf(stub.Address)
	e, ok := d.entries[key]
	if !ok {
		e = &entry{server: ServerInfo{Addr: stub, Status: service.StatusConnected}}
		d.entries[key] = e
		return e.server, nil, nil
	}
	if e.server.Addr.IsValid() {
		if e.server.Addr.Equal(stub.Address) {
			return e.server, nil, nil
		}
		return e.server, nil, ErrDuplicateStub
	}

	// Pending entry: upgrade in place, resolve the waiting clients.
	e.server = ServerInfo{Addr: stub, Status: service.StatusConnected}
	resolved := make([]ClientInfo, 0, len(e.clients))
	for i := range e.clients {
		if stub.Match(e.clients[i].Addr) {
			e.clients[i].Status = service.StatusConnected
			resolved = append(resolved, e.clients[i])
		}
	}
	return e.server, resolved, nil
}

// UnregisterServer withdraws a stub. An entry that still has clients survives
// in pending state so they keep waiting for a future stub of the same
// (interface, role); an entry without clients is removed. The full client
// list is returned so every one of them can be notified.
// Unknown or mismatching stubs are a silent no-op.
func (d *Directory) UnregisterServer(stub service.StubAddress) (ServerInfo, []ClientInfo, bool) {
	key := keyOf(stub.Address)
	e, ok := d.entries[key]
	if !ok || !e.server.Addr.Equal(stub.Address) {
		return ServerInfo{}, nil, false
	}

	gone := e.server
	gone.Status = service.StatusDisconnected

	affected := make([]ClientInfo, len(e.clients))
	copy(affected, e.clients)

	e.server = ServerInfo{Status: service.StatusPending}
	for i := range e.clients {
		e.clients[i].Status = service.StatusPending
	}
	if len(e.clients) == 0 {
		delete(d.entries, key)
	}
	return gone, affected, true
}

// RegisterClient subscribes a proxy to its (interface, role) pair, creating a
// pending server entry when no stub exists yet. The returned server entry
// carries the stub address the proxy is now bound to (empty while pending).
func (d *Directory) RegisterClient(proxy service.ProxyAddress) (ServerInfo, ClientInfo, error) {
	if !proxy.IsValid() {
		return ServerInfo{}, ClientInfo{}, ErrInvalidAddress
	}
	key := keyOf(proxy.Address)
	e, ok := d.entries[key]
	if !ok {
		e = &entry{server: ServerInfo{Status: service.StatusPending}}
		d.entries[key] = e
	}

	client := ClientInfo{Addr: proxy, Status: service.StatusPending}
	if e.server.IsConnected() && e.server.Addr.Match(proxy) {
		client.Status = service.StatusConnected
	}
	e.clients = append(e.clients, client)
	return e.server, client, nil
}

// UnregisterClient removes a proxy by exact address equality. When the last
// client leaves a pending entry, the entry is garbage collected. The removed
// client is returned with its last status.
func (d *Directory) UnregisterClient(proxy service.ProxyAddress) (ServerInfo, ClientInfo, bool) {
	key := keyOf(proxy.Address)
	e, ok := d.entries[key]
	if !ok {
		return ServerInfo{}, ClientInfo{}, false
	}
	for i := range e.clients {
		if e.clients[i].Addr.Equal(proxy.Address) {
			removed := e.clients[i]
			e.clients = append(e.clients[:i], e.clients[i+1:]...)
			if !e.server.Addr.IsValid() && len(e.clients) == 0 {
				delete(d.entries, key)
			}
			return e.server, removed, true
		}
	}
	return e.server, ClientInfo{}, false
}

// Pair is one traversal element: a server entry and a copy of its clients.
type Pair struct {
	Server  ServerInfo
	Clients []ClientInfo
}

// Snapshot returns a stable ordered traversal of the directory. The order is
// deterministic within a pass (sorted by interface then role); callers must
// not retain the slices across mutations.
func (d *Directory) Snapshot() []Pair {
	keys := make([]serviceKey, 0, len(d.entries))
	for k := range d.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].iface != keys[j].iface {
			return keys[i].iface < keys[j].iface
		}
		return keys[i].role < keys[j].role
	})

	pairs := make([]Pair, 0, len(keys))
	for _, k := range keys {
		e := d.entries[k]
		clients := make([]ClientInfo, len(e.clients))
		copy(clients, e.clients)
		pairs = append(pairs, Pair{Server: e.server, Clients: clients})
	}
	return pairs
}

// RemoveAll empties the directory.
func (d *Directory) RemoveAll() {
	d.entries = make(map[serviceKey]*entry)
}
