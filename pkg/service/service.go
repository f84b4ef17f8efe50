// Package service defines the identity model of remote-callable services:
// cookies, sources, channels, and the stub/proxy address types that the
// directory and the service manager operate on.
package service

// Cookie is a process-scoped identity assigned by the message router.
type Cookie uint64

// Reserved cookie values.
const (
	// CookieUnknown marks an endpoint whose owning process is not yet known.
	CookieUnknown Cookie = 0
	// CookieLocal is the cookie of endpoints that never leave the process.
	CookieLocal Cookie = 1
	// CookieRouter is the cookie of the message router itself.
	CookieRouter Cookie = 2
	// CookieAny matches every cookie in filter positions.
	CookieAny Cookie = ^Cookie(0)
	// CookieFirstValid is the lowest cookie the router hands out to processes.
	CookieFirstValid Cookie = 3
)

// SourceID identifies the dispatcher that owns an endpoint within a process.
type SourceID uint64

// SourceUnknown marks an endpoint not yet delivered to a real dispatcher.
const SourceUnknown SourceID = 0

// Category is the visibility scope of a service.
type Category uint8

const (
	// CategoryUndefined is the zero value; addresses carrying it are invalid.
	CategoryUndefined Category = iota
	// CategoryLocal services are visible only inside the registering process.
	CategoryLocal
	// CategoryPublic services are eligible for cross-process matching.
	CategoryPublic
)

// String returns the category name used in address paths and logs.
func (c Category) String() string {
	switch c {
	case CategoryLocal:
		return "local"
	case CategoryPublic:
		return "public"
	default:
		return "undefined"
	}
}

// ConnectionStatus is the lifecycle state of a directory entry.
type ConnectionStatus uint8

const (
	// StatusPending means registered but not yet matched.
	StatusPending ConnectionStatus = iota
	// StatusConnected means matched to a live counterpart.
	StatusConnected
	// StatusDisconnected means the counterpart withdrew.
	StatusDisconnected
)

// String returns the status name used in logs and wire dumps.
func (s ConnectionStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Channel locates the dispatcher owning an endpoint: the process (cookie),
// the dispatcher within that process (source) and the peer it talks to
// (target). A channel with source SourceUnknown has not been delivered to a
// real endpoint yet.
type Channel struct {
	Cookie Cookie
	Source SourceID
	Target SourceID
}

// InvalidChannel is the zero channel.
var InvalidChannel = Channel{}

// IsValid reports whether the channel names a real dispatcher.
func (ch Channel) IsValid() bool {
	return ch.Source != SourceUnknown
}
