package service

import "fmt"

// Address is the common shape shared by stub and proxy addresses. Identity is
// the (Interface, Role, Category, Cookie, Source) tuple; the channel is
// re-stamped on registration and never participates in identity.
type Address struct {
	// Interface is the service interface name, e.g. "more0.telemetry".
	Interface string
	// Role is the unique instance name of the owning component.
	Role string
	// Category is the visibility scope (public or local).
	Category Category
	// Cookie is the identity of the owning process.
	Cookie Cookie
	// Source is the dispatcher owning the endpoint within the process.
	Source SourceID
	// Channel locates the owning dispatcher for event delivery.
	Channel Channel
}

// IsValid reports whether the address names a real service endpoint.
func (a Address) IsValid() bool {
	return a.Interface != "" && a.Role != "" && a.Category != CategoryUndefined
}

// IsLocal reports whether the address lives in the process identified by
// processCookie.
func (a Address) IsLocal(processCookie Cookie) bool {
	return a.Cookie == processCookie || a.Cookie == CookieLocal
}

// IsRemote reports whether the address was imported from another process.
func (a Address) IsRemote(processCookie Cookie) bool {
	return a.IsValid() && !a.IsLocal(processCookie)
}

// IsPublic reports whether the service may be exported via the router.
func (a Address) IsPublic() bool {
	return a.Category == CategoryPublic
}

// SameService reports whether two addresses name the same (interface, role)
// pair, ignoring category, cookie and source.
func (a Address) SameService(other Address) bool {
	return a.Interface == other.Interface && a.Role == other.Role
}

// Equal reports identity equality: (interface, role, category, cookie, source).
func (a Address) Equal(other Address) bool {
	return a.Interface == other.Interface &&
		a.Role == other.Role &&
		a.Category == other.Category &&
		a.Cookie == other.Cookie &&
		a.Source == other.Source
}

// SetChannel stamps the delivery channel and mirrors its cookie and source
// into the address identity when they are still unresolved.
func (a *Address) SetChannel(ch Channel) {
	a.Channel = ch
	if a.Cookie == CookieUnknown {
		a.Cookie = ch.Cookie
	}
	if a.Source == SourceUnknown {
		a.Source = ch.Source
	}
}

// Path renders the address as a slash-separated path for logs and subjects.
func (a Address) Path() string {
	return fmt.Sprintf("%s/%s/%s/%d/%d", a.Category, a.Interface, a.Role, a.Cookie, a.Source)
}

// StubAddress identifies a server-side endpoint implementing a service
// interface for a given role.
type StubAddress struct {
	Address
}

// ProxyAddress identifies a client-side endpoint bound to a (service, role).
type ProxyAddress struct {
	Address
}

// Match reports whether the stub can serve the proxy: same interface and
// role, and either the stub is public or both endpoints are local to the
// same process.
func (s StubAddress) Match(p ProxyAddress) bool {
	if !s.SameService(p.Address) {
		return false
	}
	if s.Category == CategoryPublic {
		return true
	}
	return p.Cookie == s.Cookie
}

// String implements fmt.Stringer.
func (s StubAddress) String() string { return "stub:" + s.Path() }

// String implements fmt.Stringer.
func (p ProxyAddress) String() string { return "proxy:" + p.Path() }
