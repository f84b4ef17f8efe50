// Package model holds the declarative description of a runtime process: the
// threads it spawns, the components living on them, the service interfaces
// each component implements and the roles it depends on. A model is built up
// programmatically, validated, then handed to the Loader which brings it to
// life against a service manager.
package model

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/morezero/component-runtime/pkg/service"
)

const logPrefix = "model:entries"

// ServiceEntry names one service interface a component implements, with the
// implemented interface version.
type ServiceEntry struct {
	// Name is the service interface name, e.g. "more0.telemetry".
	Name string
	// Version is the implemented interface version, semver formatted.
	Version string
}

// NewServiceEntry creates a service entry, rejecting versions that do not
// parse as semantic versions.
func NewServiceEntry(name, version string) (ServiceEntry, error) {
	if name == "" {
		return ServiceEntry{}, fmt.Errorf("%s - service entry needs a name", logPrefix)
	}
	if _, err := semver.NewVersion(version); err != nil {
		return ServiceEntry{}, fmt.Errorf("%s - service %s version %q: %w", logPrefix, name, version, err)
	}
	return ServiceEntry{Name: name, Version: version}, nil
}

// EntryName implements Entry.
func (e ServiceEntry) EntryName() string { return e.Name }

// Equal reports name and version equality.
func (e ServiceEntry) Equal(other ServiceEntry) bool {
	return e.Name == other.Name && e.Version == other.Version
}

// IsValid reports whether the entry has a name and a parseable version.
func (e ServiceEntry) IsValid() bool {
	if e.Name == "" {
		return false
	}
	_, err := semver.NewVersion(e.Version)
	return err == nil
}

// Compatible reports whether this entry satisfies a consumer requiring the
// given version: same major, and at least the required minor/patch.
func (e ServiceEntry) Compatible(required string) bool {
	have, err := semver.NewVersion(e.Version)
	if err != nil {
		return false
	}
	want, err := semver.NewVersion(required)
	if err != nil {
		return false
	}
	return have.Major() == want.Major() && !have.LessThan(want)
}

// DependencyEntry names a role this component talks to through a proxy.
type DependencyEntry struct {
	RoleName string
}

// EntryName implements Entry.
func (e DependencyEntry) EntryName() string { return e.RoleName }

// Equal reports role name equality.
func (e DependencyEntry) Equal(other DependencyEntry) bool { return e.RoleName == other.RoleName }

// IsValid reports whether the dependency names a role.
func (e DependencyEntry) IsValid() bool { return e.RoleName != "" }

// WorkerThreadEntry describes a worker thread a component spawns next to its
// master thread, and the consumer object receiving its events.
type WorkerThreadEntry struct {
	// Master is the component thread the worker belongs to.
	Master string
	// Worker is the worker thread name, unique within the model.
	Worker string
	// Role is the owning component's role name.
	Role string
	// Consumer names the event consumer bound to the worker.
	Consumer string
}

// EntryName implements Entry.
func (e WorkerThreadEntry) EntryName() string { return e.Worker }

// Equal reports full field equality.
func (e WorkerThreadEntry) Equal(other WorkerThreadEntry) bool { return e == other }

// IsValid reports whether every field is populated.
func (e WorkerThreadEntry) IsValid() bool {
	return e.Master != "" && e.Worker != "" && e.Role != "" && e.Consumer != ""
}

// Component is whatever a component create function returns. The loader holds
// it opaquely and hands it back to the delete function on unload.
type Component any

// CreateContext is what a component create function receives: its own entry,
// the manager to register stubs and proxies with, and the source id of the
// dispatcher the component's connect events arrive on.
type CreateContext struct {
	Entry   ComponentEntry
	Manager ManagerAPI
	Source  service.SourceID
}

// CreateFunc instantiates a component. Implementations register their stubs
// via the manager; registration is what makes the component reachable.
type CreateFunc func(ctx CreateContext) (Component, error)

// DeleteFunc tears a component down. Implementations unregister whatever the
// create function registered.
type DeleteFunc func(comp Component, entry ComponentEntry)

// ComponentEntry describes one component instance: where it runs, what it
// offers and what it consumes.
type ComponentEntry struct {
	// Thread is the component thread the instance runs on.
	Thread string
	// Role is the unique instance name, model-wide.
	Role string
	// Create instantiates the component; Delete tears it down.
	Create CreateFunc
	Delete DeleteFunc
	// Services are the interfaces the component implements.
	Services ServiceList
	// Dependencies are the roles the component consumes.
	Dependencies DependencyList
	// Workers are the worker threads the component spawns.
	Workers WorkerThreadList
	// Data is opaque payload passed through to the create function.
	Data any
}

// EntryName implements Entry.
func (e ComponentEntry) EntryName() string { return e.Role }

// Equal compares thread, role and the three lists. The function fields and
// the opaque data do not participate.
func (e ComponentEntry) Equal(other ComponentEntry) bool {
	return e.Thread == other.Thread && e.Role == other.Role &&
		e.Services.Equal(&other.Services) &&
		e.Dependencies.Equal(&other.Dependencies) &&
		e.Workers.Equal(&other.Workers)
}

// IsValid reports whether the component has a role, a home thread and a
// create function.
func (e ComponentEntry) IsValid() bool {
	return e.Role != "" && e.Thread != "" && e.Create != nil
}

// ComponentThreadEntry describes one component thread and the components
// instantiated on it, in creation order.
type ComponentThreadEntry struct {
	Name       string
	Components ComponentList
}

// EntryName implements Entry.
func (e ComponentThreadEntry) EntryName() string { return e.Name }

// Equal compares name and component list.
func (e ComponentThreadEntry) Equal(other ComponentThreadEntry) bool {
	return e.Name == other.Name && e.Components.Equal(&other.Components)
}

// IsValid reports whether the thread has a name and at least one component.
func (e ComponentThreadEntry) IsValid() bool {
	return e.Name != "" && e.Components.IsValid()
}
