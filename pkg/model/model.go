package model

import (
	"errors"
	"fmt"

	"github.com/morezero/component-runtime/pkg/semver"
)

const modelLogPrefix = "model:model"

// ErrModelLoaded is returned when mutating a model that is already running.
var ErrModelLoaded = errors.New("model: model is loaded")

// Model is the declarative description of one process: a named set of
// component threads. It is mutable until the loader marks it loaded.
type Model struct {
	// Name identifies the model in logs.
	Name string

	threads ComponentThreadList
	loaded  bool
}

// NewModel creates an empty model.
func NewModel(name string) *Model {
	return &Model{Name: name}
}

// IsLoaded reports whether the loader has instantiated this model.
func (m *Model) IsLoaded() bool { return m.loaded }

func (m *Model) markLoaded(loaded bool) { m.loaded = loaded }

// Threads returns the thread list for traversal.
func (m *Model) Threads() *ComponentThreadList { return &m.threads }

// AddThread adds a component thread, overwriting an equal one in place. It
// fails once the model is loaded.
func (m *Model) AddThread(t ComponentThreadEntry) error {
	if m.loaded {
		return ErrModelLoaded
	}
	if !t.IsValid() {
		return fmt.Errorf("%s - invalid thread entry %q", modelLogPrefix, t.Name)
	}
	m.threads.AddUnique(t)
	return nil
}

// Validate checks the model invariants: non-empty name, at least one thread,
// thread names unique, role names unique model-wide, service names unique
// within each component, every worker thread bound to its component's thread.
func (m *Model) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%s - model needs a name", modelLogPrefix)
	}
	if !m.threads.IsValid() {
		return fmt.Errorf("%s - model %q has no threads", modelLogPrefix, m.Name)
	}

	threadNames := make(map[string]struct{}, m.threads.Len())
	roles := make(map[string]string)
	for ti := 0; ti < m.threads.Len(); ti++ {
		thread := m.threads.At(ti)
		if !thread.IsValid() {
			return fmt.Errorf("%s - model %q: invalid thread %q", modelLogPrefix, m.Name, thread.Name)
		}
		if _, dup := threadNames[thread.Name]; dup {
			return fmt.Errorf("%s - model %q: duplicate thread name %q", modelLogPrefix, m.Name, thread.Name)
		}
		threadNames[thread.Name] = struct{}{}

		for ci := 0; ci < thread.Components.Len(); ci++ {
			comp := thread.Components.At(ci)
			if !comp.IsValid() {
				return fmt.Errorf("%s - model %q: invalid component %q on thread %q",
					modelLogPrefix, m.Name, comp.Role, thread.Name)
			}
			if owner, dup := roles[comp.Role]; dup {
				return fmt.Errorf("%s - model %q: role %q declared on threads %q and %q",
					modelLogPrefix, m.Name, comp.Role, owner, thread.Name)
			}
			roles[comp.Role] = thread.Name

			if err := validateComponent(m.Name, thread.Name, comp); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateComponent(model, thread string, comp ComponentEntry) error {
	services := make(map[string]struct{}, comp.Services.Len())
	for si := 0; si < comp.Services.Len(); si++ {
		svc := comp.Services.At(si)
		if !svc.IsValid() {
			return fmt.Errorf("%s - model %q: component %q: invalid service %q",
				modelLogPrefix, model, comp.Role, svc.Name)
		}
		if _, dup := services[svc.Name]; dup {
			return fmt.Errorf("%s - model %q: component %q: duplicate service %q",
				modelLogPrefix, model, comp.Role, svc.Name)
		}
		services[svc.Name] = struct{}{}
	}
	for wi := 0; wi < comp.Workers.Len(); wi++ {
		w := comp.Workers.At(wi)
		if !w.IsValid() {
			return fmt.Errorf("%s - model %q: component %q: invalid worker %q",
				modelLogPrefix, model, comp.Role, w.Worker)
		}
		if w.Master != thread || w.Role != comp.Role {
			return fmt.Errorf("%s - model %q: worker %q not bound to component %q on thread %q",
				modelLogPrefix, model, w.Worker, comp.Role, thread)
		}
	}
	return nil
}

// FindProvider locates the component implementing the referenced service.
// The reference may constrain the version ("more0.telemetry@^1.2.0"); among
// components implementing the interface, the highest satisfying version wins.
func (m *Model) FindProvider(ref string) (ComponentEntry, ServiceEntry, error) {
	parsed, err := semver.ParseServiceRef(ref)
	if err != nil {
		return ComponentEntry{}, ServiceEntry{}, err
	}

	var bestComp ComponentEntry
	var bestSvc ServiceEntry
	found := false
	for ti := 0; ti < m.threads.Len(); ti++ {
		thread := m.threads.At(ti)
		for ci := 0; ci < thread.Components.Len(); ci++ {
			comp := thread.Components.At(ci)
			for si := 0; si < comp.Services.Len(); si++ {
				svc := comp.Services.At(si)
				if svc.Name != parsed.Interface {
					continue
				}
				if !semver.SatisfiesRange(svc.Version, parsed.Range) {
					continue
				}
				if !found || outranks(svc.Version, bestSvc.Version) {
					bestComp, bestSvc, found = comp, svc, true
				}
			}
		}
	}
	if !found {
		return ComponentEntry{}, ServiceEntry{}, fmt.Errorf("%s - model %q: no provider for %q",
			modelLogPrefix, m.Name, parsed.Raw)
	}
	return bestComp, bestSvc, nil
}

// outranks reports whether version a is strictly higher than b. Earlier
// matches win ties.
func outranks(a, b string) bool {
	if a == b {
		return false
	}
	winner, ok := semver.Resolve([]string{b, a}, "")
	return ok && winner == a
}

// FindComponent locates a component entry by role name.
func (m *Model) FindComponent(role string) (ComponentEntry, bool) {
	for ti := 0; ti < m.threads.Len(); ti++ {
		thread := m.threads.At(ti)
		if comp, ok := thread.Components.FindByName(role); ok {
			return comp, true
		}
	}
	return ComponentEntry{}, false
}
