// Package model holds the in-memory graph model: typed elements and
// relationships with stable identifiers. The model is the live, editable
// representation; the snapshot package turns it into files and back.
package model

import (
	"sort"

	"github.com/google/uuid"
)

// NewID returns a new globally unique, stable object identifier.
func NewID() string {
	return uuid.NewString()
}

// Object is an element of the graph: a node with a kind, a name and
// free-form string properties. Its ID never changes once assigned.
type Object struct {
	// ID is the globally unique, stable identifier of the object.
	ID string

	// Kind is the object's type name (e.g. "BusinessActor", "Node").
	Kind string

	// Name is the user-visible name. Mutable.
	Name string

	// Documentation is free-form descriptive text. Mutable.
	Documentation string

	// Properties holds arbitrary key/value attributes. Mutable.
	Properties map[string]string
}

// Relation connects two Objects. It is itself an object of the graph with
// its own stable identity.
type Relation struct {
	Object

	// SourceID is the ID of the object the relation starts from.
	SourceID string

	// TargetID is the ID of the object the relation points to.
	TargetID string
}

// Model is the in-memory object graph. It tracks two independent levels of
// dirtiness: unsaved in-memory edits (Dirty) and the set of identifiers the
// user explicitly deleted since the last commit (Tombstones). The zero value
// is not usable; construct with New.
type Model struct {
	// ID identifies the model itself, independent of its objects.
	ID string

	// Name is the model's user-visible name.
	Name string

	// Version is an opaque format/version marker carried through snapshots.
	Version string

	elements  map[string]*Object
	relations map[string]*Relation
	deleted   map[string]struct{}
	dirty     bool
}

// New creates an empty model with a fresh identifier.
func New(name string) *Model {
	return &Model{
		ID:        NewID(),
		Name:      name,
		Version:   CurrentVersion,
		elements:  make(map[string]*Object),
		relations: make(map[string]*Relation),
		deleted:   make(map[string]struct{}),
	}
}

// CurrentVersion is the snapshot format version written by this build.
const CurrentVersion = "1"

// AddElement inserts an element into the graph. The object must carry a
// non-empty unique ID.
func (m *Model) AddElement(obj *Object) error {
	if obj == nil || obj.ID == "" {
		return WrapError(ErrInvalidObject, "element requires an ID")
	}
	if m.contains(obj.ID) {
		return WrapErrorf(ErrDuplicateID, "element %q", obj.ID)
	}
	m.elements[obj.ID] = obj
	delete(m.deleted, obj.ID)
	m.dirty = true
	return nil
}

// AddRelation inserts a relation into the graph. Both its source and target
// must already exist as elements.
func (m *Model) AddRelation(rel *Relation) error {
	if rel == nil || rel.ID == "" {
		return WrapError(ErrInvalidObject, "relation requires an ID")
	}
	if m.contains(rel.ID) {
		return WrapErrorf(ErrDuplicateID, "relation %q", rel.ID)
	}
	if _, ok := m.elements[rel.SourceID]; !ok {
		return WrapErrorf(ErrUnknownObject, "relation %q source %q", rel.ID, rel.SourceID)
	}
	if _, ok := m.elements[rel.TargetID]; !ok {
		return WrapErrorf(ErrUnknownObject, "relation %q target %q", rel.ID, rel.TargetID)
	}
	m.relations[rel.ID] = rel
	delete(m.deleted, rel.ID)
	m.dirty = true
	return nil
}

// Element returns the element with the given ID, or nil.
func (m *Model) Element(id string) *Object {
	return m.elements[id]
}

// Relation returns the relation with the given ID, or nil.
func (m *Model) Relation(id string) *Relation {
	return m.relations[id]
}

// Contains reports whether any object (element or relation) has the ID.
func (m *Model) Contains(id string) bool {
	return m.contains(id)
}

func (m *Model) contains(id string) bool {
	if _, ok := m.elements[id]; ok {
		return true
	}
	_, ok := m.relations[id]
	return ok
}

// Elements returns all elements sorted by ID. The slice is a copy; the
// pointed-to objects are live.
func (m *Model) Elements() []*Object {
	out := make([]*Object, 0, len(m.elements))
	for _, obj := range m.elements {
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Relations returns all relations sorted by ID.
func (m *Model) Relations() []*Relation {
	out := make([]*Relation, 0, len(m.relations))
	for _, rel := range m.relations {
		out = append(out, rel)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Delete removes the object with the given ID from the graph and records a
// tombstone for it. Deleting an element also deletes every relation whose
// source or target is that element, each with its own tombstone.
func (m *Model) Delete(id string) error {
	if rel, ok := m.relations[id]; ok {
		delete(m.relations, rel.ID)
		m.deleted[rel.ID] = struct{}{}
		m.dirty = true
		return nil
	}
	obj, ok := m.elements[id]
	if !ok {
		return WrapErrorf(ErrUnknownObject, "delete %q", id)
	}
	for _, rel := range m.relations {
		if rel.SourceID == obj.ID || rel.TargetID == obj.ID {
			delete(m.relations, rel.ID)
			m.deleted[rel.ID] = struct{}{}
		}
	}
	delete(m.elements, obj.ID)
	m.deleted[obj.ID] = struct{}{}
	m.dirty = true
	return nil
}

// Touch marks the model as having unsaved in-memory edits without changing
// the graph. Callers use it after mutating an Object in place.
func (m *Model) Touch() {
	m.dirty = true
}

// Dirty reports whether the model has unsaved in-memory edits.
func (m *Model) Dirty() bool {
	return m.dirty
}

// MarkSaved clears the unsaved-edits flag. The persistence collaborator
// calls this after a successful save.
func (m *Model) MarkSaved() {
	m.dirty = false
}

// Tombstones returns the IDs the user explicitly deleted since the last
// commit, sorted.
func (m *Model) Tombstones() []string {
	out := make([]string, 0, len(m.deleted))
	for id := range m.deleted {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ClearTombstones forgets recorded deletions. Called after the deletions
// have been committed.
func (m *Model) ClearTombstones() {
	m.deleted = make(map[string]struct{})
}

// Deleted reports whether the ID has a tombstone.
func (m *Model) Deleted(id string) bool {
	_, ok := m.deleted[id]
	return ok
}

// Len returns the number of objects in the graph (elements plus relations).
func (m *Model) Len() int {
	return len(m.elements) + len(m.relations)
}
