// Package snapshot converts the in-memory model to its versioned file form
// and back. A snapshot is one file per model object, keyed by identifier,
// under a deterministic directory layout:
//
//	model.json                  manifest (model id, name, version)
//	objects/<Kind>/<ID>.json    one element per file
//	relations/<Kind>/<ID>.json  one relation per file
//
// Paths depend only on the object's identifier and kind, never on mutable
// attributes, so version-control diffs stay meaningful across renames.
package snapshot

import (
	"bytes"
	"path"
	"sort"
	"strings"
)

const (
	// ManifestPath is the snapshot path of the model manifest file.
	ManifestPath = "model.json"

	// ElementsDir is the snapshot directory holding element files.
	ElementsDir = "objects"

	// RelationsDir is the snapshot directory holding relation files.
	RelationsDir = "relations"

	fileExt = ".json"
)

// Snapshot is the serialized form of a model at a point in time: a mapping
// from repository-relative path to file content.
type Snapshot map[string][]byte

// Paths returns all paths in the snapshot, sorted.
func (s Snapshot) Paths() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for p, data := range s {
		dup := make([]byte, len(data))
		copy(dup, data)
		out[p] = dup
	}
	return out
}

// Equal reports whether two snapshots contain the same paths with
// byte-identical content.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for p, data := range s {
		otherData, ok := other[p]
		if !ok || !bytes.Equal(data, otherData) {
			return false
		}
	}
	return true
}

// ElementPath returns the snapshot path for an element file.
func ElementPath(kind, id string) string {
	return path.Join(ElementsDir, kind, id+fileExt)
}

// RelationPath returns the snapshot path for a relation file.
func RelationPath(kind, id string) string {
	return path.Join(RelationsDir, kind, id+fileExt)
}

// ObjectIDFromPath extracts the model object identifier a snapshot path
// refers to. It reports false for the manifest and for paths outside the
// snapshot layout.
func ObjectIDFromPath(p string) (string, bool) {
	if !strings.HasSuffix(p, fileExt) {
		return "", false
	}
	parts := strings.Split(p, "/")
	if len(parts) != 3 {
		return "", false
	}
	if parts[0] != ElementsDir && parts[0] != RelationsDir {
		return "", false
	}
	return strings.TrimSuffix(parts[2], fileExt), true
}

// isObjectPath reports whether p lies inside the element or relation layout.
func isObjectPath(p string) bool {
	_, ok := ObjectIDFromPath(p)
	return ok
}
