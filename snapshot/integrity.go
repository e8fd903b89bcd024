// This file contains referential-integrity checks over snapshots: finding
// relations whose endpoint elements have no file, and repairing them from
// donor snapshots. Merges use this to avoid committing a tree that ToModel
// would reject as corrupt.
package snapshot

import (
	"encoding/json"
	"sort"
)

// DanglingEndpoints returns the element IDs referenced as source or target
// by the snapshot's relations that have no element file of their own,
// sorted. Relation files that do not parse are skipped; loading reports
// those on its own terms.
func DanglingEndpoints(snap Snapshot) []string {
	elements := make(map[string]struct{})
	for p := range snap {
		if id, ok := ObjectIDFromPath(p); ok && inDir(p, ElementsDir) {
			elements[id] = struct{}{}
		}
	}

	missing := make(map[string]struct{})
	for p, data := range snap {
		if _, ok := ObjectIDFromPath(p); !ok || !inDir(p, RelationsDir) {
			continue
		}
		var rf relationFile
		if err := json.Unmarshal(data, &rf); err != nil {
			continue
		}
		for _, id := range []string{rf.Source, rf.Target} {
			if id == "" {
				continue
			}
			if _, ok := elements[id]; !ok {
				missing[id] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(missing))
	for id := range missing {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RepairDanglingRelations restores the element files the snapshot's
// relations depend on: every dangling endpoint is copied from the first
// donor snapshot that carries a file for it. Endpoints no donor can supply
// stay missing and are left for loading to reject. Returns the restored
// paths, sorted.
func RepairDanglingRelations(snap Snapshot, donors ...Snapshot) []string {
	missing := DanglingEndpoints(snap)
	if len(missing) == 0 {
		return nil
	}

	var restored []string
	for _, id := range missing {
		for _, donor := range donors {
			p, ok := donor.elementFile(id)
			if !ok {
				continue
			}
			snap[p] = donor[p]
			restored = append(restored, p)
			break
		}
	}

	sort.Strings(restored)
	return restored
}

// elementFile returns the path of the element file for an ID, if present.
func (s Snapshot) elementFile(id string) (string, bool) {
	for p := range s {
		if fileID, ok := ObjectIDFromPath(p); ok && fileID == id && inDir(p, ElementsDir) {
			return p, true
		}
	}
	return "", false
}
