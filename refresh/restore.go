package refresh

import (
	"fmt"
	"sort"
	"strings"

	"github.com/architectureofthings/archi-modelrepository-plugin/snapshot"
)

// RestoredObject records one model object brought back after a merge
// dropped it.
type RestoredObject struct {
	// ID is the object's stable identifier.
	ID string

	// Kind and Name describe the object for display; either may be empty
	// when the restored file did not parse.
	Kind string
	Name string

	// Paths are the snapshot paths restored for this object.
	Paths []string
}

// Report accumulates the objects restored during one refresh.
type Report struct {
	Objects []RestoredObject
}

// Empty reports whether nothing was restored.
func (r *Report) Empty() bool {
	return r == nil || len(r.Objects) == 0
}

// String renders the report for user display, one object per line. An
// empty report renders as the empty string.
func (r *Report) String() string {
	if r.Empty() {
		return ""
	}

	var b strings.Builder
	for i, obj := range r.Objects {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch {
		case obj.Name != "" && obj.Kind != "":
			fmt.Fprintf(&b, "%s %q (%s)", obj.Kind, obj.Name, obj.ID)
		case obj.Kind != "":
			fmt.Fprintf(&b, "%s (%s)", obj.Kind, obj.ID)
		default:
			b.WriteString(obj.ID)
		}
	}

	return b.String()
}

// repairedObjects converts the element files a merge repair copied back
// into the tree (surviving relations' endpoints) into restored-object
// records for the report.
func repairedObjects(snap snapshot.Snapshot, paths []string) []RestoredObject {
	out := make([]RestoredObject, 0, len(paths))
	for _, p := range paths {
		data, ok := snap[p]
		if !ok {
			continue
		}
		info, ok := snapshot.DescribeObject(p, data)
		if !ok {
			continue
		}
		out = append(out, RestoredObject{ID: info.ID, Kind: info.Kind, Name: info.Name, Paths: []string{p}})
	}
	return out
}

// Reconcile finds objects present in the prior snapshot that the merged
// snapshot lost, excluding objects the local user deleted deliberately, and
// returns their files for restoration along with the report. Objects are
// compared by identity, not path, so a file moved between kinds does not
// count as lost.
func Reconcile(prior, merged snapshot.Snapshot, locallyDeleted []string) (map[string][]byte, Report) {
	deleted := make(map[string]struct{}, len(locallyDeleted))
	for _, id := range locallyDeleted {
		deleted[id] = struct{}{}
	}

	survivors := make(map[string]struct{})
	for p := range merged {
		if id, ok := snapshot.ObjectIDFromPath(p); ok {
			survivors[id] = struct{}{}
		}
	}

	// Group the prior snapshot's files by object identity.
	lost := make(map[string][]string)
	for _, p := range prior.Paths() {
		id, ok := snapshot.ObjectIDFromPath(p)
		if !ok {
			continue
		}
		if _, alive := survivors[id]; alive {
			continue
		}
		if _, gone := deleted[id]; gone {
			continue
		}
		lost[id] = append(lost[id], p)
	}

	if len(lost) == 0 {
		return nil, Report{}
	}

	ids := make([]string, 0, len(lost))
	for id := range lost {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	files := make(map[string][]byte)
	report := Report{Objects: make([]RestoredObject, 0, len(ids))}

	for _, id := range ids {
		paths := lost[id]
		sort.Strings(paths)

		restored := RestoredObject{ID: id, Paths: paths}
		for _, p := range paths {
			files[p] = prior[p]
		}
		if info, ok := snapshot.DescribeObject(paths[0], prior[paths[0]]); ok {
			restored.Kind = info.Kind
			restored.Name = info.Name
		}

		report.Objects = append(report.Objects, restored)
	}

	return files, report
}
