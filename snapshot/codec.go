package snapshot

import (
	"encoding/json"

	"github.com/architectureofthings/archi-modelrepository-plugin/model"
)

// manifestFile is the wire form of the model manifest.
type manifestFile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// elementFile is the wire form of one element.
type elementFile struct {
	ID            string            `json:"id"`
	Kind          string            `json:"kind"`
	Name          string            `json:"name,omitempty"`
	Documentation string            `json:"documentation,omitempty"`
	Properties    map[string]string `json:"properties,omitempty"`
}

// relationFile is the wire form of one relation.
type relationFile struct {
	ID            string            `json:"id"`
	Kind          string            `json:"kind"`
	Name          string            `json:"name,omitempty"`
	Documentation string            `json:"documentation,omitempty"`
	Properties    map[string]string `json:"properties,omitempty"`
	Source        string            `json:"source"`
	Target        string            `json:"target"`
}

// FromModel serializes a model into a snapshot. The traversal is a single
// sequential pass in sorted ID order and the encoding is stable (fixed field
// order, sorted map keys, two-space indent, trailing newline), so exporting
// an unchanged model always yields byte-identical output.
func FromModel(m *model.Model) (Snapshot, error) {
	snap := make(Snapshot, m.Len()+1)

	manifest, err := encode(manifestFile{ID: m.ID, Name: m.Name, Version: m.Version})
	if err != nil {
		return nil, err
	}
	snap[ManifestPath] = manifest

	for _, obj := range m.Elements() {
		data, err := encode(elementFile{
			ID:            obj.ID,
			Kind:          obj.Kind,
			Name:          obj.Name,
			Documentation: obj.Documentation,
			Properties:    obj.Properties,
		})
		if err != nil {
			return nil, WrapErrorf(err, "element %q", obj.ID)
		}
		snap[ElementPath(obj.Kind, obj.ID)] = data
	}

	for _, rel := range m.Relations() {
		data, err := encode(relationFile{
			ID:            rel.ID,
			Kind:          rel.Kind,
			Name:          rel.Name,
			Documentation: rel.Documentation,
			Properties:    rel.Properties,
			Source:        rel.SourceID,
			Target:        rel.TargetID,
		})
		if err != nil {
			return nil, WrapErrorf(err, "relation %q", rel.ID)
		}
		snap[RelationPath(rel.Kind, rel.ID)] = data
	}

	return snap, nil
}

// ToModel loads a snapshot back into a model. It is the inverse of
// FromModel and fails with ErrCorruptSnapshot when the snapshot violates its
// own structure: missing manifest, unparsable file, an ID that disagrees
// with the file's path, a duplicated ID, or a relation whose source or
// target has no file (dangling relation).
func ToModel(snap Snapshot) (*model.Model, error) {
	manifestData, ok := snap[ManifestPath]
	if !ok {
		return nil, WrapError(ErrCorruptSnapshot, "missing manifest "+ManifestPath)
	}

	var manifest manifestFile
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, WrapErrorf(ErrCorruptSnapshot, "manifest unparsable: %v", err)
	}
	if manifest.ID == "" {
		return nil, WrapError(ErrCorruptSnapshot, "manifest has no model ID")
	}

	m := model.New(manifest.Name)
	m.ID = manifest.ID
	m.Version = manifest.Version

	// Elements first so relation endpoint checks see the full node set.
	var relations []relationFile
	for _, p := range snap.Paths() {
		id, isObject := ObjectIDFromPath(p)
		if !isObject {
			continue
		}

		if inDir(p, RelationsDir) {
			var rf relationFile
			if err := json.Unmarshal(snap[p], &rf); err != nil {
				return nil, WrapErrorf(ErrCorruptSnapshot, "relation file %q unparsable: %v", p, err)
			}
			if rf.ID != id {
				return nil, WrapErrorf(ErrCorruptSnapshot, "relation file %q carries ID %q", p, rf.ID)
			}
			relations = append(relations, rf)
			continue
		}

		var ef elementFile
		if err := json.Unmarshal(snap[p], &ef); err != nil {
			return nil, WrapErrorf(ErrCorruptSnapshot, "element file %q unparsable: %v", p, err)
		}
		if ef.ID != id {
			return nil, WrapErrorf(ErrCorruptSnapshot, "element file %q carries ID %q", p, ef.ID)
		}
		err := m.AddElement(&model.Object{
			ID:            ef.ID,
			Kind:          ef.Kind,
			Name:          ef.Name,
			Documentation: ef.Documentation,
			Properties:    ef.Properties,
		})
		if err != nil {
			return nil, WrapErrorf(ErrCorruptSnapshot, "element %q: %v", ef.ID, err)
		}
	}

	for _, rf := range relations {
		err := m.AddRelation(&model.Relation{
			Object: model.Object{
				ID:            rf.ID,
				Kind:          rf.Kind,
				Name:          rf.Name,
				Documentation: rf.Documentation,
				Properties:    rf.Properties,
			},
			SourceID: rf.Source,
			TargetID: rf.Target,
		})
		if err != nil {
			// Unknown source/target means the referenced file is absent.
			return nil, WrapErrorf(ErrCorruptSnapshot, "dangling relation %q: %v", rf.ID, err)
		}
	}

	// Loading is not an edit.
	m.MarkSaved()

	return m, nil
}

// ObjectInfo summarizes one object file for display purposes.
type ObjectInfo struct {
	ID         string
	Kind       string
	Name       string
	IsRelation bool
}

// DescribeObject extracts display information from an object file without
// loading a full model. The path supplies the ID and kind; the content
// contributes the human-readable name when it parses.
func DescribeObject(path string, data []byte) (ObjectInfo, bool) {
	id, ok := ObjectIDFromPath(path)
	if !ok {
		return ObjectInfo{}, false
	}

	info := ObjectInfo{ID: id, IsRelation: inDir(path, RelationsDir)}

	var rf relationFile
	if err := json.Unmarshal(data, &rf); err == nil {
		info.Kind = rf.Kind
		info.Name = rf.Name
	}

	return info, true
}

func encode(v interface{}) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func inDir(p, dir string) bool {
	return len(p) > len(dir) && p[:len(dir)] == dir && p[len(dir)] == '/'
}
