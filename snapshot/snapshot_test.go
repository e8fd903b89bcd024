package snapshot

import (
	"testing"

	fsb "github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/architectureofthings/archi-modelrepository-plugin/model"
)

// buildTestModel assembles a small graph with elements, relations,
// properties and documentation.
func buildTestModel(t *testing.T) *model.Model {
	t.Helper()

	m := model.New("sample")
	require.NoError(t, m.AddElement(&model.Object{
		ID:   "elem-a",
		Kind: "BusinessActor",
		Name: "Alice",
		Properties: map[string]string{
			"team": "platform",
			"site": "ams",
		},
	}))
	require.NoError(t, m.AddElement(&model.Object{
		ID:            "elem-b",
		Kind:          "BusinessRole",
		Name:          "Operator",
		Documentation: "On-call rotation role.",
	}))
	require.NoError(t, m.AddRelation(&model.Relation{
		Object:   model.Object{ID: "rel-1", Kind: "Assignment", Name: "fills"},
		SourceID: "elem-a",
		TargetID: "elem-b",
	}))
	m.MarkSaved()

	return m
}

func TestRoundTrip(t *testing.T) {
	m := buildTestModel(t)

	snap, err := FromModel(m)
	require.NoError(t, err)

	loaded, err := ToModel(snap)
	require.NoError(t, err)

	assert.Equal(t, m.ID, loaded.ID)
	assert.Equal(t, m.Name, loaded.Name)
	assert.Equal(t, m.Version, loaded.Version)
	assert.Equal(t, m.Elements(), loaded.Elements())
	assert.Equal(t, m.Relations(), loaded.Relations())
	assert.False(t, loaded.Dirty(), "a freshly loaded model has no unsaved edits")
}

func TestFromModelDeterministic(t *testing.T) {
	m := buildTestModel(t)

	first, err := FromModel(m)
	require.NoError(t, err)

	second, err := FromModel(m)
	require.NoError(t, err)

	require.True(t, first.Equal(second), "unchanged model must serialize byte-identically")
}

func TestFromModelLayout(t *testing.T) {
	m := buildTestModel(t)

	snap, err := FromModel(m)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"model.json",
		"objects/BusinessActor/elem-a.json",
		"objects/BusinessRole/elem-b.json",
		"relations/Assignment/rel-1.json",
	}, snap.Paths())
}

func TestToModelCorruptCases(t *testing.T) {
	valid, err := FromModel(buildTestModel(t))
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(Snapshot)
	}{
		{
			name:   "missing manifest",
			mutate: func(s Snapshot) { delete(s, ManifestPath) },
		},
		{
			name: "unparsable manifest",
			mutate: func(s Snapshot) {
				s[ManifestPath] = []byte("{ not json")
			},
		},
		{
			name: "unparsable element",
			mutate: func(s Snapshot) {
				s["objects/BusinessActor/elem-a.json"] = []byte("garbage")
			},
		},
		{
			name: "element ID disagrees with path",
			mutate: func(s Snapshot) {
				s["objects/BusinessActor/elem-a.json"] = []byte(`{"id":"other","kind":"BusinessActor"}`)
			},
		},
		{
			name: "dangling relation target",
			mutate: func(s Snapshot) {
				delete(s, "objects/BusinessRole/elem-b.json")
			},
		},
		{
			name: "duplicated ID across kinds",
			mutate: func(s Snapshot) {
				s["objects/Node/elem-a.json"] = []byte(`{"id":"elem-a","kind":"Node"}` + "\n")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := valid.Clone()
			tt.mutate(snap)

			_, err := ToModel(snap)
			require.ErrorIs(t, err, ErrCorruptSnapshot)
		})
	}
}

func TestObjectIDFromPath(t *testing.T) {
	tests := []struct {
		path   string
		wantID string
		wantOK bool
	}{
		{"objects/BusinessActor/elem-a.json", "elem-a", true},
		{"relations/Assignment/rel-1.json", "rel-1", true},
		{"model.json", "", false},
		{"objects/elem-a.json", "", false},
		{"objects/BusinessActor/elem-a.txt", "", false},
		{"other/BusinessActor/elem-a.json", "", false},
	}

	for _, tt := range tests {
		id, ok := ObjectIDFromPath(tt.path)
		assert.Equal(t, tt.wantOK, ok, tt.path)
		assert.Equal(t, tt.wantID, id, tt.path)
	}
}

func TestDiff(t *testing.T) {
	m := buildTestModel(t)
	before, err := FromModel(m)
	require.NoError(t, err)

	m.Element("elem-a").Name = "Alicia"
	require.NoError(t, m.Delete("elem-b")) // cascades to rel-1
	require.NoError(t, m.AddElement(&model.Object{ID: "elem-c", Kind: "Node", Name: "Host"}))

	after, err := FromModel(m)
	require.NoError(t, err)

	changes := Diff(before, after)
	require.Len(t, changes, 4)

	byPath := map[string]Change{}
	for _, c := range changes {
		byPath[c.Path] = c
	}

	assert.Equal(t, ChangeUpdate, byPath["objects/BusinessActor/elem-a.json"].Type)
	assert.Equal(t, "elem-a", byPath["objects/BusinessActor/elem-a.json"].ObjectID)
	assert.Equal(t, ChangeDelete, byPath["objects/BusinessRole/elem-b.json"].Type)
	assert.Equal(t, ChangeDelete, byPath["relations/Assignment/rel-1.json"].Type)
	assert.Equal(t, ChangeAdd, byPath["objects/Node/elem-c.json"].Type)
}

func TestDiffIdentical(t *testing.T) {
	snap, err := FromModel(buildTestModel(t))
	require.NoError(t, err)

	assert.Empty(t, Diff(snap, snap.Clone()))
}

func TestWriteAndRead(t *testing.T) {
	memFS := fsb.NewInMemoryFS()
	snap, err := FromModel(buildTestModel(t))
	require.NoError(t, err)

	require.NoError(t, Write(memFS, snap))

	loaded, err := Read(memFS)
	require.NoError(t, err)
	require.True(t, snap.Equal(loaded), "read-back snapshot must match what was written")
}

func TestWriteRemovesStaleFiles(t *testing.T) {
	memFS := fsb.NewInMemoryFS()
	m := buildTestModel(t)

	snap, err := FromModel(m)
	require.NoError(t, err)
	require.NoError(t, Write(memFS, snap))

	require.NoError(t, m.Delete("elem-b"))
	smaller, err := FromModel(m)
	require.NoError(t, err)
	require.NoError(t, Write(memFS, smaller))

	exists, err := memFS.Exists("objects/BusinessRole/elem-b.json")
	require.NoError(t, err)
	assert.False(t, exists, "stale element file should be removed")

	exists, err = memFS.Exists("relations/Assignment/rel-1.json")
	require.NoError(t, err)
	assert.False(t, exists, "stale relation file should be removed")

	loaded, err := Read(memFS)
	require.NoError(t, err)
	require.True(t, smaller.Equal(loaded))
}

func TestWriteLeavesForeignFilesAlone(t *testing.T) {
	memFS := fsb.NewInMemoryFS()
	require.NoError(t, memFS.WriteFile("README.md", []byte("keep me"), 0o644))

	snap, err := FromModel(buildTestModel(t))
	require.NoError(t, err)
	require.NoError(t, Write(memFS, snap))

	data, err := memFS.ReadFile("README.md")
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))
}

func TestDanglingEndpoints(t *testing.T) {
	snap := Snapshot{
		"model.json":                        []byte(`{"id":"m","name":"M","version":"1"}`),
		"objects/BusinessActor/elem-x.json": []byte(`{"id":"elem-x","kind":"BusinessActor"}`),
		"relations/Assignment/rel-1.json":   []byte(`{"id":"rel-1","kind":"Assignment","source":"elem-x","target":"elem-y"}`),
		"relations/Flow/rel-2.json":         []byte(`{"id":"rel-2","kind":"Flow","source":"elem-z","target":"elem-y"}`),
	}

	assert.Equal(t, []string{"elem-y", "elem-z"}, DanglingEndpoints(snap))

	snap["objects/BusinessRole/elem-y.json"] = []byte(`{"id":"elem-y","kind":"BusinessRole"}`)
	snap["objects/Node/elem-z.json"] = []byte(`{"id":"elem-z","kind":"Node"}`)
	assert.Empty(t, DanglingEndpoints(snap))
}

func TestRepairDanglingRelations(t *testing.T) {
	snap := Snapshot{
		"objects/BusinessActor/elem-x.json": []byte(`{"id":"elem-x","kind":"BusinessActor"}`),
		"relations/Assignment/rel-1.json":   []byte(`{"id":"rel-1","kind":"Assignment","source":"elem-x","target":"elem-y"}`),
		"relations/Flow/rel-2.json":         []byte(`{"id":"rel-2","kind":"Flow","source":"elem-z","target":"elem-y"}`),
	}

	first := Snapshot{
		"objects/BusinessRole/elem-y.json": []byte(`{"id":"elem-y","kind":"BusinessRole","name":"from first"}`),
	}
	second := Snapshot{
		"objects/BusinessRole/elem-y.json": []byte(`{"id":"elem-y","kind":"BusinessRole","name":"from second"}`),
		"objects/Node/elem-z.json":         []byte(`{"id":"elem-z","kind":"Node"}`),
	}

	restored := RepairDanglingRelations(snap, first, second)
	assert.Equal(t, []string{
		"objects/BusinessRole/elem-y.json",
		"objects/Node/elem-z.json",
	}, restored)

	// Earlier donors win.
	assert.Equal(t, first["objects/BusinessRole/elem-y.json"], snap["objects/BusinessRole/elem-y.json"])
	assert.Empty(t, DanglingEndpoints(snap))
}

func TestRepairDanglingRelationsWithoutDonor(t *testing.T) {
	snap := Snapshot{
		"relations/Assignment/rel-1.json": []byte(`{"id":"rel-1","kind":"Assignment","source":"elem-x","target":"elem-y"}`),
	}

	// No donor carries the endpoints; the snapshot stays as it is and
	// loading rejects it.
	assert.Empty(t, RepairDanglingRelations(snap, Snapshot{}))
	assert.Equal(t, []string{"elem-x", "elem-y"}, DanglingEndpoints(snap))
}
