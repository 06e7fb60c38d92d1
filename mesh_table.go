package indraw

import (
	"fmt"

	"github.com/google/uuid"
)

// MeshId identifies a registered mesh.
type MeshId string

func makeMeshId() MeshId {
	return MeshId(uuid.NewString())
}

// MeshGeometry is the static draw range of a registered mesh. For indexed
// tables Count is the index count and First the first index; for non-indexed
// tables they are the vertex count and first vertex, and BaseVertex must be
// zero.
type MeshGeometry struct {
	Count      uint32
	First      uint32
	BaseVertex int32
}

// MeshTable assigns each registered mesh a bucket index in registration
// order. Bucket indices are what instances carry as their Mesh field, and
// bucket order is the order the sorted output is partitioned in.
type MeshTable struct {
	indexed    bool
	geometries []MeshGeometry
	buckets    map[MeshId]uint32
	order      []MeshId
}

// NewMeshTable creates an empty table. indexed selects between the 20-byte
// indexed and 16-byte non-indexed argument layouts; one table never mixes
// the two.
func NewMeshTable(indexed bool) *MeshTable {
	return &MeshTable{
		indexed: indexed,
		buckets: map[MeshId]uint32{},
	}
}

func (t *MeshTable) Indexed() bool { return t.indexed }
func (t *MeshTable) Len() int      { return len(t.geometries) }

// Register adds a mesh and returns its handle. The bucket index is stable
// for the table's lifetime.
func (t *MeshTable) Register(geo MeshGeometry) (MeshId, error) {
	if !t.indexed && geo.BaseVertex != 0 {
		return "", fmt.Errorf("non-indexed draws have no base vertex, got %d", geo.BaseVertex)
	}
	id := makeMeshId()
	t.buckets[id] = uint32(len(t.geometries))
	t.order = append(t.order, id)
	t.geometries = append(t.geometries, geo)
	return id, nil
}

// Bucket resolves a mesh handle to its bucket index.
func (t *MeshTable) Bucket(id MeshId) (uint32, bool) {
	k, ok := t.buckets[id]
	return k, ok
}

// Geometry returns the static draw range of bucket k.
func (t *MeshTable) Geometry(k uint32) MeshGeometry {
	return t.geometries[k]
}

// NewArgTable builds a cleared argument table with one bucket per registered
// mesh. The table is a per-frame artifact conceptually, but since Clear
// resets it completely it is normally allocated once and reused.
func (t *MeshTable) NewArgTable() *ArgTable {
	args := &ArgTable{
		indexed: t.indexed,
		buckets: make([]bucketArgs, len(t.geometries)),
		state:   FrameCleared,
	}
	for k := range t.geometries {
		geo := &t.geometries[k]
		args.buckets[k].vertexCount = geo.Count
		args.buckets[k].firstVertex = geo.First
		args.buckets[k].baseVertex = geo.BaseVertex
	}
	return args
}
