package collection

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"github.com/oasysai/oasysdb/pkg/core/distance"
	"github.com/oasysai/oasysdb/pkg/core/hnsw"
	"github.com/oasysai/oasysdb/pkg/core/metadata"
	"github.com/oasysai/oasysdb/pkg/core/oaserr"
	"github.com/oasysai/oasysdb/pkg/core/types"
	"github.com/oasysai/oasysdb/pkg/core/vector"
	"github.com/oasysai/oasysdb/pkg/persistence"
)

// The snapshot is a deterministic little-endian encoding of the entire
// collection: header, records in ascending ID order, graph nodes in
// ascending ID order, and a trailing CRC32-C over everything before it.

var snapshotMagic = [4]byte{'O', 'A', 'S', 'Y'}

// snapshotVersion is bumped on any incompatible layout change.
const snapshotVersion uint16 = 1

// Serialize writes the whole collection to w. The stream is deterministic:
// serializing the same collection twice produces identical bytes.
func (c *Collection) Serialize(w io.Writer) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	bw := bufio.NewWriter(w)
	pw := persistence.NewWriter(bw)

	// Header.
	pw.Raw(snapshotMagic[:])
	pw.U16(snapshotVersion)
	pw.U32(uint32(c.dimension))
	pw.U16(hnsw.M)
	pw.U16(hnsw.M0)
	pw.U32(uint32(c.config.EfConstruction))
	pw.U32(uint32(c.config.EfSearch))
	pw.F64(c.config.Ml)
	pw.U8(uint8(c.metric))
	pw.F32(c.relevancy)
	pw.U32(uint32(c.store.NextID()))
	pw.U32(uint32(c.index.EntryPoint()))
	levelMax := c.index.MaxLevel()
	if levelMax < 0 {
		levelMax = 0
	}
	pw.U16(uint16(levelMax))

	// Records.
	pw.U32(uint32(c.store.Len()))
	var blob []byte
	c.store.IterLive(func(id vector.ID, record *types.Record) bool {
		pw.U32(uint32(id))
		for _, f := range record.Vector {
			pw.F32(f)
		}
		blob = metadata.AppendBinary(blob[:0], record.Data)
		pw.Uvarint(uint64(len(blob)))
		pw.Raw(blob)
		return pw.Err() == nil
	})

	// Graph nodes.
	pw.U32(uint32(c.index.NodeCount()))
	c.index.IterNodes(func(n *hnsw.Node) bool {
		pw.U32(uint32(n.ID))
		pw.U16(uint16(n.Level))
		for _, conns := range n.Connections {
			pw.U16(uint16(len(conns)))
			for _, nb := range conns {
				pw.U32(uint32(nb))
			}
		}
		return pw.Err() == nil
	})

	if err := pw.Finish(); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return oaserr.WrapIo(err)
	}
	return nil
}

// Deserialize reads a collection snapshot written by Serialize. The stream
// is fully verified: magic, version, checksum, and the collection
// invariants are re-checked before the collection is returned.
func Deserialize(r io.Reader) (*Collection, error) {
	payload, err := persistence.ReadVerified(r)
	if err != nil {
		return nil, err
	}
	pr := persistence.NewReader(payload)

	// Header.
	magic := pr.Raw(len(snapshotMagic))
	if pr.Err() != nil || string(magic) != string(snapshotMagic[:]) {
		return nil, oaserr.Corrupt("bad snapshot magic")
	}
	if version := pr.U16(); version != snapshotVersion {
		return nil, oaserr.Corrupt("unsupported snapshot version %d", version)
	}

	dim := pr.U32()
	if m := pr.U16(); m != hnsw.M {
		return nil, oaserr.Corrupt("snapshot M %d does not match the fixed parameter %d", m, hnsw.M)
	}
	if m0 := pr.U16(); m0 != hnsw.M0 {
		return nil, oaserr.Corrupt("snapshot M0 %d does not match the fixed parameter %d", m0, hnsw.M0)
	}
	efConstruction := pr.U32()
	efSearch := pr.U32()
	ml := pr.F64()
	metric := distance.Metric(pr.U8())
	relevancy := pr.F32()
	nextID := vector.ID(pr.U32())
	entry := vector.ID(pr.U32())
	levelMax := int(pr.U16())
	if err := pr.Err(); err != nil {
		return nil, err
	}
	if !metric.IsValid() {
		return nil, oaserr.Corrupt("unknown distance tag %d", uint8(metric))
	}

	config := Config{
		EfConstruction: int(efConstruction),
		EfSearch:       int(efSearch),
		Ml:             ml,
		Distance:       metric.String(),
	}
	if err := config.Validate(); err != nil {
		return nil, oaserr.Corrupt("snapshot config is invalid: %v", err)
	}

	c, err := New(config)
	if err != nil {
		return nil, err
	}
	c.dimension = int(dim)
	c.relevancy = relevancy

	// Records.
	recordCount := pr.U32()
	recordSize := uint64(4) + uint64(dim)*4 + 1
	if uint64(recordCount)*recordSize > uint64(pr.Remaining()) {
		return nil, oaserr.Corrupt("record count %d exceeds the stream size", recordCount)
	}
	for i := uint32(0); i < recordCount; i++ {
		id := vector.ID(pr.U32())
		vec := readVector(pr, int(dim))
		blobLen := pr.Uvarint()
		if blobLen > uint64(pr.Remaining()) {
			return nil, oaserr.Corrupt("metadata blob overruns the stream")
		}
		blob := pr.Raw(int(blobLen))
		if err := pr.Err(); err != nil {
			return nil, err
		}
		if !id.IsValid() || id >= nextID {
			return nil, oaserr.Corrupt("record ID %d is outside the allocated range", uint32(id))
		}

		var data metadata.Metadata
		if blobLen > 0 {
			var used int
			data, used, err = metadata.DecodeBinary(blob)
			if err != nil {
				return nil, err
			}
			if used != len(blob) {
				return nil, oaserr.Corrupt("metadata blob for record %d has trailing bytes", uint32(id))
			}
		}
		c.store.PutAt(id, types.Record{Vector: vec, Data: data})
	}
	if c.store.Len() != int(recordCount) {
		return nil, oaserr.Corrupt("snapshot contains duplicate record IDs")
	}
	c.store.SetNextID(nextID)

	// Graph nodes.
	nodeCount := pr.U32()
	if nodeCount != recordCount {
		return nil, oaserr.Corrupt("node count %d does not match record count %d", nodeCount, recordCount)
	}
	for i := uint32(0); i < nodeCount; i++ {
		id := vector.ID(pr.U32())
		level := int(pr.U16())
		if err := pr.Err(); err != nil {
			return nil, err
		}

		stored, ok := c.store.VectorRef(id)
		if !ok {
			return nil, oaserr.Corrupt("graph node %d has no record", uint32(id))
		}
		if c.index.Node(id) != nil {
			return nil, oaserr.Corrupt("snapshot contains duplicate graph node %d", uint32(id))
		}

		conns := make([][]vector.ID, level+1)
		for l := 0; l <= level; l++ {
			count := int(pr.U16())
			layer := make([]vector.ID, 0, count)
			for j := 0; j < count; j++ {
				layer = append(layer, vector.ID(pr.U32()))
			}
			conns[l] = layer
		}
		if err := pr.Err(); err != nil {
			return nil, err
		}
		c.index.RestoreNode(id, stored, level, conns)
	}

	if entry.IsValid() {
		c.index.SetEntryPoint(entry, levelMax)
	} else {
		c.index.SetEntryPoint(vector.Invalid, -1)
	}

	if pr.Remaining() != 0 {
		return nil, oaserr.Corrupt("snapshot has %d trailing bytes", pr.Remaining())
	}
	if err := c.index.CheckInvariants(); err != nil {
		return nil, err
	}
	return c, nil
}

// readVector decodes dim little-endian floats.
func readVector(pr *persistence.Reader, dim int) vector.Vector {
	raw := pr.Raw(dim * 4)
	if raw == nil {
		return nil
	}
	vec := make(vector.Vector, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vec
}
