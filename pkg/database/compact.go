package database

import (
	"bufio"
	"io"
	"sort"

	"github.com/x448/float16"

	"github.com/oasysai/oasysdb/pkg/collection"
	"github.com/oasysai/oasysdb/pkg/core/distance"
	"github.com/oasysai/oasysdb/pkg/core/metadata"
	"github.com/oasysai/oasysdb/pkg/core/oaserr"
	"github.com/oasysai/oasysdb/pkg/core/types"
	"github.com/oasysai/oasysdb/pkg/core/vector"
	"github.com/oasysai/oasysdb/pkg/persistence"
)

// Compact snapshots store vectors in IEEE-754 half precision, halving the
// vector payload for shipping large collections around. The export is lossy
// twice over: vector components are rounded to float16, and the import
// rebuilds the collection from scratch, reassigning dense IDs in ascending
// order of the originals. Use the regular snapshot format when exact
// round-tripping matters.

var compactMagic = [4]byte{'O', 'A', 'S', 'C'}

const compactVersion uint16 = 1

// ExportCompact writes a half-precision export of the collection.
func ExportCompact(w io.Writer, c *collection.Collection) error {
	records, err := c.List()
	if err != nil {
		return err
	}
	ids := make([]vector.ID, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	metric, err := c.Config().Metric()
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	pw := persistence.NewWriter(bw)

	pw.Raw(compactMagic[:])
	pw.U16(compactVersion)
	pw.U32(uint32(c.Dimension()))
	pw.U8(uint8(metric))
	pw.U32(uint32(len(ids)))

	var blob []byte
	for _, id := range ids {
		record := records[id]
		pw.U32(uint32(id))
		for _, f := range record.Vector {
			pw.U16(float16.Fromfloat32(f).Bits())
		}
		blob = metadata.AppendBinary(blob[:0], record.Data)
		pw.Uvarint(uint64(len(blob)))
		pw.Raw(blob)
	}

	if err := pw.Finish(); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return oaserr.WrapIo(err)
	}
	return nil
}

// ImportCompact rebuilds a collection from a compact export, using the
// default configuration with the exported distance metric.
func ImportCompact(r io.Reader) (*collection.Collection, error) {
	payload, err := persistence.ReadVerified(r)
	if err != nil {
		return nil, err
	}
	pr := persistence.NewReader(payload)

	magic := pr.Raw(len(compactMagic))
	if pr.Err() != nil || string(magic) != string(compactMagic[:]) {
		return nil, oaserr.Corrupt("bad compact export magic")
	}
	if version := pr.U16(); version != compactVersion {
		return nil, oaserr.Corrupt("unsupported compact export version %d", version)
	}

	dim := int(pr.U32())
	metric := distance.Metric(pr.U8())
	if !metric.IsValid() {
		return nil, oaserr.Corrupt("unknown distance tag %d", uint8(metric))
	}
	count := int(pr.U32())
	if err := pr.Err(); err != nil {
		return nil, err
	}
	if uint64(count)*(4+uint64(dim)*2+1) > uint64(pr.Remaining()) {
		return nil, oaserr.Corrupt("record count %d exceeds the stream size", count)
	}

	records := make([]types.Record, 0, count)
	for i := 0; i < count; i++ {
		pr.U32() // original ID, informational only

		vec := make(vector.Vector, dim)
		for j := range vec {
			vec[j] = float16.Frombits(pr.U16()).Float32()
		}

		blobLen := pr.Uvarint()
		if blobLen > uint64(pr.Remaining()) {
			return nil, oaserr.Corrupt("metadata blob overruns the stream")
		}
		blob := pr.Raw(int(blobLen))
		if err := pr.Err(); err != nil {
			return nil, err
		}

		var data metadata.Metadata
		if blobLen > 0 {
			var used int
			data, used, err = metadata.DecodeBinary(blob)
			if err != nil {
				return nil, err
			}
			if used != len(blob) {
				return nil, oaserr.Corrupt("metadata blob has trailing bytes")
			}
		}
		records = append(records, types.Record{Vector: vec, Data: data})
	}
	if pr.Remaining() != 0 {
		return nil, oaserr.Corrupt("compact export has %d trailing bytes", pr.Remaining())
	}

	config := collection.DefaultConfig()
	config.Distance = metric.String()
	return collection.Build(config, records)
}
