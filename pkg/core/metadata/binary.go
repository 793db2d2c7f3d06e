package metadata

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/oasysai/oasysdb/pkg/core/oaserr"
)

// Canonical binary encoding: a 1-byte tag followed by the payload. Strings,
// arrays and objects carry uvarint lengths; integers use zigzag varints;
// floats are 8 little-endian bytes. Object entries are written in
// lexicographic key order so equal values always encode to equal bytes.

const (
	tagText    = 0x01
	tagInteger = 0x02
	tagFloat   = 0x03
	tagBoolean = 0x04
	tagArray   = 0x05
	tagObject  = 0x06
)

// AppendBinary appends the canonical encoding of m to dst.
func AppendBinary(dst []byte, m Metadata) []byte {
	switch v := m.(type) {
	case Text:
		dst = append(dst, tagText)
		dst = binary.AppendUvarint(dst, uint64(len(v)))
		dst = append(dst, v...)
	case Integer:
		dst = append(dst, tagInteger)
		dst = binary.AppendVarint(dst, int64(v))
	case Float:
		dst = append(dst, tagFloat)
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(float64(v)))
	case Boolean:
		dst = append(dst, tagBoolean)
		if v {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
	case Array:
		dst = append(dst, tagArray)
		dst = binary.AppendUvarint(dst, uint64(len(v)))
		for _, item := range v {
			dst = AppendBinary(dst, item)
		}
	case Object:
		dst = append(dst, tagObject)
		dst = binary.AppendUvarint(dst, uint64(len(v)))
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			dst = binary.AppendUvarint(dst, uint64(len(k)))
			dst = append(dst, k...)
			dst = AppendBinary(dst, v[k])
		}
	}
	return dst
}

// DecodeBinary decodes one metadata value from the front of buf, returning
// the value and the number of bytes consumed.
func DecodeBinary(buf []byte) (Metadata, int, error) {
	if len(buf) == 0 {
		return nil, 0, oaserr.Corrupt("metadata blob is empty")
	}

	tag := buf[0]
	rest := buf[1:]

	switch tag {
	case tagText:
		n, used, err := decodeLen(rest)
		if err != nil {
			return nil, 0, err
		}
		rest = rest[used:]
		if len(rest) < n {
			return nil, 0, oaserr.Corrupt("metadata text is truncated")
		}
		return Text(rest[:n]), 1 + used + n, nil

	case tagInteger:
		v, used := binary.Varint(rest)
		if used <= 0 {
			return nil, 0, oaserr.Corrupt("metadata integer is malformed")
		}
		return Integer(v), 1 + used, nil

	case tagFloat:
		if len(rest) < 8 {
			return nil, 0, oaserr.Corrupt("metadata float is truncated")
		}
		bits := binary.LittleEndian.Uint64(rest)
		return Float(math.Float64frombits(bits)), 1 + 8, nil

	case tagBoolean:
		if len(rest) < 1 {
			return nil, 0, oaserr.Corrupt("metadata boolean is truncated")
		}
		switch rest[0] {
		case 0:
			return Boolean(false), 2, nil
		case 1:
			return Boolean(true), 2, nil
		}
		return nil, 0, oaserr.Corrupt("metadata boolean has value %d", rest[0])

	case tagArray:
		count, used, err := decodeLen(rest)
		if err != nil {
			return nil, 0, err
		}
		total := 1 + used
		rest = rest[used:]
		arr := make(Array, 0, count)
		for i := 0; i < count; i++ {
			item, n, err := DecodeBinary(rest)
			if err != nil {
				return nil, 0, err
			}
			arr = append(arr, item)
			rest = rest[n:]
			total += n
		}
		return arr, total, nil

	case tagObject:
		count, used, err := decodeLen(rest)
		if err != nil {
			return nil, 0, err
		}
		total := 1 + used
		rest = rest[used:]
		obj := make(Object, count)
		for i := 0; i < count; i++ {
			klen, kused, err := decodeLen(rest)
			if err != nil {
				return nil, 0, err
			}
			rest = rest[kused:]
			if len(rest) < klen {
				return nil, 0, oaserr.Corrupt("metadata object key is truncated")
			}
			key := string(rest[:klen])
			rest = rest[klen:]
			val, n, err := DecodeBinary(rest)
			if err != nil {
				return nil, 0, err
			}
			obj[key] = val
			rest = rest[n:]
			total += kused + klen + n
		}
		return obj, total, nil
	}

	return nil, 0, oaserr.Corrupt("unknown metadata tag 0x%02x", tag)
}

func decodeLen(buf []byte) (int, int, error) {
	v, used := binary.Uvarint(buf)
	if used <= 0 || v > math.MaxInt32 {
		return 0, 0, oaserr.Corrupt("metadata length is malformed")
	}
	return int(v), used, nil
}
