package metadata

import (
	"strings"

	"github.com/oasysai/oasysdb/pkg/core/oaserr"
)

// Match reports whether stored satisfies the query, recursively:
//
//   - a Text query matches stored Text containing it as a substring,
//   - Integer, Float and Boolean queries match by equality,
//   - an Object query matches a stored Object that has every query key with
//     a recursively matching value.
//
// Array queries are not supported and return an Unsupported error. A type
// mismatch between query and stored value is simply a non-match.
func Match(stored, query Metadata) (bool, error) {
	switch q := query.(type) {
	case Text:
		s, ok := stored.(Text)
		return ok && strings.Contains(string(s), string(q)), nil
	case Integer:
		s, ok := stored.(Integer)
		return ok && s == q, nil
	case Float:
		s, ok := stored.(Float)
		return ok && s == q, nil
	case Boolean:
		s, ok := stored.(Boolean)
		return ok && s == q, nil
	case Object:
		s, ok := stored.(Object)
		if !ok {
			return false, nil
		}
		for key, sub := range q {
			value, present := s[key]
			if !present {
				return false, nil
			}
			matched, err := Match(value, sub)
			if err != nil || !matched {
				return false, err
			}
		}
		return true, nil
	case Array:
		return false, oaserr.New(oaserr.KindUnsupported, "array filters are not supported")
	case nil:
		return false, oaserr.New(oaserr.KindUnsupported, "empty filter")
	}
	return false, oaserr.New(oaserr.KindUnsupported, "unsupported filter shape")
}
