package docstore

import (
	"reflect"
	"time"
)

type serverTimestamp struct{}

// ServerTimestamp is a field sentinel replaced by the store's current UTC
// time when written.
var ServerTimestamp any = serverTimestamp{}

type arrayUnion struct {
	elems []any
}

// ArrayUnion is a field sentinel for Update that appends each element not
// already present in the stored array. A missing or non-array field is
// replaced by the elements.
func ArrayUnion(elems ...any) any {
	return arrayUnion{elems: elems}
}

// applyFields merges fields into doc resolving sentinels. doc is modified in
// place.
func applyFields(doc map[string]any, fields map[string]any, now time.Time) {
	for k, v := range fields {
		switch fv := v.(type) {
		case serverTimestamp:
			doc[k] = now.UTC().Format(time.RFC3339Nano)
		case arrayUnion:
			doc[k] = union(doc[k], fv.elems)
		default:
			doc[k] = v
		}
	}
}

func union(existing any, elems []any) []any {
	current, _ := existing.([]any)
	out := append([]any(nil), current...)

	for _, e := range elems {
		found := false
		for _, c := range out {
			if reflect.DeepEqual(c, e) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, e)
		}
	}

	return out
}
