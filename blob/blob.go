// Package blob reads conversation attachments from object storage.
//
// A Store answers two questions: whether it serves a URI (Supports) and what
// the object's bytes are (Read). Router combines several stores by scheme.
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// ErrUnsupported is returned by Read for URIs a store does not serve.
var ErrUnsupported = errors.New("unsupported object uri")

// Store reads objects by URI.
type Store interface {
	Supports(uri string) bool
	Read(ctx context.Context, uri string) ([]byte, error)
}

// Location is a parsed object URI of the form scheme://bucket/object.
type Location struct {
	Scheme string
	Bucket string
	Object string
}

// ParseURI splits scheme://bucket/object. The object is everything after the
// first slash following the bucket, taken verbatim: '#', '?' and '%' are part
// of object names, not URL syntax.
func ParseURI(uri string) (Location, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok || scheme == "" {
		return Location{}, fmt.Errorf("%w: %q", ErrUnsupported, uri)
	}

	bucket, obj, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("%w: %q has no bucket", ErrUnsupported, uri)
	}
	if obj == "" {
		return Location{}, fmt.Errorf("%w: %q has no object", ErrUnsupported, uri)
	}

	return Location{Scheme: scheme, Bucket: bucket, Object: obj}, nil
}

// ObjectName returns the object path of a URI (everything after the bucket),
// or the URI itself when it cannot be parsed.
func ObjectName(uri string) string {
	loc, err := ParseURI(uri)
	if err != nil {
		return uri
	}
	return loc.Object
}

func hasScheme(uri string, schemes []string) bool {
	for _, s := range schemes {
		if strings.HasPrefix(uri, s+"://") {
			return true
		}
	}
	return false
}
