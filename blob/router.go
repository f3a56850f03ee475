package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Router dispatches to the first store that supports a URI.
type Router struct {
	stores []Store
}

var _ Store = (*Router)(nil)

// NewRouter combines stores in priority order.
func NewRouter(stores ...Store) *Router {
	return &Router{stores: stores}
}

func (r *Router) Supports(uri string) bool {
	return r.lookup(uri) != nil
}

func (r *Router) Read(ctx context.Context, uri string) ([]byte, error) {
	s := r.lookup(uri)
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, uri)
	}
	return s.Read(ctx, uri)
}

func (r *Router) lookup(uri string) Store {
	for _, s := range r.stores {
		if s.Supports(uri) {
			return s
		}
	}
	return nil
}

// Close closes every store that holds resources.
func (r *Router) Close() error {
	var errs []error
	for _, s := range r.stores {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
