package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/hupe1980/agentforge/internal/tracing"
)

// GCSOptions configures a GCSStore.
type GCSOptions struct {
	// Endpoint overrides the JSON API endpoint, e.g. an emulator's
	// http://localhost:4443/storage/v1/.
	Endpoint string
	// Anonymous skips credential discovery. Emulators need it.
	Anonymous bool
	// ClientOptions are passed to storage.NewClient after the options above,
	// e.g. option.WithTokenSource.
	ClientOptions []option.ClientOption
	// MaxBytes caps the size of a single object (0 = 32 MiB).
	MaxBytes int64
}

// GCSStore reads gs:// objects with the Cloud Storage client. The client is
// created on first use so a process without Google credentials can still
// serve other schemes; a failed creation is retried on the next read.
type GCSStore struct {
	opts GCSOptions

	mu     sync.Mutex
	client *storage.Client
}

var _ Store = (*GCSStore)(nil)

// NewGCSStore returns a GCSStore.
func NewGCSStore(optFns ...func(o *GCSOptions)) *GCSStore {
	opts := GCSOptions{
		MaxBytes: 32 << 20,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 32 << 20
	}

	return &GCSStore{opts: opts}
}

func (g *GCSStore) Supports(uri string) bool { return hasScheme(uri, []string{"gs"}) }

func (g *GCSStore) Read(ctx context.Context, uri string) ([]byte, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if loc.Scheme != "gs" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, uri)
	}

	ctx, span := tracing.StartSpan(ctx, "blob.gcs.read", tracing.String("bucket", loc.Bucket), tracing.String("object", loc.Object))
	defer span.End()

	client, err := g.storageClient(ctx)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	r, err := client.Bucket(loc.Bucket).Object(loc.Object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, fmt.Errorf("%s: %w", uri, ErrNotFound)
		}
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("fetch %s: %w", uri, err)
	}
	defer r.Close()

	limit := g.opts.MaxBytes
	if r.Attrs.Size > limit {
		return nil, fmt.Errorf("read %s: object exceeds %d bytes", uri, limit)
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("read %s: object exceeds %d bytes", uri, limit)
	}

	tracing.SetOK(span)

	return data, nil
}

// Close releases the underlying client, if one was created.
func (g *GCSStore) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client == nil {
		return nil
	}
	err := g.client.Close()
	g.client = nil
	return err
}

func (g *GCSStore) storageClient(ctx context.Context) (*storage.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}

	var copts []option.ClientOption
	if g.opts.Endpoint != "" {
		copts = append(copts, option.WithEndpoint(g.opts.Endpoint))
	}
	if g.opts.Anonymous {
		copts = append(copts, option.WithoutAuthentication())
	}
	copts = append(copts, g.opts.ClientOptions...)

	// The client outlives this read.
	client, err := storage.NewClient(context.WithoutCancel(ctx), copts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	g.client = client

	return client, nil
}
