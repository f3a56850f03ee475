// Package agentforge wires the document store, attachment storage, agent
// tree builder and backend clients into a ready-to-use dispatcher. Most
// applications either call New with explicit collaborators or FromConfig
// with a loaded config.Config:
//
//	forge, err := agentforge.FromConfig(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer forge.Close()
//
//	res, err := forge.Dispatch(ctx, dispatch.Invocation{ChatID: "c1", AssistantMessageID: "a1", AgentID: "writer"})
//
// Defaults are in-memory and suitable for local development and tests.
package agentforge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"github.com/hupe1980/agentforge/a2a"
	"github.com/hupe1980/agentforge/binding"
	"github.com/hupe1980/agentforge/blob"
	"github.com/hupe1980/agentforge/builder"
	"github.com/hupe1980/agentforge/config"
	"github.com/hupe1980/agentforge/dispatch"
	"github.com/hupe1980/agentforge/docstore"
	"github.com/hupe1980/agentforge/hosted"
	"github.com/hupe1980/agentforge/internal/tracing"
	"github.com/hupe1980/agentforge/logging"
	"github.com/hupe1980/agentforge/model"
)

// Options configures a Forge. Unset collaborators get in-memory or default
// implementations.
type Options struct {
	Docs  docstore.Store
	Blobs blob.Store
	// Models creates model transports; set an Override to stub providers.
	Models *binding.Factory
	// Getenv reads provider credentials; defaults to os.Getenv.
	Getenv func(string) string
	Peer   dispatch.PeerClient
	Hosted dispatch.HostedClient
	// MaxModelCalls bounds model calls of one in-process run.
	MaxModelCalls int
	Logger        logging.Logger
}

// Forge is the assembled runtime.
type Forge struct {
	docs       docstore.Store
	blobs      blob.Store
	dispatcher *dispatch.Dispatcher
	logger     logging.Logger
	shutdown   []func(context.Context) error
}

// New creates a Forge with optional overrides.
func New(optFns ...func(o *Options)) *Forge {
	opts := Options{
		Docs:          docstore.NewMemoryStore(),
		Blobs:         blob.NewMemoryStore(),
		Models:        binding.NewFactory(),
		Getenv:        os.Getenv,
		MaxModelCalls: 100,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	b := builder.New(opts.Docs, func(o *builder.Options) {
		o.Models = opts.Models
		o.Bindings = binding.NewResolver(func(ro *binding.ResolverOptions) {
			ro.Getenv = opts.Getenv
			ro.Logger = opts.Logger
		})
		o.Logger = opts.Logger
	})

	d := dispatch.New(opts.Docs, opts.Blobs, func(o *dispatch.Options) {
		o.Builder = b
		o.Peer = opts.Peer
		o.Hosted = opts.Hosted
		o.MaxModelCalls = opts.MaxModelCalls
		o.Logger = opts.Logger
	})

	return &Forge{
		docs:       opts.Docs,
		blobs:      opts.Blobs,
		dispatcher: d,
		logger:     opts.Logger,
	}
}

// FromConfig builds a Forge from cfg: logger, tracing, store (seeded when a
// seed file is configured), blob router and backend clients. optFns run
// after the config-derived options and can override any of them.
func FromConfig(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (*Forge, error) {
	logger := NewLogger(cfg.Log)

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	docs, err := OpenStore(cfg.Store)
	if err != nil {
		return nil, errors.Join(err, shutdownTracing(ctx))
	}

	if cfg.Store.Seed != "" {
		seed, err := docstore.LoadSeedFile(cfg.Store.Seed)
		if err == nil {
			var n int
			n, err = docstore.Seed(ctx, docs, seed)
			logger.Info("forge.seed", "path", cfg.Store.Seed, "documents", n)
		}
		if err != nil {
			return nil, errors.Join(err, docs.Close(), shutdownTracing(ctx))
		}
	}

	models := binding.NewFactory(func(o *binding.FactoryOptions) {
		o.BedrockRegion = cfg.Model.BedrockRegion
		if cfg.Model.Mock {
			o.Override = func(b *binding.Binding) (model.Model, error) {
				return model.NewMockModel(b.Model, b.Provider), nil
			}
		}
	})

	f := New(append([]func(o *Options){func(o *Options) {
		o.Docs = docs
		o.Blobs = NewBlobRouter(cfg.Blob)
		o.Models = models
		o.Peer = a2a.NewClient(func(ao *a2a.Options) {
			ao.Timeout = cfg.A2A.Timeout
			ao.Logger = logger
		})
		o.Hosted = hosted.NewClient(func(ho *hosted.Options) {
			ho.BaseURL = cfg.Hosted.BaseURL
			ho.TokenSource = hostedTokenSource(ctx, cfg.Hosted, logger)
			ho.Logger = logger
		})
		o.MaxModelCalls = cfg.Runner.MaxModelCalls
		o.Logger = logger
	}}, optFns...)...)

	f.shutdown = append(f.shutdown, shutdownTracing)

	return f, nil
}

// NewLogger builds the process logger from cfg. Unknown levels fall back to
// info.
func NewLogger(cfg config.LogConfig) logging.Logger {
	level, _ := logging.ParseLevel(cfg.Level)

	return logging.New(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Format,
		Output:    os.Stderr,
		AddSource: cfg.AddSource,
		Component: "agentforge",
	})
}

// OpenStore opens the document store selected by cfg.
func OpenStore(cfg config.StoreConfig) (docstore.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return docstore.NewMemoryStore(), nil
	case "sqlite":
		s, err := docstore.OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// NewBlobRouter routes gs:// URIs to Cloud Storage and, when a root is
// configured, file:// URIs to the local filesystem.
func NewBlobRouter(cfg config.BlobConfig) *blob.Router {
	stores := []blob.Store{
		blob.NewGCSStore(func(o *blob.GCSOptions) {
			o.Endpoint = cfg.GCSEndpoint
			o.Anonymous = cfg.GCSAnonymous
			if ts := staticTokenSource(cfg.GCSTokenEnv); ts != nil {
				o.ClientOptions = append(o.ClientOptions, option.WithTokenSource(ts))
			}
		}),
	}

	if cfg.Root != "" {
		stores = append(stores, blob.NewFileStore(cfg.Root))
	}

	return blob.NewRouter(stores...)
}

// cloudPlatformScope is the OAuth scope of hosted agent queries.
const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// staticTokenSource returns a fixed token read from the variable env, or nil
// when env is unset or empty.
func staticTokenSource(env string) oauth2.TokenSource {
	if env == "" {
		return nil
	}
	tok := os.Getenv(env)
	if tok == "" {
		return nil
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok})
}

// hostedTokenSource prefers a token from cfg.TokenEnv and falls back to
// application default credentials, which refresh themselves. Without either
// the client queries unauthenticated.
func hostedTokenSource(ctx context.Context, cfg config.HostedConfig, logger logging.Logger) oauth2.TokenSource {
	if ts := staticTokenSource(cfg.TokenEnv); ts != nil {
		return ts
	}

	ts, err := google.DefaultTokenSource(context.WithoutCancel(ctx), cloudPlatformScope)
	if err != nil {
		logger.Warn("forge.hosted.no_credentials", "error", err)
		return nil
	}
	return ts
}

// Dispatch runs one invocation and writes the terminal message state.
func (f *Forge) Dispatch(ctx context.Context, inv dispatch.Invocation) (*dispatch.Result, error) {
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	return f.dispatcher.Handle(ctx, inv)
}

// Dispatcher returns the underlying dispatcher.
func (f *Forge) Dispatcher() *dispatch.Dispatcher { return f.dispatcher }

// Docs returns the document store.
func (f *Forge) Docs() docstore.Store { return f.docs }

// Blobs returns the attachment store.
func (f *Forge) Blobs() blob.Store { return f.blobs }

// Logger returns the configured logger.
func (f *Forge) Logger() logging.Logger { return f.logger }

// Close releases the stores and flushes tracing.
func (f *Forge) Close() error {
	errs := []error{f.docs.Close()}
	if c, ok := f.blobs.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	for _, fn := range f.shutdown {
		errs = append(errs, fn(context.Background()))
	}
	return errors.Join(errs...)
}
