// Package builder materializes an executable agent tree from stored agent
// definitions. Each Leaf and Loop node loads its model document, merges it
// under the node document, resolves tools and a model binding, and becomes an
// agent.ModelAgent. Composite nodes recurse over their children in order.
package builder

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/agentforge/agent"
	"github.com/hupe1980/agentforge/binding"
	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/definition"
	"github.com/hupe1980/agentforge/docstore"
	"github.com/hupe1980/agentforge/internal/tracing"
	"github.com/hupe1980/agentforge/logging"
	"github.com/hupe1980/agentforge/toolset"
)

const component = "builder"

// RootContext is the parent context of a root node.
const RootContext = "root"

// Tree is a built agent tree. It owns the MCP connections opened while
// resolving tools; call Close when the run is over.
type Tree struct {
	Root        core.Agent
	Diagnostics core.Diagnostics

	closers []io.Closer
}

// Close releases every resource opened during construction.
func (t *Tree) Close() error {
	var errs []error
	for _, c := range t.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	t.closers = nil
	return errors.Join(errs...)
}

// Options configures a Builder.
type Options struct {
	Tools    *toolset.Resolver
	Bindings *binding.Resolver
	Models   *binding.Factory
	// Rand supplies name suffixes. Defaults to crypto/rand.
	Rand   io.Reader
	Logger logging.Logger
}

// Builder builds agent trees. It is safe for concurrent use when its
// collaborators are.
type Builder struct {
	docs docstore.Store
	opts Options
}

// New returns a Builder reading model documents from docs.
func New(docs docstore.Store, optFns ...func(o *Options)) *Builder {
	opts := Options{
		Rand:   rand.Reader,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Tools == nil {
		opts.Tools = toolset.NewResolver(func(o *toolset.Options) { o.Logger = opts.Logger })
	}

	if opts.Bindings == nil {
		opts.Bindings = binding.NewResolver(func(o *binding.ResolverOptions) { o.Logger = opts.Logger })
	}

	if opts.Models == nil {
		opts.Models = binding.NewFactory()
	}

	return &Builder{docs: docs, opts: opts}
}

// Build constructs the tree rooted at doc. parentContext and childIndex feed
// the unique node name; use RootContext and 0 for a root.
func (b *Builder) Build(ctx context.Context, doc map[string]any, parentContext string, childIndex int) (*Tree, error) {
	ctx, span := tracing.StartSpan(ctx, "builder.build", tracing.String("parent", parentContext))
	defer span.End()

	tree := &Tree{}

	root, err := b.build(ctx, tree, doc, parentContext, childIndex)
	if err != nil {
		_ = tree.Close()
		tracing.RecordError(span, err)
		return nil, err
	}

	tree.Root = root
	tree.Diagnostics.Log(b.opts.Logger)

	b.opts.Logger.Info("builder.tree.complete", "root", root.Name(), "diagnostics", len(tree.Diagnostics))
	tracing.SetOK(span)

	return tree, nil
}

func (b *Builder) build(ctx context.Context, tree *Tree, doc map[string]any, parentContext string, childIndex int) (core.Agent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	def, err := definition.Decode(doc)
	if err != nil {
		return nil, err
	}

	original := def.Base().Name
	if original == "" {
		original = fmt.Sprintf("agent_cfg_%d", childIndex)
	}

	unique := fmt.Sprintf("%s_%s_%s", original, parentContext, randomHex(b.opts.Rand, 2))
	name := Sanitize(unique, fmt.Sprintf("agent_%d_", childIndex), b.opts.Rand)

	b.opts.Logger.Info("builder.node.start",
		"name", name,
		"original_name", original,
		"parent", parentContext,
		"index", childIndex,
	)

	switch d := def.(type) {
	case *definition.Leaf:
		return b.buildLeaf(ctx, tree, name, d)
	case *definition.Loop:
		childName := Sanitize(name+"_looped_child_instance", "looped_", b.opts.Rand)

		child, err := b.buildLeaf(ctx, tree, childName, &d.Leaf)
		if err != nil {
			return nil, err
		}

		n, ok := d.MaxIterations()
		if !ok {
			tree.Diagnostics.Warnf(component, name, "invalid maxLoops %v, using %d", d.MaxLoops, n)
		}

		loop := agent.NewLoopAgent(name, child, agent.WithMaxIters(n))
		loop.SetDescription(d.Description)

		return loop, nil
	case *definition.Sequential:
		children, err := b.buildChildren(ctx, tree, name, original, d.Children)
		if err != nil {
			return nil, err
		}

		seq := agent.NewSequentialAgent(name, children...)
		seq.SetDescription(d.Description)

		return seq, nil
	case *definition.Parallel:
		children, err := b.buildChildren(ctx, tree, name, original, d.Children)
		if err != nil {
			return nil, err
		}

		par := agent.NewParallelAgent(name, 0, children...)
		par.SetDescription(d.Description)

		return par, nil
	default:
		return nil, core.NewConfigError(original, "build", fmt.Errorf("%w: %T", core.ErrUnknownAgentType, def))
	}
}

func (b *Builder) buildChildren(ctx context.Context, tree *Tree, name, original string, docs []map[string]any) ([]core.Agent, error) {
	if len(docs) == 0 {
		b.opts.Logger.Info("builder.node.no_children", "name", name)
		return nil, nil
	}

	children := make([]core.Agent, 0, len(docs))

	for i, doc := range docs {
		child, err := b.build(ctx, tree, doc, name, i)
		if err != nil {
			return nil, fmt.Errorf("error processing child agent %d for %q: %w", i, original, err)
		}
		children = append(children, child)
	}

	return children, nil
}

// buildLeaf constructs a ModelAgent for a Leaf (or the inner child of a
// Loop) from the merged model and node documents.
func (b *Builder) buildLeaf(ctx context.Context, tree *Tree, name string, leaf *definition.Leaf) (*agent.ModelAgent, error) {
	modelDoc, err := b.docs.Get(ctx, docstore.ModelPath(leaf.ModelID))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.NewConfigError(leaf.Name, "load model", fmt.Errorf("%w: %s", core.ErrModelNotFound, leaf.ModelID))
		}
		return nil, fmt.Errorf("load model %s: %w", leaf.ModelID, err)
	}

	merged := definition.Merge(modelDoc, leaf.Raw)

	eff, err := effectiveLeaf(merged)
	if err != nil {
		return nil, err
	}

	resolved, err := b.opts.Tools.Resolve(ctx, eff.Tools, name)
	if err != nil {
		return nil, err
	}
	tree.closers = append(tree.closers, resolved)
	tree.Diagnostics.Append(resolved.Diagnostics)

	bnd, diags, err := b.opts.Bindings.Resolve(merged, name)
	if err != nil {
		return nil, err
	}
	tree.Diagnostics.Append(diags)

	llm, err := b.opts.Models.New(ctx, bnd)
	if err != nil {
		return nil, fmt.Errorf("create model for %s: %w", name, err)
	}

	tools := resolved.AllTools()

	a := agent.NewModelAgent(name, llm, func(o *agent.ModelAgentOptions) {
		o.Description = eff.Description
		if eff.SystemInstruction != "" {
			o.Instruction = agent.NewInstructionFromText(eff.SystemInstruction)
		}
		o.Tools = tools
		o.OutputKey = eff.OutputKey
		o.GenerateConfig = bnd.GenerateConfig
	})

	b.opts.Logger.Info("builder.leaf.ready",
		"name", name,
		"model", bnd.Model,
		"tools", len(tools),
		"output_key", eff.OutputKey,
	)

	return a, nil
}

func effectiveLeaf(merged map[string]any) (*definition.Leaf, error) {
	def, err := definition.Decode(merged)
	if err != nil {
		return nil, err
	}

	switch d := def.(type) {
	case *definition.Leaf:
		return d, nil
	case *definition.Loop:
		return &d.Leaf, nil
	default:
		return nil, core.NewConfigError(def.Base().Name, "merge", fmt.Errorf("%w: %T", core.ErrUnknownAgentType, def))
	}
}
