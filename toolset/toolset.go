// Package toolset turns the tools list of an agent definition into runtime
// tools: local tools built by registered factories and MCP tool-sets shared
// per (server, auth) pair.
package toolset

import (
	"context"
	"errors"
	"slices"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/definition"
	"github.com/hupe1980/agentforge/logging"
	"github.com/hupe1980/agentforge/tool"
	"github.com/hupe1980/agentforge/tool/mcp"
)

const component = "toolset"

// Resolved is the outcome of resolving one node's tools.
type Resolved struct {
	Tools       []tool.Tool
	Toolsets    []*mcp.Toolset
	Diagnostics core.Diagnostics
}

// AllTools returns local tools followed by the tools of every tool-set.
func (r *Resolved) AllTools() []tool.Tool {
	out := slices.Clone(r.Tools)
	for _, ts := range r.Toolsets {
		out = append(out, ts.Tools()...)
	}
	return out
}

// Close closes every opened tool-set.
func (r *Resolved) Close() error {
	var errs []error
	for _, ts := range r.Toolsets {
		if err := ts.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Options configures a Resolver.
type Options struct {
	Registry *tool.Registry
	// Dial overrides the MCP dialer.
	Dial   mcp.Dialer
	Logger logging.Logger
}

// Resolver resolves tool definitions.
type Resolver struct {
	opts Options
}

// NewResolver returns a Resolver. Without a registry the default one is used.
func NewResolver(optFns ...func(o *Options)) *Resolver {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Registry == nil {
		opts.Registry = tool.NewDefaultRegistry()
	}

	return &Resolver{opts: opts}
}

type group struct {
	url   string
	auth  map[string]any
	names []string
}

// Resolve builds the tools of node. Every per-entry failure is recorded as a
// diagnostic and skipped; the error is only set when ctx is done.
func (r *Resolver) Resolve(ctx context.Context, rawTools []any, node string) (*Resolved, error) {
	res := &Resolved{}

	var (
		groups []*group
		index  = map[string]*group{}
	)

	for i, raw := range rawTools {
		def, err := definition.DecodeTool(raw)
		if err != nil {
			res.Diagnostics.Warnf(component, node, "skipping tool %d: %v", i, err)
			continue
		}

		switch d := def.(type) {
		case *definition.LocalToolRef:
			t, err := r.opts.Registry.Instantiate(d.Key(), tool.FactoryParams{ID: d.ID, Configuration: d.Configuration})
			if err != nil {
				err = core.NewConfigError(node, "tool "+d.Key(), err)
				res.Diagnostics.Warnf(component, node, "skipping tool %q: %v", toolID(d), err)
				continue
			}
			r.opts.Logger.Info("toolset.local.instantiated", "node", node, "tool", t.Name(), "key", d.Key())
			res.Tools = append(res.Tools, t)
		case *definition.RemoteToolRef:
			key := d.ServerURL + "\x00" + definition.AuthKey(d.Auth)
			g, ok := index[key]
			if !ok {
				g = &group{url: d.ServerURL, auth: d.Auth}
				index[key] = g
				groups = append(groups, g)
			}
			if !slices.Contains(g.names, d.ToolName) {
				g.names = append(g.names, d.ToolName)
			}
		}
	}

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			_ = res.Close()
			return nil, err
		}

		auth, diags := BuildAuth(g.auth)
		for i := range diags {
			diags[i].Node = node
		}
		res.Diagnostics.Append(diags)

		ts, err := mcp.Connect(ctx, g.url, func(o *mcp.Options) {
			o.Auth = auth
			o.Filter = g.names
			o.Logger = r.opts.Logger
			if r.opts.Dial != nil {
				o.Dial = r.opts.Dial
			}
		})
		if err != nil {
			res.Diagnostics.Errorf(component, node, "mcp tool-set for %s unavailable: %v", g.url, err)
			continue
		}

		res.Toolsets = append(res.Toolsets, ts)
	}

	return res, nil
}

func toolID(d *definition.LocalToolRef) string {
	if d.ID != "" {
		return d.ID
	}
	return d.ClassName
}

// BuildAuth maps a stored auth object to MCP auth. Supported are
// {type: bearer, token} and {type: apiKey, key, name, in: header}. Anything
// else yields nil with a diagnostic.
func BuildAuth(cfg map[string]any) (*mcp.Auth, core.Diagnostics) {
	var diags core.Diagnostics

	if len(cfg) == 0 {
		return nil, nil
	}

	str := func(k string) string {
		s, _ := cfg[k].(string)
		return s
	}

	switch t := str("type"); t {
	case "bearer":
		token := str("token")
		if token == "" {
			diags.Warnf(component, "", "bearer auth without token")
			return nil, diags
		}
		return &mcp.Auth{Scheme: "bearer", Credential: token}, nil
	case "apiKey":
		key, name, in := str("key"), str("name"), str("in")
		if key == "" || name == "" || in == "" {
			diags.Warnf(component, "", "apiKey auth requires key, name and in")
			return nil, diags
		}
		if in != "header" {
			diags.Warnf(component, "", "apiKey location %q not supported, only header", in)
			return nil, diags
		}
		return &mcp.Auth{Scheme: "apiKey", HeaderName: name, Credential: key}, nil
	default:
		diags.Warnf(component, "", "unsupported auth type %q", t)
		return nil, diags
	}
}
