package tools

import (
	"context"
	"encoding/json"

	"github.com/kestrel-forge/sentrycore/plugin"
)

// RegisterPlugins adds one tool entry per plugin-declared tool, dispatching
// each call through plugin.Plugin.Invoke. Plugin tools are never read-only
// — IsReadOnly only special-cases the built-ins — so the agent runs them
// one at a time, after its permission-policy Deny check. They are not in
// the provenance gate's tool set and do not ask for user confirmation.
func (r *Registry) RegisterPlugins(plugins []plugin.Plugin) {
	if r.pluginTools == nil {
		r.pluginTools = make(map[string]bool)
	}
	for _, p := range plugins {
		p := p
		for _, spec := range p.Manifest.Tools {
			spec := spec
			r.pluginTools[spec.Name] = true
			r.register(spec.Name, spec.Description,
				json.RawMessage(`{"type": "object"}`),
				func(ctx context.Context, input json.RawMessage) (string, error) {
					out, err := p.Invoke(ctx, spec.Name, input)
					if err != nil {
						return "", err
					}
					return string(out), nil
				},
			)
		}
	}
}
