// Package mapper holds the pure transforms between the persisted graph
// representation and the in-session view-model. No state, no I/O: every
// function here is a straight data mapping, which keeps the session store
// and the live status channel free of wire-format knowledge.
package mapper

import (
	"fmt"

	"github.com/aretw0/weave/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// titleFields is the loose shape we accept inside a node's config blob when
// deriving a display title.
type titleFields struct {
	Title string `mapstructure:"title"`
	Label string `mapstructure:"label"`
}

// Classify maps a catalog kind onto the closed NodeKind enum.
func Classify(tpl *domain.Template) domain.NodeKind {
	if tpl == nil {
		return domain.KindUnknown
	}
	switch domain.NodeKind(tpl.Kind) {
	case domain.KindSource, domain.KindModel, domain.KindTransform, domain.KindSink:
		return domain.NodeKind(tpl.Kind)
	default:
		return domain.KindUnknown
	}
}

// DerivePorts builds the read-only port lists from a template. Target ports
// become inputs, source ports become outputs; order is preserved.
func DerivePorts(tpl *domain.Template) domain.Ports {
	var p domain.Ports
	if tpl == nil {
		return p
	}
	p.Inputs = make([]domain.Port, 0, len(tpl.TargetPorts))
	for _, name := range tpl.TargetPorts {
		p.Inputs = append(p.Inputs, domain.Port{ID: name, Label: name})
	}
	p.Outputs = make([]domain.Port, 0, len(tpl.SourcePorts))
	for _, name := range tpl.SourcePorts {
		p.Outputs = append(p.Outputs, domain.Port{ID: name, Label: name})
	}
	return p
}

// DeriveTitle extracts the display title from a config blob, falling back
// to the template's placeholder and finally the template name. The config
// is user-supplied and loosely typed, hence the mapstructure decode.
func DeriveTitle(config map[string]any, tpl *domain.Template) string {
	var f titleFields
	if err := mapstructure.Decode(config, &f); err == nil {
		if f.Title != "" {
			return f.Title
		}
		if f.Label != "" {
			return f.Label
		}
	}
	if tpl != nil {
		if tpl.DefaultModelPlaceholder != "" {
			return tpl.DefaultModelPlaceholder
		}
		return tpl.Name
	}
	return ""
}

// DeriveCapabilities returns the template's capability flags, or the zero
// value (nothing allowed) when the template does not declare any.
func DeriveCapabilities(tpl *domain.Template) domain.Capabilities {
	if tpl == nil || tpl.Capabilities == nil {
		return domain.Capabilities{}
	}
	return *tpl.Capabilities
}

// BuildSession expands a persisted document into the live node list and the
// shadow metadata map. Every node gets exactly one metadata entry.
func BuildSession(doc *domain.Document, templates []domain.Template) ([]domain.NodeConfig, map[string]domain.NodeMetadata) {
	catalog := make(map[string]*domain.Template, len(templates))
	for i := range templates {
		catalog[templates[i].Name] = &templates[i]
	}

	nodes := make([]domain.NodeConfig, 0, len(doc.Nodes))
	metadata := make(map[string]domain.NodeMetadata, len(doc.Nodes))
	for _, pn := range doc.Nodes {
		tpl := catalog[pn.Template]
		node := domain.NodeConfig{
			ID:           pn.ID,
			Template:     pn.Template,
			Kind:         Classify(tpl),
			Title:        DeriveTitle(pn.Config, tpl),
			Position:     pn.Position,
			Status:       domain.StatusNotReady,
			Config:       pn.Config,
			State:        pn.State,
			Capabilities: DeriveCapabilities(tpl),
			Ports:        DerivePorts(tpl),
		}
		nodes = append(nodes, node.Clone())
		metadata[pn.ID] = domain.NodeMetadata{
			Template: pn.Template,
			Config:   pn.Config,
			State:    pn.State,
			Position: pn.Position,
		}.Clone()
	}
	return nodes, metadata
}

// BuildSaveDocument reconstructs the persisted shape from live nodes, their
// shadow metadata and the baseline. A node without a metadata entry makes
// the build fail loudly: dropping it silently would lose user data.
func BuildSaveDocument(baseline domain.Baseline, nodes []domain.NodeConfig, metadata map[string]domain.NodeMetadata, edges []domain.Edge) (*domain.Document, error) {
	doc := &domain.Document{
		Name:    baseline.Name,
		Version: baseline.Version,
		Nodes:   make([]domain.PersistedNode, 0, len(nodes)),
		Edges:   append([]domain.Edge(nil), edges...),
	}
	for _, n := range nodes {
		meta, ok := metadata[n.ID]
		if !ok {
			return nil, fmt.Errorf("building save payload for node %q: %w", n.ID, domain.ErrMissingMetadata)
		}
		meta = meta.Clone()
		doc.Nodes = append(doc.Nodes, domain.PersistedNode{
			ID:       n.ID,
			Template: meta.Template,
			Config:   meta.Config,
			State:    meta.State,
			Position: meta.Position,
		})
	}
	return doc, nil
}

// NewNode materializes a fresh node + metadata pair from a catalog template.
func NewNode(tpl domain.Template, id string, pos domain.Position) (domain.NodeConfig, domain.NodeMetadata) {
	config := map[string]any{"title": DeriveTitle(nil, &tpl)}
	node := domain.NodeConfig{
		ID:           id,
		Template:     tpl.Name,
		Kind:         Classify(&tpl),
		Title:        DeriveTitle(config, &tpl),
		Position:     pos,
		Status:       domain.StatusNotReady,
		Config:       config,
		State:        map[string]any{},
		Capabilities: DeriveCapabilities(&tpl),
		Ports:        DerivePorts(&tpl),
	}
	meta := domain.NodeMetadata{
		Template: tpl.Name,
		Config:   config,
		State:    map[string]any{},
		Position: pos,
	}
	return node.Clone(), meta.Clone()
}

// DecodeStatusPayload converts a loosely-typed push payload (as delivered
// by the transport) into a StatusUpdate. Timestamps may arrive as RFC3339
// strings or epoch milliseconds.
func DecodeStatusPayload(payload any) (domain.StatusUpdate, error) {
	var update domain.StatusUpdate
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     &update,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(timestampHook),
	})
	if err != nil {
		return update, fmt.Errorf("failed to build status decoder: %w", err)
	}
	if err := dec.Decode(payload); err != nil {
		return update, fmt.Errorf("failed to decode status payload: %w", err)
	}
	return update, nil
}
