package domain

// PersistedNode is the wire shape of one node inside a graph document.
// It mirrors NodeMetadata plus the stable node id.
type PersistedNode struct {
	ID       string         `json:"id"`
	Template string         `json:"template"`
	Config   map[string]any `json:"config"`
	State    map[string]any `json:"state"`
	Position Position       `json:"position"`
}

// Edge connects two node ports. Opaque to the core beyond identity and
// endpoint references.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Document is the persisted graph representation exchanged with the remote
// store. Version is an opaque optimistic-concurrency anchor: the next save
// carries the last fetched/accepted value, nothing more.
type Document struct {
	Name    string          `json:"name"`
	Version string          `json:"version"`
	Nodes   []PersistedNode `json:"nodes"`
	Edges   []Edge          `json:"edges"`
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{Name: d.Name, Version: d.Version}
	out.Nodes = make([]PersistedNode, len(d.Nodes))
	for i, n := range d.Nodes {
		n.Config = cloneMap(n.Config)
		n.State = cloneMap(n.State)
		out.Nodes[i] = n
	}
	out.Edges = append([]Edge(nil), d.Edges...)
	return out
}

// Baseline is the last-known-accepted server snapshot: updated only on a
// successful load or save, used to build the next save payload.
type Baseline struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Edges   []Edge `json:"edges"`
}

// Template is one entry of the node catalog.
type Template struct {
	Name                    string        `json:"name" mapstructure:"name"`
	Kind                    string        `json:"kind" mapstructure:"kind"`
	SourcePorts             []string      `json:"sourcePorts" mapstructure:"sourcePorts"`
	TargetPorts             []string      `json:"targetPorts" mapstructure:"targetPorts"`
	Capabilities            *Capabilities `json:"capabilities,omitempty" mapstructure:"capabilities"`
	DefaultModelPlaceholder string        `json:"defaultModelPlaceholder,omitempty" mapstructure:"defaultModelPlaceholder"`
}
