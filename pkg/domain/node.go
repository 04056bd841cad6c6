package domain

import "time"

// NodeKind classifies a node by the template it was created from.
// The catalog is authoritative; unknown template kinds map to KindUnknown.
type NodeKind string

const (
	KindSource    NodeKind = "source"
	KindModel     NodeKind = "model"
	KindTransform NodeKind = "transform"
	KindSink      NodeKind = "sink"
	KindUnknown   NodeKind = "unknown"
)

// Position is the canvas location of a node.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Port is a single connection point on a node.
type Port struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Ports lists the connection points of a node. Derived from the template,
// read-only for the session.
type Ports struct {
	Inputs  []Port `json:"inputs"`
	Outputs []Port `json:"outputs"`
}

// Capabilities flags which lifecycle actions are legal for a node.
type Capabilities struct {
	Provision   bool `json:"provision" mapstructure:"provision"`
	Deprovision bool `json:"deprovision" mapstructure:"deprovision"`
	Pause       bool `json:"pause" mapstructure:"pause"`
}

// ProvisionStatus is the raw provisioning report for a node as the server
// last pushed it.
type ProvisionStatus struct {
	State   string `json:"state" mapstructure:"state"`
	Details string `json:"details,omitempty" mapstructure:"details"`
}

// Runtime is the last-known push snapshot for a node.
type Runtime struct {
	ProvisionStatus *ProvisionStatus `json:"provisionStatus,omitempty"`
	IsPaused        bool             `json:"isPaused,omitempty"`
}

// StatusUpdate is a server-originated status payload for one node.
// Push events carry UpdatedAt; poll results do not (the receiver stamps
// them on arrival). Nil pointer fields mean "not reported", not "cleared".
type StatusUpdate struct {
	ProvisionStatus *ProvisionStatus `json:"provisionStatus,omitempty" mapstructure:"provisionStatus"`
	IsPaused        *bool            `json:"isPaused,omitempty" mapstructure:"isPaused"`
	UpdatedAt       time.Time        `json:"updatedAt,omitempty" mapstructure:"updatedAt"`
}

// NodeConfig is the live, editable view-model of one graph node.
type NodeConfig struct {
	ID       string   `json:"id"`
	Template string   `json:"template"`
	Kind     NodeKind `json:"kind"`
	Title    string   `json:"title"`
	Position Position `json:"position"`
	Status   Status   `json:"status"`

	// Config is the user-editable configuration blob. Opaque to the core.
	Config map[string]any `json:"config"`

	// State is the server/runtime-owned blob. Opaque to the core.
	State map[string]any `json:"state"`

	Runtime      Runtime      `json:"runtime"`
	Capabilities Capabilities `json:"capabilities"`
	Ports        Ports        `json:"ports"`
}

// Clone returns a deep copy. Snapshots handed to subscribers must not alias
// the store's maps.
func (n NodeConfig) Clone() NodeConfig {
	out := n
	out.Config = cloneMap(n.Config)
	out.State = cloneMap(n.State)
	if n.Runtime.ProvisionStatus != nil {
		ps := *n.Runtime.ProvisionStatus
		out.Runtime.ProvisionStatus = &ps
	}
	out.Ports.Inputs = append([]Port(nil), n.Ports.Inputs...)
	out.Ports.Outputs = append([]Port(nil), n.Ports.Outputs...)
	return out
}

// NodeMetadata is the shadow entry kept per displayed node: the exact shape
// the persistence layer expects. One entry must exist per node; a save with
// a missing entry fails loudly instead of silently dropping the node.
type NodeMetadata struct {
	Template string         `json:"template"`
	Config   map[string]any `json:"config"`
	State    map[string]any `json:"state"`
	Position Position       `json:"position"`
}

// Clone returns a deep copy of the metadata entry.
func (m NodeMetadata) Clone() NodeMetadata {
	out := m
	out.Config = cloneMap(m.Config)
	out.State = cloneMap(m.State)
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
