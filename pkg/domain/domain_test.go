package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/weave/pkg/domain"
)

func TestParseStatus(t *testing.T) {
	assert.Equal(t, domain.StatusReady, domain.ParseStatus("ready"))
	assert.Equal(t, domain.StatusProvisioningError, domain.ParseStatus("provisioning_error"))
	// Anything outside the enum collapses instead of leaking raw strings.
	assert.Equal(t, domain.StatusNotReady, domain.ParseStatus("warming-up"))
	assert.Equal(t, domain.StatusNotReady, domain.ParseStatus(""))
}

func TestStatus_IsError(t *testing.T) {
	assert.True(t, domain.StatusProvisioningError.IsError())
	assert.True(t, domain.StatusDeprovisioningError.IsError())
	assert.False(t, domain.StatusReady.IsError())
	assert.False(t, domain.StatusProvisioning.IsError())
}

func TestNodeConfig_CloneDoesNotAlias(t *testing.T) {
	original := domain.NodeConfig{
		ID:     "n1",
		Config: map[string]any{"title": "Orders"},
		State:  map[string]any{"rows": 12},
		Runtime: domain.Runtime{
			ProvisionStatus: &domain.ProvisionStatus{State: "ready"},
		},
		Ports: domain.Ports{Outputs: []domain.Port{{ID: "out"}}},
	}

	clone := original.Clone()
	clone.Config["title"] = "Changed"
	clone.State["rows"] = 99
	clone.Runtime.ProvisionStatus.State = "provisioning"
	clone.Ports.Outputs[0].ID = "mutated"

	assert.Equal(t, "Orders", original.Config["title"])
	assert.Equal(t, 12, original.State["rows"])
	assert.Equal(t, "ready", original.Runtime.ProvisionStatus.State)
	assert.Equal(t, "out", original.Ports.Outputs[0].ID)
}

func TestDocument_CloneDoesNotAlias(t *testing.T) {
	doc := &domain.Document{
		Name:    "demo",
		Version: "7",
		Nodes: []domain.PersistedNode{
			{ID: "n1", Config: map[string]any{"title": "Orders"}},
		},
		Edges: []domain.Edge{{ID: "e1", Source: "n1", Target: "n2"}},
	}

	clone := doc.Clone()
	require.Len(t, clone.Nodes, 1)
	clone.Nodes[0].Config["title"] = "Changed"
	clone.Edges[0].Target = "mutated"

	assert.Equal(t, "Orders", doc.Nodes[0].Config["title"])
	assert.Equal(t, "n2", doc.Edges[0].Target)
}
