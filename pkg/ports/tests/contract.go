package tests

import (
	"context"
	"testing"

	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/ports"
)

// FixtureDocument returns the graph every Gateway under contract test must
// be seeded with.
func FixtureDocument() *domain.Document {
	return &domain.Document{
		Name:    "demo",
		Version: "7",
		Nodes: []domain.PersistedNode{
			{
				ID:       "n1",
				Template: "csv-source",
				Config:   map[string]any{"title": "Orders"},
				State:    map[string]any{"rows": float64(120)},
				Position: domain.Position{X: 40, Y: 80},
			},
			{
				ID:       "n2",
				Template: "classifier",
				Config:   map[string]any{"title": "Classify"},
				Position: domain.Position{X: 320, Y: 80},
			},
		},
		Edges: []domain.Edge{
			{ID: "e1", Source: "n1", Target: "n2", SourceHandle: "out", TargetHandle: "in"},
		},
	}
}

// FixtureTemplates returns the catalog matching FixtureDocument.
func FixtureTemplates() []domain.Template {
	return []domain.Template{
		{Name: "csv-source", Kind: "source", SourcePorts: []string{"out"}},
		{
			Name:                    "classifier",
			Kind:                    "model",
			SourcePorts:             []string{"out"},
			TargetPorts:             []string{"in"},
			Capabilities:            &domain.Capabilities{Provision: true, Deprovision: true, Pause: true},
			DefaultModelPlaceholder: "untitled model",
		},
	}
}

// GatewayContractTest is a reusable suite verifying that an adapter complies
// with ports.Gateway. The gateway must be seeded with FixtureDocument and
// FixtureTemplates before the call.
func GatewayContractTest(t *testing.T, gw ports.Gateway) {
	t.Helper()
	ctx := context.Background()

	t.Run("FetchGraph", func(t *testing.T) {
		doc, err := gw.FetchGraph(ctx, "demo")
		if err != nil {
			t.Fatalf("unexpected error fetching graph: %v", err)
		}
		if doc.Name != "demo" || doc.Version != "7" {
			t.Errorf("baseline mismatch: got %s@%s", doc.Name, doc.Version)
		}
		if len(doc.Nodes) != 2 || len(doc.Edges) != 1 {
			t.Errorf("expected 2 nodes / 1 edge, got %d / %d", len(doc.Nodes), len(doc.Edges))
		}
	})

	t.Run("FetchGraph_NotFound", func(t *testing.T) {
		if _, err := gw.FetchGraph(ctx, "does-not-exist"); err == nil {
			t.Error("expected error for unknown graph, got nil")
		}
	})

	t.Run("FetchTemplates", func(t *testing.T) {
		tpls, err := gw.FetchTemplates(ctx)
		if err != nil {
			t.Fatalf("unexpected error fetching templates: %v", err)
		}
		lookup := make(map[string]domain.Template, len(tpls))
		for _, tpl := range tpls {
			lookup[tpl.Name] = tpl
		}
		cls, ok := lookup["classifier"]
		if !ok {
			t.Fatal("classifier template missing from catalog")
		}
		if cls.Capabilities == nil || !cls.Capabilities.Provision {
			t.Error("classifier capabilities not preserved")
		}
	})

	t.Run("SaveGraph_AdvancesVersion", func(t *testing.T) {
		doc, err := gw.FetchGraph(ctx, "demo")
		if err != nil {
			t.Fatalf("unexpected error fetching graph: %v", err)
		}
		accepted, err := gw.SaveGraph(ctx, doc)
		if err != nil {
			t.Fatalf("unexpected error saving graph: %v", err)
		}
		if accepted.Name != "demo" {
			t.Errorf("accepted name mismatch: %s", accepted.Name)
		}
		if accepted.Version == doc.Version {
			t.Error("expected the accepted version to advance")
		}
		if len(accepted.Edges) != len(doc.Edges) {
			t.Errorf("accepted edges mismatch: got %d, want %d", len(accepted.Edges), len(doc.Edges))
		}
	})

	t.Run("NodeState_RoundTrip", func(t *testing.T) {
		want := map[string]any{"checkpoint": "c-42"}
		if err := gw.PutNodeState(ctx, "n2", want); err != nil {
			t.Fatalf("unexpected error putting state: %v", err)
		}
		got, err := gw.FetchNodeState(ctx, "n2")
		if err != nil {
			t.Fatalf("unexpected error fetching state: %v", err)
		}
		if got["checkpoint"] != "c-42" {
			t.Errorf("state round trip mismatch: %v", got)
		}
	})

	t.Run("FetchNodeStatus", func(t *testing.T) {
		update, err := gw.FetchNodeStatus(ctx, "n1")
		if err != nil {
			t.Fatalf("unexpected error fetching status: %v", err)
		}
		if update == nil {
			t.Fatal("expected a status update, got nil")
		}
	})

	t.Run("Lifecycle", func(t *testing.T) {
		if err := gw.Provision(ctx, "n2"); err != nil {
			t.Fatalf("unexpected error provisioning: %v", err)
		}
		if err := gw.Deprovision(ctx, "n2"); err != nil {
			t.Fatalf("unexpected error deprovisioning: %v", err)
		}
	})
}
