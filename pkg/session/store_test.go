package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/weave/internal/testutils"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/ports/tests"
	"github.com/aretw0/weave/pkg/session"
)

func newHydratedStore(t *testing.T) (*session.Store, *testutils.ScriptedGateway, *testutils.ManualClock) {
	t.Helper()
	gw := testutils.NewScriptedGateway(tests.FixtureDocument(), tests.FixtureTemplates())
	clk := testutils.NewManualClock()
	store := session.NewStore(gw, session.WithClock(clk))
	require.NoError(t, store.Load(context.Background(), "demo"))
	t.Cleanup(store.Close)
	return store, gw, clk
}

func strptr(s string) *string { return &s }

func TestStore_Load(t *testing.T) {
	store, _, _ := newHydratedStore(t)

	assert.True(t, store.Hydrated())
	assert.Equal(t, "demo", store.Name())
	assert.Equal(t, "7", store.Version())
	require.Len(t, store.Nodes(), 2)
	require.Len(t, store.Edges(), 1)

	n1, ok := store.Node("n1")
	require.True(t, ok)
	assert.Equal(t, "Orders", n1.Title)
	assert.Equal(t, domain.KindSource, n1.Kind)
	assert.Equal(t, domain.StatusNotReady, n1.Status)

	n2, ok := store.Node("n2")
	require.True(t, ok)
	assert.True(t, n2.Capabilities.Provision)

	state, err := store.SaveStatus()
	require.NoError(t, err)
	assert.Equal(t, domain.SaveIdle, state)
}

func TestStore_Load_HydratesStatuses(t *testing.T) {
	gw := testutils.NewScriptedGateway(tests.FixtureDocument(), tests.FixtureTemplates())
	gw.SetStatus("n2", domain.StatusUpdate{
		ProvisionStatus: &domain.ProvisionStatus{State: "ready"},
	})
	store := session.NewStore(gw)
	require.NoError(t, store.Load(context.Background(), "demo"))
	defer store.Close()

	n2, ok := store.Node("n2")
	require.True(t, ok)
	assert.Equal(t, domain.StatusReady, n2.Status)
	require.NotNil(t, n2.Runtime.ProvisionStatus)
	assert.Equal(t, "ready", n2.Runtime.ProvisionStatus.State)
}

func TestStore_Load_GraphFetchFailure(t *testing.T) {
	gw := testutils.NewScriptedGateway(tests.FixtureDocument(), tests.FixtureTemplates())
	gw.FailGraphFetch(true)
	store := session.NewStore(gw)

	err := store.Load(context.Background(), "demo")
	require.Error(t, err)
	assert.False(t, store.Hydrated())
	assert.Empty(t, store.Nodes())
}

func TestStore_Load_TemplateFetchFailure(t *testing.T) {
	gw := testutils.NewScriptedGateway(tests.FixtureDocument(), tests.FixtureTemplates())
	gw.FailTemplateFetch(true)
	store := session.NewStore(gw)

	err := store.Load(context.Background(), "demo")
	require.Error(t, err)
	assert.False(t, store.Hydrated())
}

func TestStore_Load_StatusFailureIsSkipped(t *testing.T) {
	gw := testutils.NewScriptedGateway(tests.FixtureDocument(), tests.FixtureTemplates())
	gw.FailStatusFor("n1")
	gw.SetStatus("n2", domain.StatusUpdate{
		ProvisionStatus: &domain.ProvisionStatus{State: "ready"},
	})
	store := session.NewStore(gw)

	// One node's status endpoint being down must not abort the load.
	require.NoError(t, store.Load(context.Background(), "demo"))
	defer store.Close()

	n1, _ := store.Node("n1")
	assert.Equal(t, domain.StatusNotReady, n1.Status)
	n2, _ := store.Node("n2")
	assert.Equal(t, domain.StatusReady, n2.Status)
}

func TestStore_UpdateNode_Title(t *testing.T) {
	store, _, clk := newHydratedStore(t)

	require.NoError(t, store.UpdateNode("n1", session.NodeUpdate{Title: strptr("Renamed")}))

	n1, _ := store.Node("n1")
	assert.Equal(t, "Renamed", n1.Title)
	assert.Equal(t, "Renamed", n1.Config["title"])

	state, err := store.SaveStatus()
	require.NoError(t, err)
	assert.Equal(t, domain.SaveSaving, state)
	assert.Equal(t, 1, clk.PendingTimers())
}

func TestStore_UpdateNode_ConfigMergeRederivesTitle(t *testing.T) {
	store, _, _ := newHydratedStore(t)

	require.NoError(t, store.UpdateNode("n1", session.NodeUpdate{
		Config: map[string]any{"title": "From Config", "separator": ";"},
	}))

	n1, _ := store.Node("n1")
	assert.Equal(t, "From Config", n1.Title)
	assert.Equal(t, ";", n1.Config["separator"])
}

func TestStore_UpdateNode_TransientFieldsDoNotSchedule(t *testing.T) {
	store, _, clk := newHydratedStore(t)

	ready := domain.StatusReady
	require.NoError(t, store.UpdateNode("n1", session.NodeUpdate{
		Status: &ready,
		Runtime: &domain.Runtime{
			ProvisionStatus: &domain.ProvisionStatus{State: "ready"},
		},
	}))

	n1, _ := store.Node("n1")
	assert.Equal(t, domain.StatusReady, n1.Status)

	state, _ := store.SaveStatus()
	assert.Equal(t, domain.SaveIdle, state)
	assert.Equal(t, 0, clk.PendingTimers())
}

func TestStore_UpdateNode_NotFound(t *testing.T) {
	store, _, _ := newHydratedStore(t)

	err := store.UpdateNode("ghost", session.NodeUpdate{Title: strptr("x")})
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestStore_SetEdges_CopiesInput(t *testing.T) {
	store, _, _ := newHydratedStore(t)

	next := []domain.Edge{{ID: "e2", Source: "n2", Target: "n1"}}
	require.NoError(t, store.SetEdges(next))

	// Mutating the caller's slice must not leak into the store.
	next[0].Target = "corrupted"

	edges := store.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, "n1", edges[0].Target)
}

func TestStore_RemoveNodes_Atomic(t *testing.T) {
	store, _, _ := newHydratedStore(t)

	var seen []session.Snapshot
	off := store.Subscribe(func(snap session.Snapshot) {
		seen = append(seen, snap)
	})
	defer off()

	require.NoError(t, store.RemoveNodes("n1"))

	// Exactly one transition, and no intermediate state with a dangling edge.
	require.Len(t, seen, 1)
	snap := seen[0]
	_, exists := snap.Node("n1")
	assert.False(t, exists)
	for _, e := range snap.Edges {
		assert.NotEqual(t, "n1", e.Source)
		assert.NotEqual(t, "n1", e.Target)
	}
	assert.Empty(t, snap.Edges)
	require.Len(t, snap.Nodes, 1)
}

func TestStore_RemoveNodes_NoIDsIsNoop(t *testing.T) {
	store, _, clk := newHydratedStore(t)
	require.NoError(t, store.RemoveNodes())
	assert.Equal(t, 0, clk.PendingTimers())
	assert.Len(t, store.Nodes(), 2)
}

func TestStore_AddNode(t *testing.T) {
	store, _, clk := newHydratedStore(t)

	node, err := store.AddNode("classifier", domain.Position{X: 600, Y: 80})
	require.NoError(t, err)
	assert.NotEmpty(t, node.ID)
	assert.Equal(t, "untitled model", node.Title)
	assert.Equal(t, domain.KindModel, node.Kind)

	require.Len(t, store.Nodes(), 3)
	assert.Equal(t, 1, clk.PendingTimers())
}

func TestStore_AddNode_UnknownTemplate(t *testing.T) {
	store, _, _ := newHydratedStore(t)

	_, err := store.AddNode("does-not-exist", domain.Position{})
	assert.ErrorIs(t, err, domain.ErrTemplateNotFound)
}

func TestStore_AddNode_BeforeHydration(t *testing.T) {
	gw := testutils.NewScriptedGateway(tests.FixtureDocument(), tests.FixtureTemplates())
	store := session.NewStore(gw)

	_, err := store.AddNode("classifier", domain.Position{})
	assert.ErrorIs(t, err, domain.ErrNotHydrated)
}

func TestStore_Rename(t *testing.T) {
	store, _, clk := newHydratedStore(t)

	require.NoError(t, store.Rename("demo-v2"))
	assert.Equal(t, "demo-v2", store.Name())
	assert.Equal(t, 1, clk.PendingTimers())
}

func TestStore_ApplyNodeStatus_NeverSchedules(t *testing.T) {
	store, _, clk := newHydratedStore(t)

	require.NoError(t, store.ApplyNodeStatus("n2", domain.StatusUpdate{
		ProvisionStatus: &domain.ProvisionStatus{State: "provisioning_error", Details: "quota exceeded"},
	}))

	n2, _ := store.Node("n2")
	assert.Equal(t, domain.StatusProvisioningError, n2.Status)
	assert.True(t, n2.Status.IsError())
	assert.Equal(t, "quota exceeded", n2.Runtime.ProvisionStatus.Details)

	state, _ := store.SaveStatus()
	assert.Equal(t, domain.SaveIdle, state)
	assert.Equal(t, 0, clk.PendingTimers())
}

func TestStore_ApplyNodeStatus_UnknownStateCollapses(t *testing.T) {
	store, _, _ := newHydratedStore(t)

	require.NoError(t, store.ApplyNodeStatus("n1", domain.StatusUpdate{
		ProvisionStatus: &domain.ProvisionStatus{State: "warming-up"},
	}))
	n1, _ := store.Node("n1")
	assert.Equal(t, domain.StatusNotReady, n1.Status)
}

func TestStore_ApplyNodeState_NeverSchedules(t *testing.T) {
	store, _, clk := newHydratedStore(t)

	require.NoError(t, store.ApplyNodeState("n1", map[string]any{"rows": float64(240)}))

	n1, _ := store.Node("n1")
	assert.Equal(t, float64(240), n1.State["rows"])
	assert.Equal(t, 0, clk.PendingTimers())
}

func TestStore_Provision_Optimistic(t *testing.T) {
	store, _, _ := newHydratedStore(t)

	var observed []domain.Status
	off := store.Subscribe(func(snap session.Snapshot) {
		if n, ok := snap.Node("n2"); ok {
			observed = append(observed, n.Status)
		}
	})
	defer off()

	require.NoError(t, store.Provision(context.Background(), "n2"))

	// The optimistic transition must be visible before the request returns.
	require.NotEmpty(t, observed)
	assert.Equal(t, domain.StatusProvisioning, observed[0])

	n2, _ := store.Node("n2")
	assert.Equal(t, domain.StatusProvisioning, n2.Status)
}

func TestStore_Provision_RollbackOnFailure(t *testing.T) {
	store, gw, _ := newHydratedStore(t)

	require.NoError(t, store.ApplyNodeStatus("n2", domain.StatusUpdate{
		ProvisionStatus: &domain.ProvisionStatus{State: "ready", Details: "warm"},
	}))
	gw.FailLifecycle(true)

	err := store.Provision(context.Background(), "n2")
	require.Error(t, err)

	// The exact pre-call snapshot comes back, details included.
	n2, _ := store.Node("n2")
	assert.Equal(t, domain.StatusReady, n2.Status)
	require.NotNil(t, n2.Runtime.ProvisionStatus)
	assert.Equal(t, "warm", n2.Runtime.ProvisionStatus.Details)
}

func TestStore_Provision_NotAllowed(t *testing.T) {
	store, _, _ := newHydratedStore(t)

	// csv-source declares no lifecycle capabilities.
	err := store.Provision(context.Background(), "n1")
	assert.ErrorIs(t, err, domain.ErrActionNotAllowed)
}

func TestStore_Deprovision_RollbackOnFailure(t *testing.T) {
	store, gw, _ := newHydratedStore(t)
	gw.FailLifecycle(true)

	err := store.Deprovision(context.Background(), "n2")
	require.Error(t, err)

	n2, _ := store.Node("n2")
	assert.Equal(t, domain.StatusNotReady, n2.Status)
}

func TestStore_Close_RejectsMutations(t *testing.T) {
	store, _, _ := newHydratedStore(t)
	store.Close()

	assert.ErrorIs(t, store.UpdateNode("n1", session.NodeUpdate{Title: strptr("x")}), domain.ErrClosed)
	assert.ErrorIs(t, store.SetEdges(nil), domain.ErrClosed)
	assert.ErrorIs(t, store.Rename("x"), domain.ErrClosed)
	_, err := store.AddNode("classifier", domain.Position{})
	assert.ErrorIs(t, err, domain.ErrClosed)
	assert.ErrorIs(t, store.ApplyNodeStatus("n1", domain.StatusUpdate{}), domain.ErrClosed)
}

func TestStore_Subscribe_Off(t *testing.T) {
	store, _, _ := newHydratedStore(t)

	calls := 0
	off := store.Subscribe(func(session.Snapshot) { calls++ })
	require.NoError(t, store.Rename("a"))
	off()
	require.NoError(t, store.Rename("b"))

	assert.Equal(t, 1, calls)
}
