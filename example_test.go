package weave_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/weave"
	"github.com/aretw0/weave/pkg/adapters/memory"
	"github.com/aretw0/weave/pkg/domain"
)

// ExampleNew_memory shows a full session against the in-memory gateway.
// This is useful for tests, demos, or any scenario without a real backend.
func ExampleNew_memory() {
	// 1. Seed a gateway with a small graph and its template catalog.
	gateway := memory.NewGateway()
	gateway.SeedGraph(&domain.Document{
		Name:    "orders",
		Version: "1",
		Nodes: []domain.PersistedNode{
			{ID: "src", Template: "csv-source", Config: map[string]any{"title": "Orders CSV"}},
		},
	})
	gateway.SeedTemplates([]domain.Template{
		{Name: "csv-source", Kind: "source", SourcePorts: []string{"out"}},
	})

	// 2. Create a client. Without a transport there are no live pushes;
	// loading, editing and saving still work.
	client, err := weave.New(gateway)
	if err != nil {
		log.Fatal(err)
	}

	// 3. Open the session: the graph and catalog are fetched and the
	// view-model is built.
	if err := client.Open(context.Background(), "orders"); err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	snap := client.Store().Snapshot()
	node, _ := snap.Node("src")
	fmt.Printf("%s@%s %s (%s)\n", snap.Name, snap.Version, node.Title, node.Kind)
	// Output: orders@1 Orders CSV (source)
}
