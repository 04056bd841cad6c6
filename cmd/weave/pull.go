package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/aretw0/weave/internal/logging"
	httpgw "github.com/aretw0/weave/pkg/adapters/http"
	"github.com/aretw0/weave/pkg/mapper"
)

var pullCmd = &cobra.Command{
	Use:   "pull <graph>",
	Short: "Fetch a graph once and print its nodes and edges",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		return runPull(cfgPath, args[0])
	},
}

func init() {
	rootCmd.AddCommand(pullCmd)
}

func runPull(cfgPath, graph string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	logger := logging.New(logging.ParseLevel(cfg.LogLevel))

	var gwOpts []httpgw.Option
	if cfg.Server.APIKey != "" {
		gwOpts = append(gwOpts, httpgw.WithAPIKey(cfg.Server.APIKey))
	}
	gateway := httpgw.NewGateway(cfg.Server.URL, gwOpts...)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	doc, err := gateway.FetchGraph(ctx, graph)
	if err != nil {
		return fmt.Errorf("failed to fetch graph %q: %w", graph, err)
	}
	templates, err := gateway.FetchTemplates(ctx)
	if err != nil {
		logger.Warn("template fetch failed, node kinds will be unknown", "err", err)
	}

	nodes, _ := mapper.BuildSession(doc, templates)

	out := termenv.NewOutput(os.Stdout)
	fmt.Printf("%s (version %s)\n", doc.Name, doc.Version)
	fmt.Printf("nodes (%d):\n", len(nodes))
	for _, node := range nodes {
		fmt.Printf("  %-24s %-12s %-10s %s\n",
			node.Title, node.Kind, node.Template, paintStatus(out, node.Status))
	}
	fmt.Printf("edges (%d):\n", len(doc.Edges))
	for _, edge := range doc.Edges {
		fmt.Printf("  %s -> %s (%s)\n", edge.Source, edge.Target, edge.ID)
	}
	return nil
}
