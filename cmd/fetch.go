package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/hierview/internal/config"
	"github.com/danielolaszy/hierview/internal/hierarchy"
	"github.com/danielolaszy/hierview/internal/jira"
	"github.com/danielolaszy/hierview/internal/logging"
	"github.com/danielolaszy/hierview/pkg/models"
)

// fetchNode is one issue with its resolved children, for the nested JSON dump.
type fetchNode struct {
	models.Issue
	Unparented bool         `json:"unparented,omitempty"`
	Children   []*fetchNode `json:"children,omitempty"`
}

// fetchCmd assembles one hierarchy and dumps it to stdout as JSON, without
// running the server.
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch a hierarchy once and print it to stdout as JSON",
	Long: `Fetch a hierarchy once and print it to stdout as JSON.

This runs the same level-by-level assembly the streaming endpoint uses, but
drains it into one nested document. Useful for piping into other tools:

  hierview fetch --component "AI Safety" > hierarchy-data.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}

		client, err := jira.NewClient(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize jira client: %v", err)
		}

		component, _ := cmd.Flags().GetString("component")
		topLevel, _ := cmd.Flags().GetString("top-level")
		filter := models.Filter{Component: component, TopLevel: models.TypeRFE}
		switch topLevel {
		case "", string(models.TypeRFE):
		case string(models.TypeStrat):
			filter.TopLevel = models.TypeStrat
		default:
			return fmt.Errorf("invalid --top-level %q: must be rfe or strat", topLevel)
		}

		assembler := hierarchy.NewAssembler(client, hierarchy.DefaultWorkers)

		nodes := make(map[string]*fetchNode)
		var roots []*fetchNode
		var totals models.Totals

		for ev := range assembler.Stream(cmd.Context(), filter) {
			switch ev.Kind {
			case models.EventNodeAdded:
				node := &fetchNode{Issue: *ev.Node, Unparented: ev.Unparented}
				nodes[node.Key] = node
				if parent, ok := nodes[ev.ParentKey]; ok && ev.ParentKey != "" {
					parent.Children = append(parent.Children, node)
				} else {
					roots = append(roots, node)
				}
			case models.EventError:
				if !ev.Recoverable {
					return fmt.Errorf("hierarchy fetch failed: %s", ev.Message)
				}
				logging.Warn("subtree failed, continuing", "error", ev.Message)
			case models.EventDone:
				if ev.Totals != nil {
					totals = *ev.Totals
				}
			}
		}

		document := map[string]any{
			"roots": roots,
			"metadata": map[string]any{
				"generated":    time.Now().Format(time.RFC3339),
				"total_rfes":   totals.RFEs,
				"total_strats": totals.Strats,
				"total_epics":  totals.Epics,
				"total_tasks":  totals.Tasks,
			},
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(document)
	},
}

func init() {
	fetchCmd.Flags().String("component", "", "Component to filter by (default from DEFAULT_COMPONENT)")
	fetchCmd.Flags().String("top-level", "rfe", "Hierarchy level to start from: rfe or strat")
}
