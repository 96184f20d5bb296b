package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/hierview/internal/config"
	"github.com/danielolaszy/hierview/internal/jira"
	"github.com/danielolaszy/hierview/internal/logging"
	"github.com/danielolaszy/hierview/internal/server"
)

// serveCmd runs the hierarchy viewer HTTP server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hierarchy viewer web server",
	Long: `Run the hierarchy viewer web server.

The server exposes:
  /                       the hierarchy viewer page
  /api/hierarchy/stream   server-sent-event stream of hierarchy updates
  /api/create-epic        create an epic under a strategic initiative
  /api/create-task        create a task under an epic
  /api/add-comment        add a comment to an issue
  /health                 health check

Configuration comes from the environment: JIRA_URL, JIRA_PAT, HOST, PORT,
OPEN_BROWSER, plus optional project overrides (JIRA_RFE_PROJECT,
JIRA_STRAT_PROJECT, JIRA_ENG_PROJECT, DEFAULT_COMPONENT). Flags override
the corresponding environment values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}

		if port, _ := cmd.Flags().GetInt("port"); cmd.Flags().Changed("port") {
			cfg.Server.Port = port
		}
		if host, _ := cmd.Flags().GetString("host"); cmd.Flags().Changed("host") {
			cfg.Server.Host = host
		}
		if open, _ := cmd.Flags().GetBool("open"); cmd.Flags().Changed("open") {
			cfg.Server.OpenBrowser = open
		}

		client, err := jira.NewClient(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize jira client: %v", err)
		}

		logging.Info("starting hierarchy viewer",
			"jira_url", cfg.Jira.URL,
			"host", cfg.Server.Host,
			"port", cfg.Server.Port)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return server.New(cfg, client).Run(ctx)
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8000, "Port to listen on")
	serveCmd.Flags().String("host", "", "Host interface to bind (default all interfaces)")
	serveCmd.Flags().Bool("open", false, "Open the viewer in the default browser on startup")
}
