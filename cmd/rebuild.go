package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
)

var rebuildServer string

// Opening a backend already rebuilds its indexes, so this command asks the
// process that is serving them to rebuild in place.
var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Ask a running server to recompute its search, citation and title indexes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		server := rebuildServer
		if server == "" {
			server = "http://localhost:" + cfg.Port
		}
		url := strings.TrimRight(server, "/") + "/api/rebuild"

		agent := fiber.Post(url)
		agent.Timeout(5 * time.Minute)
		if err := agent.Parse(); err != nil {
			return fmt.Errorf("failed to build request to %s: %w", url, err)
		}
		code, body, errs := agent.Bytes()
		if len(errs) > 0 {
			return fmt.Errorf("failed to reach %s: %w", url, errors.Join(errs...))
		}
		if code != fiber.StatusOK {
			return fmt.Errorf("rebuild failed with status %d: %s", code, strings.TrimSpace(string(body)))
		}

		logger.Info("rebuilt indexes", "server", server)
		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(body)))
		return nil
	},
}

func init() {
	rebuildCmd.Flags().StringVar(&rebuildServer, "server", "", "Base URL of the running server (default http://localhost:$PORT)")
	rootCmd.AddCommand(rebuildCmd)
}
