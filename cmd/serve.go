package cmd

import (
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	"github.com/jjenkins/lawarchive/internal/handlers"
)

var port string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the archive web server",
	Long:  `Start the web server exposing the archive's HTML pages, JSON API and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Use the configured port unless the flag was set
		if !cmd.Flags().Changed("port") {
			port = cfg.Port
		}

		ctx, cancel := signalContext()
		defer cancel()

		archive, closeArchive, err := openArchive(ctx)
		if err != nil {
			return err
		}
		defer closeArchive()

		app := fiber.New(fiber.Config{
			AppName: "Law Archive",
		})

		app.Use(recover.New())
		app.Use(fiberlogger.New())

		handlers.Register(app, archive)

		go func() {
			<-ctx.Done()
			if err := app.Shutdown(); err != nil {
				logger.Error("failed to shut down server", "error", err)
			}
		}()

		logger.Info("starting server", "port", port, "backend", cfg.Backend)
		return app.Listen(":" + port)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&port, "port", "p", "8080", "Port to run the server on")
}
