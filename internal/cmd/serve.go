package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/metcalfc/aeonsight/internal/blueprint"
	"github.com/metcalfc/aeonsight/internal/mcpserver"
)

func newServeCmd(e *env) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the goal blueprint endpoint",
		Long:  "Serve POST /api/blueprint and GET /api/health. Configure with PORT, OPENAI_API_KEY, OPENAI_MODEL, BLUEPRINT_RATE_LIMIT, BLUEPRINT_RATE_WINDOW_SECONDS and MAX_BODY_BYTES, or a .env file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := e.cfg
			if port != "" {
				cfg.Port = port
			}
			// Request lines are always logged, like any server.
			logger := log.New(os.Stderr, "", log.LstdFlags)
			gen := blueprint.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel)
			limiter := blueprint.NewLimiter(cfg.BlueprintLimit, cfg.BlueprintWindow)
			srv := blueprint.NewServer(blueprint.NewHandler(gen, limiter, logger), cfg.Port, cfg.MaxBodyBytes, logger)

			logger.Printf("listening on :%s (%d requests per %s per client)", cfg.Port, cfg.BlueprintLimit, cfg.BlueprintWindow)
			if err := srv.Run(); err != nil {
				return fmt.Errorf("server stopped with error: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "Listen port (default $PORT or 8080)")
	return cmd
}

func newMCPCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve library tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := e.library()
			if err != nil {
				return err
			}
			return mcpserver.New(lib, e.logger).ServeStdio()
		},
	}
}
