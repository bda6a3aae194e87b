package main

import (
	papermcp "github.com/hurttlocker/papertopics/internal/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				srv := papermcp.NewServer(papermcp.ServerConfig{Engine: a.engine, Version: version})
				a.log.Info("mcp_serve_start", "transport", "stdio", "driver", a.cfg.DBDriver.Value)
				return server.ServeStdio(srv)
			})
		},
	}
}
