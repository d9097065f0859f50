package cmd

import (
	"context"
	"fmt"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/newsdigest/internal/logging"
	"github.com/teemow/newsdigest/internal/resources"
	"github.com/teemow/newsdigest/internal/server"
	"github.com/teemow/newsdigest/internal/tools/newsletter_tools"
)

func newServeCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP (Model Context Protocol) server over stdio, exposing the
newsletter tools to AI assistants:

  - newsletter_fetch     decoded bodies of matching emails
  - newsletter_articles  extracted articles as JSON
  - newsletter_topics    clustered topic list
  - newsletter_summary   multi-paragraph digest

Resources newsdigest://config and newsdigest://instructions describe the
effective settings.

With --metrics-addr a separate HTTP listener serves Prometheus metrics on
/metrics and health probes on /healthz and /readyz.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return runServe(ctx, a, metricsAddr)
			})
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics and health probes on this address (e.g. 127.0.0.1:9090)")

	return cmd
}

func runServe(ctx context.Context, a *app, metricsAddr string) error {
	serverContext, err := server.NewServerContext(ctx, a.cfg,
		server.WithLogger(a.logger),
		server.WithMetrics(a.metrics()),
		server.WithAuditLogger(a.auditLogger()),
	)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			a.logger.Warn("server context shutdown failed", logging.Err(err))
		}
	}()

	var health *server.HealthChecker
	if metricsAddr != "" {
		metricsServer, stop, err := startMetricsServer(a, serverContext, metricsAddr)
		if err != nil {
			return err
		}
		defer stop()
		health = metricsServer.Health()
	}

	mcpSrv := mcpserver.NewMCPServer("newsdigest", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)
	if err := newsletter_tools.RegisterNewsletterTools(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register newsletter tools: %w", err)
	}
	if err := resources.RegisterResources(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register resources: %w", err)
	}

	if health != nil {
		health.SetReady(true)
	}
	a.logger.Info("serving MCP over stdio", logging.Operation("serve"))
	return runStdioServer(ctx, mcpSrv)
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	select {
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}

// startMetricsServer binds addr and serves metrics in the background. The
// server reports not ready until the caller marks it ready. The returned
// func shuts the listener down.
func startMetricsServer(a *app, sc *server.ServerContext, addr string) (*server.MetricsServer, func(), error) {
	if !a.provider.Enabled() {
		return nil, nil, fmt.Errorf("--metrics-addr requires instrumentation (INSTRUMENTATION_ENABLED=true)")
	}
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    addr,
		InstrumentationProvider: a.provider,
		ServerContext:           sc,
		Logger:                  a.logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create metrics server: %w", err)
	}
	metricsServer.Health().SetReady(false)

	ln, err := metricsServer.Listen()
	if err != nil {
		return nil, nil, err
	}
	go func() {
		if err := metricsServer.Serve(ln); err != nil {
			a.logger.Error("metrics server failed", logging.Err(err))
		}
	}()

	return metricsServer, func() {
		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics server shutdown failed", logging.Err(err))
		}
	}, nil
}

