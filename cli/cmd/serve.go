package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/BDNK1/agentflow/runtime"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var (
	serveChains string
	serveAddr   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the project's chains over HTTP",
	Long: `Serve loads every chain in the project's chains directory and exposes them:

  GET  /chains                  list chains
  POST /chains/:id/executions   run a chain with a JSON body of variables
  GET  /metrics                 Prometheus metrics
`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveChains, "chains", "", "Chains directory inside --dir (default from agentflow.yaml)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from agentflow.yaml)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := loadProject(ctx, projectDir, configPath)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), p.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := p.Close(shutdownCtx); err != nil {
			p.l.Error("Shutdown failed", "error", err)
		}
	}()

	dir, err := p.chainsDir(serveChains)
	if err != nil {
		return fmt.Errorf("invalid chains directory: %w", err)
	}
	if err := p.app.LoadDir(dir); err != nil {
		return err
	}
	if len(p.app.Chains()) == 0 {
		p.l.Warn(fmt.Sprintf("No chains found in %s", dir))
	}

	addr := p.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := &http.Server{Addr: addr, Handler: newRouter(p)}

	serverErrors := make(chan error, 1)
	go func() {
		p.l.Info(fmt.Sprintf("Starting server on %s", addr), "chains", len(p.app.Chains()))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		p.l.Info("Shutting down server")

		// outstanding requests get the configured deadline
		shutdownCtx, cancel := context.WithTimeout(context.Background(), p.cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			p.l.Error(fmt.Sprintf("Graceful shutdown did not complete in %v", p.cfg.Server.ShutdownTimeout), "error", err)
			return srv.Close()
		}
		p.l.Info("Server stopped gracefully")
		return nil
	}
}

func newRouter(p *project) *gin.Engine {
	if p.cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	g := gin.New()
	g.Use(gin.Recovery())
	runtime.NewHttpHandler(p.app, g)
	return g
}
