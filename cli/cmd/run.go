package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BDNK1/agentflow/cli/internal/security"
	"github.com/BDNK1/agentflow/runtime"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	runVars    []string
	runTimeout time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run <chain-file>",
	Short: "Execute a chain once and print the result",
	Long: `Run loads a single chain definition, executes it with the given variables
and prints the execution as JSON. The command fails when the chain does not
finish successfully.

Example:
  agentflow run chains/research.yaml --var question="Who wrote Dune?"
  agentflow run chains/triage.yaml --var ticket.priority=2 --var tags=[billing,urgent]
`,
	Args: cobra.ExactArgs(1),
	RunE: runChain,
}

func init() {
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Chain variable as key=value; values are parsed as YAML")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Cancel the execution after this long (0 disables)")
}

func runChain(cmd *cobra.Command, args []string) error {
	variables, err := parseVars(runVars)
	if err != nil {
		return err
	}

	file, err := security.ResolveWithin(projectDir, args[0])
	if err != nil {
		return fmt.Errorf("invalid chain path: %w", err)
	}

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

	chain, err := p.app.LoadFile(file)
	if err != nil {
		return err
	}

	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	exec, runErr := chain.Execute(ctx, variables)
	if exec == nil {
		return runErr
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(runtime.NewExecutionResponse(exec)); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// parseVars turns key=value pairs into chain variables. Values are decoded
// as YAML so numbers, booleans and lists keep their types; anything that
// does not parse is kept as a string.
func parseVars(pairs []string) (map[string]any, error) {
	variables := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q: expected key=value", pair)
		}

		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
			value = raw
		}
		variables[key] = value
	}
	return variables, nil
}
