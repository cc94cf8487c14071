package cmd

import (
	"github.com/spf13/cobra"
)

var (
	projectDir string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "agentflow",
	Short: "AgentFlow - LLM agent chain runner",
	Long: `AgentFlow runs YAML-defined chains of LLM calls, tools and ReAct agents.

Project settings (model provider, tools, interceptors) are read from
agentflow.yaml in the project directory when present.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectDir, "dir", ".", "Project directory")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Project file inside --dir (default <dir>/agentflow.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
