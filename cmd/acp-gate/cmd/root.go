// Package cmd provides the acp-gate CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/acp-gate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "acp-gate",
	Short: "acp-gate - consent gateway for autonomous agents",
	Long: `acp-gate enforces human consent on an autonomous agent's shell commands
and network requests. It exposes two listeners:

  shell-gate   a local HTTP endpoint agent runtimes call before running a
               shell command, returning an approval token on allow

  proxy        an HTTP forward proxy (plain HTTP and CONNECT tunneling)
               that consults the same policy and channel before letting a
               request or a TLS tunnel through

Configuration is loaded from acp-gate.yaml in the current directory,
$HOME/.acp-gate/, or /etc/acp-gate/. Environment variables override config
values with the ACP_ prefix; ACP_HTTP_HOST_APPROVAL_TTL_SEC is read directly.

Commands:
  serve       Start the shell-gate and proxy listeners
  validate    Load and validate the config and policy file without serving
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./acp-gate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
