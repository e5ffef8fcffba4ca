package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/acp-gate/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the config and policy file without serving",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	p, err := config.LoadPolicyFile(cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	fmt.Printf("config OK\n")
	fmt.Printf("  shell_gate_addr: %s\n", cfg.Server.ShellGateAddr)
	fmt.Printf("  proxy_addr:      %s\n", cfg.Server.ProxyAddr)
	fmt.Printf("  channel:         %s\n", cfg.Channel.Kind)
	fmt.Printf("policy OK\n")
	fmt.Printf("  file:            %s\n", cfg.PolicyFile)
	fmt.Printf("  default_action:  %s\n", p.DefaultAction)
	fmt.Printf("  rules:           %d\n", len(p.Rules))
	return nil
}
