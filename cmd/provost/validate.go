package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"provost-hq/provost/pkg/cli"
	"provost-hq/provost/pkg/registry/bundle"
)

var validateFlags struct {
	bundlePath string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and policy bundle",
	Long: `Validate the configuration file and, optionally, a policy bundle.

Every document in the bundle is parsed and checked: scope and
enforcement level must be known variants, and the rule tree must be
structurally valid.

Examples:
  # Validate configuration only
  provost validate

  # Validate configuration and a policy bundle
  provost validate --bundle ./policies`,
	RunE: validateAll,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.bundlePath, "bundle", "", "policy bundle directory or file to validate")
}

func validateAll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	fmt.Println("✓ Configuration valid")

	bundlePath := validateFlags.bundlePath
	if bundlePath == "" {
		bundlePath = cfg.Policies.BundlePath
	}
	if bundlePath == "" {
		return nil
	}

	docs, err := bundle.NewLoader(bundlePath).Load()
	if err != nil {
		return cli.NewCommandError("validate", fmt.Errorf("policy bundle invalid: %w", err))
	}

	fmt.Printf("✓ Policy bundle valid (%d documents)\n", len(docs))
	if verbose {
		for _, doc := range docs {
			fmt.Printf("  - %s (%s %s, %s)\n", doc.Name, doc.Scope, doc.Target, doc.Level)
		}
	}
	return nil
}
