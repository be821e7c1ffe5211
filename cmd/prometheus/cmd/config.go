package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/prometheus/configs"
	"github.com/Aman-CERP/prometheus/internal/config"
	"github.com/Aman-CERP/prometheus/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the user and case configuration files.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/prometheus/config.yaml)
  3. Case config (.prometheus.yaml in the scan root or working directory)
  4. Environment variables (PROMETHEUS_*)
  5. Command-line flags`,
		Example: `  # Create user config from template
  prometheus config init

  # Create a case config in the current directory
  prometheus config init --project

  # Show effective configuration
  prometheus config show`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		force   bool
		project bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from the template",
		Long: `Create the user configuration file, or with --project a case
configuration (.prometheus.yaml) in the current directory.

An existing user configuration is backed up before --force replaces it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if project {
				return runConfigInitProject(cmd, force)
			}
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&project, "project", false, "Create .prometheus.yaml in the current directory")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show [root]",
		Short: "Show effective configuration",
		Long: `Show the configuration a scan of root (default: current directory)
would use, after merging all sources.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			return runConfigShow(cmd, root, jsonOutput, source)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, user, project, defaults")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())
	configPath := config.GetUserConfigPath()

	var backupPath string
	if config.UserConfigExists() {
		if !force {
			out.Warning("User configuration already exists")
			out.Statusf("📁", "Location: %s", configPath)
			out.Status("💡", "Use --force to replace it (a backup is kept)")
			return nil
		}
		var err error
		backupPath, err = config.BackupUserConfig()
		if err != nil {
			return fmt.Errorf("failed to backup config: %w", err)
		}
	}

	if err := os.MkdirAll(config.GetUserConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(configs.UserConfigTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created user configuration")
	out.Statusf("📁", "Location: %s", configPath)
	if backupPath != "" {
		out.Statusf("💾", "Backup: %s", backupPath)
	}
	out.Newline()
	out.Status("📋", "Next steps:")
	out.Status("", "  1. Edit the file to customize settings")
	out.Status("", "  2. Run 'prometheus config show' to verify")
	return nil
}

func runConfigInitProject(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	configPath := filepath.Join(cwd, config.ProjectConfigNames[0])

	if _, err := os.Stat(configPath); err == nil && !force {
		out.Warning("Case configuration already exists")
		out.Statusf("📁", "Location: %s", configPath)
		out.Status("💡", "Use --force to overwrite it")
		return nil
	}

	if err := os.WriteFile(configPath, []byte(configs.ProjectConfigTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created case configuration")
	out.Statusf("📁", "Location: %s", configPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, root string, jsonOutput bool, source string) error {
	out := output.New(cmd.OutOrStdout())

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	cwd, _ := os.Getwd()

	var (
		cfg        *config.Config
		sourceDesc string
	)
	switch source {
	case "merged":
		cfg, err = config.Load(absRoot, cwd)
		if err != nil {
			return err
		}
		sourceDesc = "merged (defaults + user + case + env)"

	case "user":
		path := config.GetUserConfigPath()
		if !config.UserConfigExists() {
			out.Warning("No user configuration file found")
			out.Statusf("📁", "Expected at: %s", path)
			out.Status("💡", "Run 'prometheus config init' to create one")
			return nil
		}
		if cfg, err = config.LoadFile(path); err != nil {
			return err
		}
		sourceDesc = fmt.Sprintf("user (%s)", path)

	case "project":
		path := config.FindProjectConfig(absRoot, cwd)
		if path == "" {
			out.Warning("No case configuration file found")
			out.Status("💡", "Run 'prometheus config init --project' to create one")
			return nil
		}
		if cfg, err = config.LoadFile(path); err != nil {
			return err
		}
		sourceDesc = fmt.Sprintf("case (%s)", path)

	case "defaults":
		cfg = config.NewConfig()
		sourceDesc = "defaults (hardcoded)"

	default:
		return fmt.Errorf("invalid source: %s (use: merged, user, project, defaults)", source)
	}

	if jsonOutput {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}

	out.Statusf("📋", "Configuration source: %s", sourceDesc)
	out.Newline()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), string(data))
	return err
}
