package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/prometheus/internal/config"
	"github.com/Aman-CERP/prometheus/internal/matcher"
	"github.com/Aman-CERP/prometheus/internal/output"
	"github.com/Aman-CERP/prometheus/internal/ui"
)

func newPatternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Inspect pattern definitions",
		Long: `Inspect the pattern definitions a scan would use.

Without a file argument the pattern file from the configuration is used,
or the built-in set (CPF, CNPJ, e-mail, phone, credit card, IPv4) when
none is configured.`,
	}

	cmd.AddCommand(newPatternsListCmd())
	cmd.AddCommand(newPatternsValidateCmd())

	return cmd
}

func newPatternsListCmd() *cobra.Command {
	var noColor bool

	cmd := &cobra.Command{
		Use:   "list [file]",
		Short: "List pattern definitions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, source, err := resolvePatterns(args)
			if err != nil {
				return err
			}
			ui.NewPatternsRenderer(cmd.OutOrStdout(), noColor).Render(source, defs)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	return cmd
}

func newPatternsValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check that every pattern compiles",
		Long: `Load the pattern definitions and compile each one. A single invalid
expression or option fails validation, the same way it would fail a scan.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, source, err := resolvePatterns(args)
			if err != nil {
				return err
			}
			m, err := matcher.Compile(defs, matcher.Options{})
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("%d patterns compiled from %s", len(m.Names()), source)
			return nil
		},
	}
}

// resolvePatterns picks the pattern file: the argument, then the
// configured path for the working directory, then the built-in set.
func resolvePatterns(args []string) ([]matcher.Definition, string, error) {
	if len(args) > 0 {
		return loadPatterns(args[0])
	}
	cwd, _ := os.Getwd()
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, "", err
	}
	return loadPatterns(cfg.Patterns.Path)
}
