package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Exit codes
const (
	exitOK      = 0
	exitFatal   = 1
	exitPartial = 2
)

// exitError carries a process exit code through cobra
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	os.Exit(exitCode(newRootCmd().Execute()))
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFatal
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "oci-diagram",
		Short: "Draw one architecture diagram per OCI compartment",
		Long: `oci-diagram lists the compute instances, database systems, load balancers
and object storage buckets of every compartment in an OCI tenancy and renders
one diagram per compartment, grouping resources by category.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         runE,
	}

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to YAML config file")
	pf.String("log-level", "", "Log level: silent, normal, verbose, debug")

	f := rootCmd.Flags()
	f.Int("timeout", 0, "Timeout for the whole run in seconds, 0 for none")
	f.String("auth", "", "Authentication method: api_key, instance_principal")
	f.String("profile", "", "Profile in the OCI config file")
	f.String("output-dir", "", "Directory for the diagrams")
	f.String("format", "", "Diagram format: png, svg, dot")
	f.String("title", "", "Diagram title")
	f.String("direction", "", "Layout direction: LR, TB, BT, RL")
	f.Bool("include-root", false, "Also draw the tenancy root compartment")
	f.Bool("strict", false, "Abort a compartment when any category fails")
	f.Bool("fail-fast", false, "Stop the run at the first failed compartment")
	f.Bool("progress", true, "Show a progress bar on terminals")
	f.Bool("summary", false, "Print a summary table after the run")
	f.String("output-file", "", "Also write a resource inventory to this file")
	f.String("output-format", "", "Inventory format: json, csv, tsv")
	f.String("compartments", "", "Only these compartment OCIDs (comma-separated)")
	f.String("exclude-compartments", "", "Skip these compartment OCIDs (comma-separated)")
	f.String("categories", "", "Only these categories (comma-separated)")
	f.String("exclude-categories", "", "Skip these categories (comma-separated)")
	f.String("name-filter", "", "Only resources whose name matches this regex")
	f.String("exclude-name-filter", "", "Skip resources whose name matches this regex")

	rootCmd.AddCommand(newDiffCmd(), newConfigCmd())
	return rootCmd
}

func newDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff OLD NEW",
		Short: "Compare two JSON inventories",
		Args:  cobra.ExactArgs(2),
		RunE:  diffE,
	}

	f := cmd.Flags()
	f.String("format", "", "Report format: text, json")
	f.Bool("detailed", false, "Include unchanged resources")
	f.String("output", "", "Write the report to this file")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	initCmd := &cobra.Command{
		Use:   "init [FILE]",
		Short: "Write a configuration file with the default settings",
		Args:  cobra.MaximumNArgs(1),
		RunE:  configInitE,
	}
	initCmd.Flags().Bool("force", false, "Overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}

// loadAppConfig reads --config or the search paths
func loadAppConfig(cmd *cobra.Command) (*AppConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return LoadConfigFile(path)
	}
	return LoadConfig()
}

func stringFlag(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

func intFlag(cmd *cobra.Command, name string) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetInt(name)
	return &v
}

func boolFlag(cmd *cobra.Command, name string) *bool {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetBool(name)
	return &v
}

func cliOverrides(cmd *cobra.Command) CLIOverrides {
	return CLIOverrides{
		Timeout:     intFlag(cmd, "timeout"),
		LogLevel:    stringFlag(cmd, "log-level"),
		Progress:    boolFlag(cmd, "progress"),
		Summary:     boolFlag(cmd, "summary"),
		FailFast:    boolFlag(cmd, "fail-fast"),
		Strict:      boolFlag(cmd, "strict"),
		Profile:     stringFlag(cmd, "profile"),
		AuthMethod:  stringFlag(cmd, "auth"),
		OutputDir:   stringFlag(cmd, "output-dir"),
		Format:      stringFlag(cmd, "format"),
		Title:       stringFlag(cmd, "title"),
		Direction:   stringFlag(cmd, "direction"),
		IncludeRoot: boolFlag(cmd, "include-root"),
		OutputFile:  stringFlag(cmd, "output-file"),
		OutputFmt:   stringFlag(cmd, "output-format"),

		IncludeCompartments: stringFlag(cmd, "compartments"),
		ExcludeCompartments: stringFlag(cmd, "exclude-compartments"),
		IncludeCategories:   stringFlag(cmd, "categories"),
		ExcludeCategories:   stringFlag(cmd, "exclude-categories"),
		NamePattern:         stringFlag(cmd, "name-filter"),
		ExcludeNamePattern:  stringFlag(cmd, "exclude-name-filter"),
	}
}

// runE is the full pass over the tenancy
func runE(cmd *cobra.Command, args []string) error {
	cfg, err := loadAppConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	MergeWithCLIArgs(cfg, cliOverrides(cmd))
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	runtime, err := cfg.Runtime()
	if err != nil {
		return err
	}
	logger.SetLevel(runtime.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runtime.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runtime.Timeout)
		defer cancel()
	}

	summary, err := Run(ctx, cfg, DefaultDependencies(), cmd.OutOrStdout())
	if runtime.ShowSummary && summary != nil && len(summary.Compartments) > 0 {
		PrintSummary(cmd.OutOrStdout(), summary)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("run exceeded timeout of %s: %w", runtime.Timeout, err)
		}
		return err
	}

	if summary.Failed() {
		failed := 0
		for _, r := range summary.Compartments {
			if !r.Succeeded() {
				failed++
			}
		}
		return &exitError{code: exitPartial, err: fmt.Errorf("%d of %d compartments incomplete", failed, len(summary.Compartments))}
	}

	logger.Verbose("Rendered %d diagrams in %s", summary.Rendered(), summary.Duration)
	return nil
}

func diffE(cmd *cobra.Command, args []string) error {
	cfg, err := loadAppConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if level := stringFlag(cmd, "log-level"); level != nil {
		parsed, err := ParseLogLevel(*level)
		if err != nil {
			return err
		}
		logger.SetLevel(parsed)
	}

	diffCfg := cfg.Diff
	if v := stringFlag(cmd, "format"); v != nil {
		diffCfg.Format = *v
	}
	if v := boolFlag(cmd, "detailed"); v != nil {
		diffCfg.Detailed = *v
	}
	if v := stringFlag(cmd, "output"); v != nil {
		diffCfg.OutputFile = *v
	}

	result, err := CompareInventories(args[0], args[1], diffCfg)
	if err != nil {
		return err
	}
	return OutputDiffResult(result, diffCfg, cmd.OutOrStdout())
}

func configInitE(cmd *cobra.Command, args []string) error {
	filename := "oci-diagram.yaml"
	if len(args) == 1 {
		filename = args[0]
	}

	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(filename); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", filename)
	}

	if err := GenerateDefaultConfigFile(filename); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", filename)
	return nil
}
