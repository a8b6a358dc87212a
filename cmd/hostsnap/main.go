// Package main is the entrypoint for the hostsnap CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/eugenetaranov/hostsnap/internal/collector"
	"github.com/eugenetaranov/hostsnap/internal/config"
	"github.com/eugenetaranov/hostsnap/internal/logger"
	"github.com/eugenetaranov/hostsnap/internal/orchestrator"
	"github.com/eugenetaranov/hostsnap/internal/output"
	"github.com/eugenetaranov/hostsnap/internal/retention"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hostsnap",
	Short: "hostsnap - diagnostic backups of remote Linux hosts",
	Long: `hostsnap connects to a remote host, collects the project tree, its
configuration, container metadata, firewall rules and OS facts into one
archive, copies it home, checksums it and rotates old runs.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default $XDG_CONFIG_HOME/hostsnap/config.yaml)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().String("backup-root", "", "Local directory holding run directories (default ../_backups)")
	rootCmd.PersistentFlags().String("project", "dmb", "Project name used for remote paths and run directory names")

	// Add subcommands
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(rotateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(scriptCmd)
	rootCmd.AddCommand(stepsCmd)
}

// backupCmd runs a full backup
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up a remote host",
	Long: `Run the collector on the target, transfer the archive, write the
manifest and checksum, optionally extract it, then prune old runs.

Examples:
  hostsnap backup --host 203.0.113.5
  hostsnap backup --host web-1 --user ops --port 2222 --identity ~/.ssh/ops
  hostsnap backup --host web-1 --keep 0 --extract`,
	Args: cobra.NoArgs,
	RunE: runBackup,
}

func init() {
	backupCmd.Flags().String("host", "", "Remote host (required)")
	backupCmd.Flags().StringP("user", "u", "deploy", "Remote user")
	backupCmd.Flags().IntP("port", "p", 22, "Remote shell port")
	backupCmd.Flags().StringP("identity", "i", "", "Private key file")
	backupCmd.Flags().IntP("keep", "k", 10, "Run directories to keep (0 = unlimited)")
	backupCmd.Flags().BoolP("extract", "x", false, "Extract the archive into the run directory")
	backupCmd.Flags().StringP("transport", "t", config.TransportOpenSSH, "Transport: openssh, native, docker or local")
	backupCmd.Flags().String("container", "", "Container name for the docker transport")
	backupCmd.Flags().String("known-hosts", "", "known_hosts file for host key checking")
	backupCmd.Flags().StringArray("ssh-option", nil, "Extra ssh/scp -o option for the openssh transport (repeatable)")
	backupCmd.Flags().Duration("connect-timeout", 30*time.Second, "Dial timeout for the native transport")
	addCollectorFlags(backupCmd.Flags())

	rotateCmd.Flags().IntP("keep", "k", 10, "Run directories to keep (0 = unlimited)")

	addCollectorFlags(scriptCmd.Flags())
	scriptCmd.Flags().String("timestamp", "", "Timestamp to render (default now)")
}

func addCollectorFlags(fs *pflag.FlagSet) {
	fs.String("remote-tmp", "/tmp", "Remote directory for staging")
	fs.String("project-root", "/opt", "Remote directory holding the project tree")
	fs.String("extra-steps", "", "YAML file with additional collector steps")
}

// loadConfig binds the command's flags over file and environment settings.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "help" || f.Name == "version" || f.Name == "timestamp" {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		switch f.Name {
		case "extra-steps":
			key = "collector.extra_steps"
		case "ssh-option":
			key = "ssh_options"
		}
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}

	return config.Load(v, configPath)
}

// setup loads config and builds the output and logger for a command.
func setup(cmd *cobra.Command) (*config.Config, *orchestrator.Orchestrator, logger.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	log, err := logger.New(cfg.Debug, !cfg.NoColor)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialise logger: %w", err)
	}

	out := output.New(os.Stdout)
	out.SetColor(!cfg.NoColor)
	out.SetDebug(cfg.Debug)

	return cfg, orchestrator.New(out, log), log, nil
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, orch, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}

	conn, err := orchestrator.NewConnector(cfg)
	if err != nil {
		return err
	}

	// Setup context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted, stopping...")
			cancel()
		case <-ctx.Done():
		}
	}()

	run, err := orch.Backup(ctx, conn, cfg)
	if err != nil {
		if run != nil && run.Dir != "" {
			orch.Output.Error("run directory left for inspection: %s", run.Dir)
		}
		log.Error("backup failed", "error", err.Error())
		return err
	}

	return nil
}

// rotateCmd runs a retention pass only
var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Prune old run directories",
	Long: `Keep the newest --keep run directories under the backup root and
remove the rest. Nothing is contacted remotely.

Examples:
  hostsnap rotate --keep 5`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, orch, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		if err := cfg.ValidateKeep(); err != nil {
			return err
		}

		res, err := orch.Rotate(cfg)
		if res != nil {
			orch.Output.Info("kept %d, removed %d", len(res.Kept), len(res.Removed))
		}
		return err
	},
}

// listCmd lists run directories
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List run directories, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, orch, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		return orch.List(cfg)
	},
}

// scriptCmd prints the collector script without running it
var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "Print the rendered collector script",
	Long: `Render the remote collector script exactly as backup would send it,
and print it to stdout. Nothing is executed.

Examples:
  hostsnap script > collect.sh
  hostsnap script --extra-steps steps.yaml | ssh deploy@web-1 bash -s --`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.ValidateCollector(); err != nil {
			return err
		}

		catalogue, err := loadCatalogue(cfg)
		if err != nil {
			return err
		}

		ts, _ := cmd.Flags().GetString("timestamp")
		if ts == "" {
			ts = time.Now().Format(retention.TimestampLayout)
		} else if _, err := time.Parse(retention.TimestampLayout, ts); err != nil {
			return fmt.Errorf("invalid timestamp %q, want YYYYMMDD-HHMMSS", ts)
		}

		script, err := collector.Render(catalogue, collector.Params{
			Project:   cfg.Project,
			Timestamp: ts,
			Root:      cfg.ProjectRoot,
			TempDir:   cfg.RemoteTmp,
		})
		if err != nil {
			return err
		}

		_, err = os.Stdout.Write(script)
		return err
	},
}

// stepsCmd lists the collector steps
var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "List collector steps",
	Long:  `Display the collector steps in the order they run, with their output files.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		catalogue, err := loadCatalogue(cfg)
		if err != nil {
			return err
		}

		fmt.Println("Collector steps:")
		fmt.Println()
		for _, s := range catalogue.Steps {
			fmt.Printf("  - %-24s %s\n", s.Label, s.OutputFile())
		}
		fmt.Println()
		fmt.Printf("Total: %d steps\n", len(catalogue.Steps))
		return nil
	},
}

func loadCatalogue(cfg *config.Config) (*collector.Catalogue, error) {
	if cfg.Collector.ExtraSteps == "" {
		return collector.Load()
	}
	return collector.Load(cfg.Collector.ExtraSteps)
}
