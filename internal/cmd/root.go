package cmd

import (
	"github.com/spf13/cobra"

	"github.com/molt-dev/molt/internal/config"
	"github.com/molt-dev/molt/internal/logging"
	"github.com/molt-dev/molt/internal/output"
)

var (
	// Global flags
	outputFormat string
	configPath   string
	verbose      bool
	quiet        bool
	assumeYes    bool

	// Build information, set by Execute.
	buildVersion = "0.0.0-dev"
	buildCommit  = "none"
	buildDate    = "unknown"

	// cfg is the loaded configuration, populated before any command runs.
	cfg *config.File
)

func Execute(version, commit, date string) error {
	buildVersion, buildCommit, buildDate = version, commit, date

	rootCmd := &cobra.Command{
		Use:   "molt",
		Short: "Keep installed binaries current",
		Long: `molt keeps an installed application up to date: it checks a release
channel, downloads and verifies new releases, and hands installation off
to a detached updater process so the running binary can be replaced.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadOrDefault(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			return logging.Init(logLevel(), cfg.Log.File)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json, yaml")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to molt config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Assume yes for all prompts")

	// Add subcommands
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newUpdateCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newCleanCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newPathsCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	// Register completion function for output flag
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return output.Names(), cobra.ShellCompDirectiveNoFileComp
	})

	return rootCmd.Execute()
}

// logLevel maps the verbosity flags onto a log level, with the config file
// as the baseline.
func logLevel() string {
	switch {
	case quiet:
		return "error"
	case verbose:
		return "debug"
	case cfg.Log.Level != "":
		return cfg.Log.Level
	default:
		return "info"
	}
}
