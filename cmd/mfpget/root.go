package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"mfpget/pkg/config"
	"mfpget/pkg/logger"
	"mfpget/pkg/scraper"
	"mfpget/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Flags
	configFile string
	logLevel   string
	outputDir  string
	jobs       int
	latestOnly bool
	quiet      bool
)

// rootCmd represents the base command; running it performs the download
var rootCmd = &cobra.Command{
	Use:   "mfpget",
	Short: "Download every musicforprogramming.net episode",
	Long: `mfpget scrapes the musicforprogramming.net index page, resolves the direct
mp3 URL of the latest episode and of every listed episode, and downloads them
all with a fixed cap on concurrent transfers.

Files already present in the output directory are never overwritten; their
presence makes a rerun skip them.`,
	Example: `  # Download everything into the current directory
  mfpget

  # Only the newest episode
  mfpget --latest

  # Four concurrent transfers into ./episodes
  mfpget -j 4 -o ./episodes`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runGet,
}

// Execute runs the root command and exits non-zero on any failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("DOWNLOAD FAILED", err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "config file (default is $HOME/.config/mfpget/config.yaml)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for downloads (default: current directory)")
	rootCmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "maximum concurrent transfers (default 8)")
	rootCmd.Flags().BoolVar(&latestOnly, "latest", false, "download only the newest episode")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress the banner")

	rootCmd.SetVersionTemplate(`mfpget {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func runGet(cmd *cobra.Command, args []string) error {
	flags := make(map[string]interface{})
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if cmd.Flags().Changed("jobs") {
		flags["jobs"] = jobs
	}
	if cmd.Flags().Changed("latest") {
		flags["latest"] = latestOnly
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return err
	}

	if !quiet {
		ui.PrintBanner()
	}

	s, err := scraper.New(cfg)
	if err != nil {
		return err
	}

	if err := s.Run(cmd.Context()); err != nil {
		return err
	}

	ui.PrintSuccess(fmt.Sprintf("Done: %d downloaded, %d skipped", s.Completed(), s.Skipped()))
	return nil
}
