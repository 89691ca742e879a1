package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/mus/pkg/mus/config"
	"github.com/jamesainslie/mus/pkg/mus/output"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "mus [flags] <paths...> [manifest-file]",
		Short: "Create and verify integrity manifests for file trees",
		Long: `Mus hashes every file below the given paths and writes a manifest with a
self-checksum, so that later runs can tell which files changed or went missing.

Generation takes the paths to hash followed by the manifest to write. With -a
the manifest name is derived from the files and written into their common
ancestor. Verification (-v) takes manifests, or directories that contain
manifests, and checks every listed file.

Examples:
  mus ~/photos photos.mu5            # Hash ~/photos into photos.mu5
  mus -a ~/photos/2023 ~/photos/2024 # Write ~/photos/photos.mu5
  mus -v photos.mu5                  # Verify the files listed in photos.mu5
  mus -v -o json ~/photos            # Verify every manifest below ~/photos as JSON
  mus --tui -a ~/photos              # Show an interactive progress view
  mus history                        # List earlier runs`,
		Args:              cobra.MinimumNArgs(1),
		PersistentPreRunE: initializeLogging,
		RunE:              runChecksum,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/mus/config.yaml)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().Bool("debug", false, "debug output")

	rootCmd.Flags().BoolP("verify", "v", false, "verify manifests instead of generating one")
	rootCmd.Flags().BoolP("auto", "a", false, "derive the manifest name from the files")
	rootCmd.Flags().IntP("workers", "w", 0, "override worker count (0=auto)")
	rootCmd.Flags().String("algorithm", "", "digest algorithm for new manifests: md5 or sha3-256")
	rootCmd.Flags().StringSliceP("exclude", "e", nil, "exclude patterns (can be specified multiple times)")
	rootCmd.Flags().StringP("output", "o", "pretty", fmt.Sprintf("report format %v", output.Available()))
	rootCmd.Flags().String("template", "", "Go template for -o template")
	rootCmd.Flags().Bool("tui", false, "show an interactive progress view")
	rootCmd.Flags().Bool("no-history", false, "do not record this run in the history")

	// Bind flags to viper
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("workers", rootCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("algorithm", rootCmd.Flags().Lookup("algorithm"))
	_ = viper.BindPFlag("exclude", rootCmd.Flags().Lookup("exclude"))
	_ = viper.BindPFlag("output", rootCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("template", rootCmd.Flags().Lookup("template"))
	_ = viper.BindPFlag("tui", rootCmd.Flags().Lookup("tui"))
	_ = viper.BindPFlag("no_history", rootCmd.Flags().Lookup("no-history"))
}

// initConfig reads in config file and environment variables.
func initConfig() {
	config.Configure(viper.GetViper(), cfgFile)

	if err := config.ReadInConfig(viper.GetViper()); err != nil {
		printError("%v", err)
	}
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	_ = shutdownLogging(nil, nil)
	if err != nil && !isSilent(err) {
		printError("%v", err)
	}
	return err
}

// getDebug returns true if debug output is enabled.
func getDebug() bool {
	return viper.GetBool("debug")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if debug mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getDebug() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
