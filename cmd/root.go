// root.go viper root command code
package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Resonant-Jones/WhisperBoard/cmd/consumer"
	"github.com/Resonant-Jones/WhisperBoard/cmd/producer"
	"github.com/Resonant-Jones/WhisperBoard/internal/buildinfo"
	"github.com/Resonant-Jones/WhisperBoard/internal/conf"
)

// version and buildDate are set via -ldflags at build time; systemID is
// left for an embedding application to inject if it needs telemetry
// grouping across installs.
var (
	version   = "dev"
	buildDate = "unknown"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	runtime := buildinfo.NewContext(version, buildDate, "")

	// Create the root command
	rootCmd := &cobra.Command{
		Use:   "whisperboard",
		Short: "WhisperBoard on-device streaming transcription CLI",
	}

	// Set up the global flags for the root command.
	err := setupFlags(rootCmd, settings)
	if err != nil {
		log.Printf("error setting up flags: %v\n", err)
	}

	// Add sub-commands to the root command.
	producerCmd := producer.Command(settings)
	consumerCmd := consumer.Command(settings)
	versionCmd := versionCommand(runtime)

	rootCmd.AddCommand(producerCmd, consumerCmd, versionCmd)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		if err := initialize(); err != nil {
			return fmt.Errorf("error initializing: %w", err)
		}
		return nil
	}

	return rootCmd
}

// versionCommand reports the build-time metadata baked into the binary.
func versionCommand(runtime *buildinfo.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("whisperboard %s (built %s)\n", runtime.Version(), runtime.BuildDate())
			return nil
		},
	}
}

// initialize is called before any subcommands are run, but after the context is ready
// This function is responsible for setting up configurations, ensuring the environment is ready, etc.
func initialize() error {
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
