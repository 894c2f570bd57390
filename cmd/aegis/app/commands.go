// Package app provides the entry point for the aegis command line tool.
package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aegisauth/aegis/internal/versions"
)

var rootCmd = &cobra.Command{
	Use:               "aegis",
	DisableAutoGenTag: true,
	Short:             "Authorization enforcement client",
	Long: `aegis queries a local policy decision point for authorization verdicts
and manages the policy caches it decides from.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			slog.Error("Error displaying help", "error", err)
		}
	},
}

var rootCmdSetup sync.Once

// NewRootCmd creates a new root command for the aegis CLI.
func NewRootCmd() *cobra.Command {
	rootCmdSetup.Do(func() {
		rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
		rootCmd.PersistentFlags().String("config", "", "Path to configuration file (YAML format)")
		if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
			slog.Error("Error binding debug flag", "error", err)
		}
		if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
			slog.Error("Error binding config flag", "error", err)
		}

		rootCmd.AddCommand(checkCmd)
		rootCmd.AddCommand(updatePolicyCmd)
		rootCmd.AddCommand(updatePolicyDataCmd)
		rootCmd.AddCommand(versionCmd)
	})

	return rootCmd
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		info := versions.GetVersionInfo()
		format, err := cmd.Flags().GetString("format")
		if err != nil {
			slog.Error("Error retrieving format flag", "error", err)
			return
		}

		if format == "json" {
			output, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				slog.Error("Error formatting version info as JSON", "error", err)
				return
			}
			fmt.Println(string(output))
		} else {
			slog.Info("aegis version",
				"version", info.Version,
				"commit", info.Commit,
				"built", info.BuildDate,
				"go", info.GoVersion,
				"platform", info.Platform)
		}
	},
}

func init() {
	versionCmd.Flags().String("format", "", "Output format (json)")
}
