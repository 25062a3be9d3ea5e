package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	appVersion string // set in Execute
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resumly",
		Short: "Self-hosted AI-readable resume pages",
		Long: `Resumly: publish your resume as pages that AI assistants can actually read.

Resumly serves your resume over HTTP and over the Model Context Protocol, so
LLM clients like Claude can query it directly with scoped, revocable API keys.
Keys are bound to a single resume (or marked admin), carry fine-grained
permissions, and support scheduled rotation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./resumly.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the SQLite store (default: ~/.resumly)")

	cobra.OnInitialize(initConfig)

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newUserCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("resumly")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.resumly")
	}

	viper.SetEnvPrefix("RESUMLY")
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}
