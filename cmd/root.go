package cmd

import (
	"fmt"
	"os"

	"github.com/parnexcodes/ferry/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	verbose      bool
	concurrency  int
	outputFormat string

	rootCmd = &cobra.Command{
		Use:   "ferry",
		Short: "Chunked, resumable file transfer client",
		Long: `Ferry uploads files to any compliant backend, either as one multipart
request per file or as ordered chunks followed by a server-side merge.
Transfers run concurrently and can be paused by interrupting the process.`,
		SilenceUsage: true,
	}
)

// Execute executes the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().IntVarP(&concurrency, "concurrency", "c", 5, "maximum number of simultaneous transfers (0 = unlimited)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format (text, json)")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("upload.concurrency", rootCmd.PersistentFlags().Lookup("concurrency"))
	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	viper.SetEnvPrefix("ferry")
	viper.AutomaticEnv()

	if cfgFile == "" {
		if verbose {
			logging.Init(verbose, os.Stderr)
			logging.ConfigLoad("CLI flags only", nil)
		}
		return
	}

	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		os.Exit(1)
	}
	if verbose {
		logging.Init(verbose, os.Stderr)
		logging.ConfigLoad(viper.ConfigFileUsed(), nil)
	}
}
