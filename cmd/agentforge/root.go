package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/agentforge/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "agentforge",
	Short: "Build and run agent trees from stored definitions",
	Long: `agentforge turns agent and model documents into executable agent trees
and runs them for chat messages. Runs execute in-process, against A2A peers
or against hosted agents; results and events are written back to the
document store.

Configuration is read from an optional YAML file, AGENTFORGE_* environment
variables and flags.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("store-driver", "memory", "Document store driver (memory, sqlite)")
	rootCmd.PersistentFlags().String("store-dsn", "", "Document store DSN")
	rootCmd.PersistentFlags().String("seed", "", "YAML seed file loaded into the store at startup")
	rootCmd.PersistentFlags().Bool("mock-models", false, "Replace model transports with a mock model")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(versionCmd)
}

var flagKeys = map[string]string{
	"log-level":    "log.level",
	"store-driver": "store.driver",
	"store-dsn":    "store.dsn",
	"seed":         "store.seed",
	"mock-models":  "model.mock",
	"addr":         "server.addr",
	"async":        "server.async",
}

// loadConfig reads the configuration with the command's flags bound on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(configPath, func(v *viper.Viper) error {
		for name, key := range flagKeys {
			f := cmd.Flags().Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
		return nil
	})
}

func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
