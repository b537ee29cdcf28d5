package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sprout/internal/config"
	"sprout/internal/logging"
)

var version = "0.3.0"

// NewRootCommand builds the sprout CLI.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "sprout",
		Short: "Skill-evolution scheduler",
		Long: `Sprout grows two skill trees (general and domain) through timed
evolution cycles: it scores overall progress, picks one skill per cycle,
delegates the attempt to a generation collaborator and escalates through
fallback tiers when a skill keeps failing.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.BindDefaults(v)
			if cfgFile != "" {
				v.SetConfigFile(cfgFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config %s: %w", cfgFile, err)
				}
			} else {
				v.SetConfigName("sprout")
				v.SetConfigType("yaml")
				v.AddConfigPath("$HOME/.sprout")
				v.AddConfigPath(".")
				// Missing config file is fine; defaults and env cover it.
				_ = v.ReadInConfig()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file path")
	rootCmd.PersistentFlags().String("data-dir", "", "Override persistence directory")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	_ = v.BindPFlag("storage.dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = v.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(newServeCommand(v))
	rootCmd.AddCommand(newCycleCommand(v))
	rootCmd.AddCommand(newStatusCommand(v))
	rootCmd.AddCommand(newSkillCommand(v))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	logging.SetLevel(logging.ParseLevel(cfg.Logging.Level))
	return cfg, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the sprout version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sprout %s\n", version)
		},
	}
}
