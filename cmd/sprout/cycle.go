package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newCycleCommand(v *viper.Viper) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Run evolution cycles once, without the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}

			for i := 0; i < count; i++ {
				result, err := rt.coordinator.RunCycle(cmd.Context())
				if err != nil {
					return err
				}

				fmt.Printf("cycle %d: index=%.1f stage=%s", result.Cycle, result.Index.Value, result.Stage)
				switch {
				case result.Exhausted:
					fmt.Println("  (no eligible skill)")
				case result.Outcome != nil && result.Outcome.Success:
					fmt.Printf("  %s/%s %s\n", result.Selected.Tree, result.Selected.SkillID, green("advanced"))
				case result.Outcome != nil:
					fmt.Printf("  %s/%s %s: %s\n", result.Selected.Tree, result.Selected.SkillID,
						red("failed"), result.Outcome.Error)
				default:
					fmt.Println()
				}
				for _, id := range result.Unlocked {
					fmt.Printf("  unlocked %s\n", cyan(id))
				}
				for _, id := range result.Discovered {
					fmt.Printf("  discovered %s\n", yellow(id))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of cycles to run")
	return cmd
}
