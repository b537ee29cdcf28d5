package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sprout/internal/skilltree"
)

func newSkillCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skill",
		Short: "Manual skill overrides",
	}
	cmd.AddCommand(newSkillUnlockCommand(v))
	cmd.AddCommand(newSkillPriorityCommand(v))
	cmd.AddCommand(newSkillAddCommand(v))
	return cmd
}

func parseTreeArg(arg string) (skilltree.TreeID, error) {
	id := skilltree.TreeID(arg)
	if id != skilltree.TreeGeneral && id != skilltree.TreeDomain {
		return "", fmt.Errorf("unknown tree %q (want general or domain)", arg)
	}
	return id, nil
}

func newSkillUnlockCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <tree> <id>",
		Short: "Force-unlock a skill, bypassing prerequisites",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := parseTreeArg(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			if err := rt.coordinator.ForceUnlock(tree, args[1]); err != nil {
				return err
			}
			fmt.Printf("unlocked %s/%s\n", tree, args[1])
			return nil
		},
	}
}

func newSkillPriorityCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "priority <tree> <id> <value>",
		Short: "Override a skill's base selection priority",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := parseTreeArg(args[0])
			if err != nil {
				return err
			}
			priority, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("priority %q is not a number", args[2])
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			if err := rt.coordinator.SetBasePriority(tree, args[1], priority); err != nil {
				return err
			}
			fmt.Printf("priority of %s/%s set to %.2f\n", tree, args[1], priority)
			return nil
		},
	}
}

func newSkillAddCommand(v *viper.Viper) *cobra.Command {
	var (
		name     string
		tier     string
		category string
		maxLevel int
		prereqs  []string
	)

	cmd := &cobra.Command{
		Use:   "add <tree> <id>",
		Short: "Add a hand-authored skill definition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := parseTreeArg(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}

			def := skilltree.Definition{
				ID:            args[1],
				Name:          name,
				Tier:          tier,
				Category:      category,
				MaxLevel:      maxLevel,
				Prerequisites: prereqs,
			}
			if def.Name == "" {
				def.Name = def.ID
			}
			if err := rt.coordinator.AddSkill(tree, def); err != nil {
				return err
			}
			fmt.Printf("added %s/%s (%s)\n", tree, def.ID, def.Tier)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the id)")
	cmd.Flags().StringVar(&tier, "tier", "basic", "Tier: basic, intermediate, advanced, expert, master")
	cmd.Flags().StringVar(&category, "category", "", "Category (required for the general tree)")
	cmd.Flags().IntVar(&maxLevel, "max-level", 0, "Level cap (defaults per tier)")
	cmd.Flags().StringSliceVar(&prereqs, "requires", nil, "Prerequisite skill ids")
	return cmd
}
