package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"sprout/internal/evolution"
	"sprout/internal/skilltree"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func newStatusCommand(v *viper.Viper) *cobra.Command {
	var showLocked bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show trees, evolution index and failure state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}

			if !isTTY() {
				color.NoColor = true
			}

			snap := rt.coordinator.Snapshot()
			printStatus(snap, showLocked)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showLocked, "all", "a", false, "Include locked skills")
	return cmd
}

func printStatus(snap *evolution.Snapshot, showLocked bool) {
	fmt.Printf("%s  index %s  stage %s  (general %.0f%% / domain %.0f%%)\n\n",
		bold("sprout"),
		bold(fmt.Sprintf("%.1f", snap.Index.Value)),
		cyan(string(snap.Stage)),
		snap.Split.General*100, snap.Split.Domain*100)

	for _, id := range []skilltree.TreeID{skilltree.TreeGeneral, skilltree.TreeDomain} {
		printTree(id, snap.Trees[id], showLocked)
	}

	if len(snap.Failures.Cooling) > 0 {
		fmt.Println(bold("cooling down"))
		for _, c := range snap.Failures.Cooling {
			fmt.Printf("  %s/%s  %d cycles left\n", c.Tree, c.SkillID, c.Remaining)
		}
		fmt.Println()
	}
	if len(snap.Failures.Struggling) > 0 {
		fmt.Println(bold("struggling"))
		for _, s := range snap.Failures.Struggling {
			fmt.Printf("  %s/%s  %d consecutive failures\n", s.Tree, s.SkillID, s.ConsecutiveFailures)
		}
		fmt.Println()
	}
}

func printTree(id skilltree.TreeID, g *skilltree.Graph, showLocked bool) {
	skills := g.Skills()
	fmt.Printf("%s tree  (%d skills)\n", bold(string(id)), len(skills))

	sort.SliceStable(skills, func(i, j int) bool {
		oi, _ := skills[i].Tier.Order()
		oj, _ := skills[j].Tier.Order()
		if oi != oj {
			return oi < oj
		}
		return skills[i].ID < skills[j].ID
	})

	for _, skill := range skills {
		if !skill.Unlocked && !showLocked {
			continue
		}
		fmt.Printf("  %s %-24s %-12s %s %s\n",
			stateIcon(skill), skill.Name, gray(string(skill.Tier)),
			levelBar(skill), levelLabel(skill))
	}
	fmt.Println()
}

func stateIcon(s *skilltree.Skill) string {
	switch {
	case !s.Unlocked:
		return gray("•")
	case s.Maxed():
		return yellow("★")
	case s.CooldownRemaining > 0:
		return red("❄")
	default:
		return green("●")
	}
}

func levelBar(s *skilltree.Skill) string {
	const width = 20
	if s.MaxLevel <= 0 {
		return strings.Repeat("░", width)
	}
	filled := s.Level * width / s.MaxLevel
	if filled > width {
		filled = width
	}
	return green(strings.Repeat("█", filled)) + gray(strings.Repeat("░", width-filled))
}

func levelLabel(s *skilltree.Skill) string {
	label := fmt.Sprintf("%d/%d", s.Level, s.MaxLevel)
	if !s.Unlocked {
		return gray(label + " locked")
	}
	return label
}
