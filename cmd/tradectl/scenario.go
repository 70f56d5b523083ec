package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smarter-english/elt-trading-game/internal/market"
)

var scenarioFile string

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Inspect market scenarios",
}

var scenarioValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a scenario file for errors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := market.LoadScenarioFile(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d commodities, %d months)\n", args[0], len(s.Commodities), s.Rounds())
		return nil
	},
}

var scenarioShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the month by month prices and headlines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := market.DefaultScenario()
		if scenarioFile != "" {
			s, err = market.LoadScenarioFile(scenarioFile)
		}
		if err != nil {
			return err
		}
		return printScenario(cmd.OutOrStdout(), s)
	},
}

func init() {
	scenarioShowCmd.Flags().StringVarP(&scenarioFile, "file", "f", "", "Scenario file (default: built in scenario)")

	scenarioCmd.AddCommand(scenarioValidateCmd, scenarioShowCmd)
	rootCmd.AddCommand(scenarioCmd)
}

func printScenario(w io.Writer, s *market.Scenario) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)

	fmt.Fprint(tw, "COMMODITY\t")
	for round := 0; round <= s.Rounds(); round++ {
		if round == s.Rounds() {
			fmt.Fprint(tw, "CLOSE\t")
			continue
		}
		fmt.Fprintf(tw, "M%d\t", round+1)
	}
	fmt.Fprintln(tw)

	for _, c := range s.Commodities {
		fmt.Fprintf(tw, "%s\t", c.Name)
		for _, p := range c.Prices {
			fmt.Fprintf(tw, "%s\t", p)
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for round := 0; round < s.Rounds(); round++ {
		headlines := s.HeadlinesFor(round)
		if len(headlines) == 0 {
			continue
		}
		fmt.Fprintf(w, "\nMonth %d\n", round+1)
		for i, h := range headlines {
			fmt.Fprintf(w, "  %d. %s\n", i+1, h.Text)
			for _, e := range h.Effects {
				fmt.Fprintf(w, "     %s %s\n", e.Commodity, e.Change)
			}
		}
	}
	return nil
}
