package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"assistantcore/internal/types"
)

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Search and inspect the Facts Store",
}

var (
	factsSearchType  string
	factsSearchLimit int
	factsMinImportance float64
)

var factsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Substring search over fact content and context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var typeFilter types.FactType
		if factsSearchType != "" {
			typeFilter = types.FactType(factsSearchType)
			if !types.ValidFactType(typeFilter) {
				fmt.Printf("invalid fact type %q\n", factsSearchType)
				return nil
			}
		}
		hits, err := runtime.Facts.Search(args[0], typeFilter, factsSearchLimit, factsMinImportance)
		if err != nil {
			fmt.Println("search failed:", err)
			return nil
		}
		if len(hits) == 0 {
			fmt.Println("no facts found")
			return nil
		}
		for _, f := range hits {
			fmt.Printf("[%s] %s (importance=%.2f, access_count=%d)\n", f.Type, f.Content, f.Importance, f.AccessCount)
		}
		return nil
	},
}

var factsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the Facts Store: totals, per-type counts, top accessed",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := runtime.Facts.GetStats()
		if err != nil {
			fmt.Println("stats failed:", err)
			return nil
		}
		fmt.Printf("total: %d\n", stats.Total)
		fmt.Printf("avg_importance: %.3f\n", stats.AvgImportance)
		fmt.Printf("latest: %s\n", stats.LatestTimestamp.Format("2006-01-02T15:04:05Z07:00"))
		for _, t := range types.AllFactTypes {
			if n := stats.PerTypeCounts[t]; n > 0 {
				fmt.Printf("  %s: %d\n", t, n)
			}
		}
		fmt.Println("top accessed:")
		for _, f := range stats.TopAccessed {
			fmt.Printf("  [%s] %s (access_count=%d)\n", f.Type, f.Content, f.AccessCount)
		}
		return nil
	},
}

func init() {
	factsSearchCmd.Flags().StringVar(&factsSearchType, "type", "", "restrict to a fact type")
	factsSearchCmd.Flags().IntVar(&factsSearchLimit, "limit", 20, "maximum number of results")
	factsSearchCmd.Flags().Float64Var(&factsMinImportance, "min-importance", 0, "minimum importance threshold")

	factsCmd.AddCommand(factsSearchCmd)
	factsCmd.AddCommand(factsStatsCmd)
}
