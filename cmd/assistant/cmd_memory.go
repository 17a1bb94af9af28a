package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"assistantcore/internal/memory"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Record exchanges and inspect the hierarchical memory",
}

var memoryRecordCmd = &cobra.Command{
	Use:   "record <user-text> <agent-text>",
	Short: "Record a user/agent exchange",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := runtime.Memory.RecordExchange(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var recallLimit int

var memoryRecallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Recall facts or semantic memories matching a query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := runtime.Memory.Recall(args[0], recallLimit)
		if err != nil {
			fmt.Println("recall failed:", err)
			return nil
		}
		fmt.Printf("source: %s\n", result.Source)
		for _, f := range result.Facts {
			fmt.Printf("  [fact:%s] %s (importance=%.2f)\n", f.Type, f.Content, f.Importance)
		}
		for _, r := range result.Semantic {
			fmt.Printf("  [semantic] %s (score=%.3f)\n", r.Content, r.Score)
		}
		return nil
	},
}

var contextMaxTokens int

var memoryContextCmd = &cobra.Command{
	Use:   "context",
	Short: "Render the layered context string that would be injected into a prompt",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := runtime.Memory.ContextForPrompt(memory.ContextOptions{MaxTokens: contextMaxTokens})
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	},
}

func init() {
	memoryRecallCmd.Flags().IntVar(&recallLimit, "limit", 10, "maximum number of results")
	memoryContextCmd.Flags().IntVar(&contextMaxTokens, "max-tokens", 0, "token budget (0 = pressure-table default)")

	memoryCmd.AddCommand(memoryRecordCmd)
	memoryCmd.AddCommand(memoryRecallCmd)
	memoryCmd.AddCommand(memoryContextCmd)
}
