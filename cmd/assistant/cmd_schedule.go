package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"assistantcore/internal/schedule"
)

var scheduleTZ string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Parse schedule expressions",
}

var scheduleParseCmd = &cobra.Command{
	Use:   "parse <expression>",
	Short: "Parse a schedule expression into its canonical trigger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		trig, err := schedule.Parse(args[0], scheduleTZ)
		if err != nil {
			fmt.Println("error:", err)
			return nil
		}
		if trig == nil {
			fmt.Println("null (unschedulable)")
			return nil
		}
		fmt.Printf("kind=%s value=%q tz=%s\n", trig.Kind, trig.Value, trig.TZ)
		return nil
	},
}

func init() {
	scheduleParseCmd.Flags().StringVar(&scheduleTZ, "tz", "UTC", "IANA timezone for the trigger")
	scheduleCmd.AddCommand(scheduleParseCmd)
}
