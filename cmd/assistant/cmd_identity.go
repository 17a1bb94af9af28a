package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Inspect the Identity Store's canonical documents",
}

var identityShowCmd = &cobra.Command{
	Use:   "show <identity|profile|preferences>",
	Short: "Print a canonical identity document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var err error
		switch args[0] {
		case "identity":
			d, e := runtime.Identity.Identity()
			err = e
			if e == nil {
				fmt.Print(d.Body)
			}
		case "profile":
			d, e := runtime.Identity.UserProfile()
			err = e
			if e == nil {
				fmt.Print(d.Body)
			}
		case "preferences":
			d, e := runtime.Identity.Preferences()
			err = e
			if e == nil {
				fmt.Print(d.Body)
			}
		default:
			fmt.Printf("unknown document %q (want identity|profile|preferences)\n", args[0])
			return nil
		}
		if err != nil {
			fmt.Println("read failed:", err)
		}
		return nil
	},
}

func init() {
	identityCmd.AddCommand(identityShowCmd)
}
