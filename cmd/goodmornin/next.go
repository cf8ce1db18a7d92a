package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Print the next fire time of every stored alarm",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDevice(cmd.Context())
		if err != nil {
			return err
		}
		defer d.closer()

		e := d.engine(offline{}, offline{})
		e.Load(cmd.Context())

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tLABEL\tENABLED\tNEXT")
		for _, v := range e.Alarms() {
			next := "-"
			if v.NextFireUnix != 0 {
				next = time.Unix(v.NextFireUnix, 0).In(d.loc).Format("Mon 2006-01-02 15:04")
			}
			fmt.Fprintf(tw, "%d\t%s\t%t\t%s\n", v.ID, v.Label, v.Enabled, next)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(nextCmd)
}
