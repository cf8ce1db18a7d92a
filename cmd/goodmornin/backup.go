package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/CarlEnstrom/Goodmornin/internal/storage"
)

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write all stored alarms as YAML (stdout when no file is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDevice(cmd.Context())
		if err != nil {
			return err
		}
		defer d.closer()

		alarms, err := d.store.LoadAll(cmd.Context())
		if err != nil {
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", args[0], err)
			}
			defer f.Close()
			w = f
		}
		return storage.WriteBackup(w, d.cfg.Device.ID, alarms)
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace all stored alarms with the ones in a YAML backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDevice(cmd.Context())
		if err != nil {
			return err
		}
		defer d.closer()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()

		b, err := storage.ReadBackup(f)
		if err != nil {
			return err
		}
		if err := b.CheckVersion(); err != nil {
			return err
		}

		e := d.engine(offline{}, offline{})
		e.Load(cmd.Context())
		n := e.Replace(cmd.Context(), b.Alarms)
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d alarms\n", n, len(b.Alarms))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)
}
