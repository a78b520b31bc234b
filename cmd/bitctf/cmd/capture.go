/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/ssargent/bitctf/pkg/capture"
)

func newCaptureCmd() *cobra.Command {
	captureCmd := &cobra.Command{
		Use:   "capture <log file> [hex payload...]",
		Short: "Append records to a sample log",
		Long: `Append records to a sample log, creating it if needed. Each hex argument
is one record; --file appends the contents of a file as a single record.
Every record is stored with the byte order and bit offset given.

Examples:
  bitctf capture events.log 80000042 f8000008ae00000000000003e8
  bitctf capture events.log --file record.bin --byte-order le --bit-offset 4`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := byteOrderFlag(cmd)
			if err != nil {
				return err
			}
			offset, _ := cmd.Flags().GetInt("bit-offset")
			fsync, _ := cmd.Flags().GetDuration("fsync-interval")

			var payloads [][]byte
			if file, _ := cmd.Flags().GetString("file"); file != "" {
				p, err := readPayload(cmd, nil)
				if err != nil {
					return err
				}
				payloads = append(payloads, p)
			}
			for _, arg := range args[1:] {
				p, err := parseHex(arg)
				if err != nil {
					return err
				}
				payloads = append(payloads, p)
			}
			if len(payloads) == 0 {
				return cmd.Usage()
			}

			w, err := capture.NewWriter(capture.WriterConfig{FilePath: args[0], FsyncInterval: fsync})
			if err != nil {
				return err
			}
			defer w.Close()

			for _, p := range payloads {
				at, err := w.Append(order, offset, p)
				if err != nil {
					return err
				}
				printf(cmd, "%d\t%d bytes\n", at, len(p))
			}
			loggerFrom(cmd).WithField("records", len(payloads)).Debugf("appended to %s", w.Path())
			return w.Close()
		},
	}

	captureCmd.Flags().StringP("file", "f", "", "Append the contents of a file as one record")
	captureCmd.Flags().String("byte-order", "", "Payload byte order, be or le (default from config)")
	captureCmd.Flags().Int("bit-offset", 0, "Bit at which each record starts")
	captureCmd.Flags().Duration("fsync-interval", time.Duration(0), "Fsync interval, 0 syncs after every record")
	return captureCmd
}
