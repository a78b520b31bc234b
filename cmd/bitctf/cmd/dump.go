/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/hex"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/ssargent/bitctf/pkg/capture"
	"github.com/ssargent/bitctf/pkg/ctf"
	"github.com/ssargent/bitctf/pkg/schema"
)

type dumpRecord struct {
	Offset     int64     `json:"offset" yaml:"offset"`
	CapturedAt time.Time `json:"captured_at" yaml:"captured_at"`
	ByteOrder  string    `json:"byte_order" yaml:"byte_order"`
	BitOffset  uint32    `json:"bit_offset" yaml:"bit_offset"`
	Size       uint32    `json:"size" yaml:"size"`
	PayloadHex string    `json:"payload_hex,omitempty" yaml:"payload_hex,omitempty"`
	Bits       int       `json:"bits,omitempty" yaml:"bits,omitempty"`
	Value      any       `json:"value,omitempty" yaml:"value,omitempty"`
}

func newDumpCmd() *cobra.Command {
	dumpCmd := &cobra.Command{
		Use:   "dump <log file>",
		Short: "Print the records of a sample log",
		Long: `Print the records of a sample log. With --schema or --ref every record is
decoded; otherwise its payload is printed as hex.

Examples:
  bitctf dump events.log
  bitctf dump events.log --ref sched_switch -o json
  bitctf dump events.log --start 4096 --limit 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			start, _ := cmd.Flags().GetInt64("start")
			limit, _ := cmd.Flags().GetInt("limit")

			var decl ctf.Declaration
			if cmd.Flags().Changed("schema") || cmd.Flags().Changed("ref") {
				if decl, err = loadDeclaration(cmd); err != nil {
					return err
				}
			}

			r, err := capture.NewReader(capture.ReaderConfig{FilePath: args[0], StartOffset: start})
			if err != nil {
				return err
			}
			defer r.Close()

			it := r.Iterator()
			defer it.Close()

			n := 0
			for (limit <= 0 || n < limit) && it.Next() {
				rec, def, err := dumpSample(it, decl)
				if err != nil {
					return err
				}
				if err := printRecord(cmd, format, rec, def); err != nil {
					return err
				}
				n++
			}
			if err := it.Err(); err != nil {
				return errors.Wrapf(err, "after %d records", n)
			}
			loggerFrom(cmd).WithField("records", n).Debug("dump complete")
			return nil
		},
	}

	addSchemaFlags(dumpCmd)
	addOutputFlag(dumpCmd, formatText)
	dumpCmd.Flags().Int64("start", 0, "Offset of the first record")
	dumpCmd.Flags().Int("limit", 0, "Stop after this many records (0 = all)")
	return dumpCmd
}

func dumpSample(it capture.SampleIterator, decl ctf.Declaration) (dumpRecord, ctf.Definition, error) {
	s := it.Sample()
	rec := dumpRecord{
		Offset:     it.Offset(),
		CapturedAt: s.Time().UTC(),
		ByteOrder:  s.ByteOrder().String(),
		BitOffset:  s.BitOffset,
		Size:       s.Size,
	}
	if decl == nil {
		rec.PayloadHex = hex.EncodeToString(s.Payload)
		return rec, nil, nil
	}
	def, bits, err := s.Decode(decl, nil)
	if err != nil {
		return rec, nil, errors.Wrapf(err, "failed to decode record at offset %d", rec.Offset)
	}
	rec.Bits = bits
	rec.Value = schema.Export(def)
	return rec, def, nil
}

func printRecord(cmd *cobra.Command, format string, rec dumpRecord, def ctf.Definition) error {
	if format != formatText {
		return writeOutput(cmd.OutOrStdout(), format, rec)
	}
	body := rec.PayloadHex
	if def != nil {
		body = def.String()
	}
	printf(cmd, "%d\t%s\t%s+%d\t%s\n", rec.Offset, rec.CapturedAt.Format(time.RFC3339Nano), rec.ByteOrder, rec.BitOffset, body)
	return nil
}
