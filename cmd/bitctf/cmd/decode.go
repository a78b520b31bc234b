/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/ssargent/bitctf/pkg/codec"
	"github.com/ssargent/bitctf/pkg/schema"
)

type decodeResult struct {
	Bits  int `json:"bits" yaml:"bits"`
	Value any `json:"value" yaml:"value"`
}

func newDecodeCmd() *cobra.Command {
	decodeCmd := &cobra.Command{
		Use:   "decode [hex payload]",
		Short: "Decode one record against a schema",
		Long: `Decode one bit-packed record against a schema document or a schema
stored in the registry and print the decoded values.

The payload is given as hex arguments, as a raw file (--file) or as an encoded
sample (--sample), which carries its own byte order and bit offset.

Examples:
  bitctf decode --schema sched_switch.yaml 80000042...
  bitctf decode --ref sched_switch --file record.bin --bit-offset 3
  bitctf decode --ref sched_switch --sample record.sample -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			decl, err := loadDeclaration(cmd)
			if err != nil {
				return err
			}
			sample, err := decodeInput(cmd, args)
			if err != nil {
				return err
			}

			def, bits, err := sample.Decode(decl, nil)
			if err != nil {
				return errors.Wrap(err, "failed to decode payload")
			}
			loggerFrom(cmd).WithField("bits", bits).Debug("record decoded")

			if format == formatText {
				printf(cmd, "%s\n", def)
				return nil
			}
			return writeOutput(cmd.OutOrStdout(), format, decodeResult{Bits: bits, Value: schema.Export(def)})
		},
	}

	addSchemaFlags(decodeCmd)
	addOutputFlag(decodeCmd, formatYAML)
	decodeCmd.Flags().StringP("file", "f", "", "Read the raw payload from a file")
	decodeCmd.Flags().String("sample", "", "Read an encoded sample from a file")
	decodeCmd.Flags().String("byte-order", "", "Payload byte order, be or le (default from config)")
	decodeCmd.Flags().Int("bit-offset", 0, "Bit at which the record starts")
	decodeCmd.MarkFlagsMutuallyExclusive("file", "sample")
	return decodeCmd
}

// decodeInput builds the sample to decode from the command's input flags
func decodeInput(cmd *cobra.Command, args []string) (*codec.Sample, error) {
	if path, _ := cmd.Flags().GetString("sample"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read sample file")
		}
		sample, err := codec.NewSampleCodec().Decode(data)
		if err != nil {
			return nil, err
		}
		return sample, sample.Validate()
	}

	payload, err := readPayload(cmd, args)
	if err != nil {
		return nil, err
	}
	order, err := byteOrderFlag(cmd)
	if err != nil {
		return nil, err
	}
	offset, _ := cmd.Flags().GetInt("bit-offset")
	return codec.NewSample(order, offset, payload)
}
