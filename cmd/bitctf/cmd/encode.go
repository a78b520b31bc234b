/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/hex"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/ssargent/bitctf/pkg/codec"
	"gopkg.in/yaml.v3"
)

func newEncodeCmd() *cobra.Command {
	encodeCmd := &cobra.Command{
		Use:   "encode [yaml value]",
		Short: "Encode a value into a record",
		Long: `Encode a value, written in YAML, into the bit layout of a schema.
Variant tags, sequence lengths and event header layouts are derived from the
value. The record is printed as hex unless --out is given.

Examples:
  bitctf encode --schema header.yaml '{id: 16, timestamp: 0x42}'
  bitctf encode --ref sched_switch --value-file event.yaml --out record.bin
  bitctf encode --ref sched_switch --value-file event.yaml --sample --out record.sample`,
		RunE: func(cmd *cobra.Command, args []string) error {
			decl, err := loadDeclaration(cmd)
			if err != nil {
				return err
			}
			value, err := readValue(cmd, args)
			if err != nil {
				return err
			}

			payload, err := codec.Encode(decl, value)
			if err != nil {
				return err
			}

			if asSample, _ := cmd.Flags().GetBool("sample"); asSample {
				order, err := byteOrderFlag(cmd)
				if err != nil {
					return err
				}
				if payload, err = codec.NewSampleCodec().Encode(order, 0, payload); err != nil {
					return err
				}
			}

			if out, _ := cmd.Flags().GetString("out"); out != "" {
				if err := os.WriteFile(out, payload, 0600); err != nil {
					return errors.Wrap(err, "failed to write output file")
				}
				loggerFrom(cmd).WithField("bytes", len(payload)).Infof("wrote %s", out)
				return nil
			}
			printf(cmd, "%s\n", hex.EncodeToString(payload))
			return nil
		},
	}

	addSchemaFlags(encodeCmd)
	encodeCmd.Flags().String("value-file", "", "Read the value from a YAML file")
	encodeCmd.Flags().String("out", "", "Write the record to a file instead of printing hex")
	encodeCmd.Flags().Bool("sample", false, "Wrap the record in a sample envelope")
	encodeCmd.Flags().String("byte-order", "", "Byte order recorded in the sample envelope (default from config)")
	return encodeCmd
}

func readValue(cmd *cobra.Command, args []string) (any, error) {
	var data []byte
	if path, _ := cmd.Flags().GetString("value-file"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read value file")
		}
		data = raw
	} else if len(args) > 0 {
		data = []byte(strings.Join(args, " "))
	} else {
		return nil, errors.New("a value or --value-file is required")
	}

	var value any
	if err := yaml.Unmarshal(data, &value); err != nil {
		return nil, errors.Wrap(err, "failed to parse value")
	}
	return value, nil
}
