package cmd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/ssargent/bitctf/pkg/bitbuf"
	"github.com/ssargent/bitctf/pkg/ctf"
	"github.com/ssargent/bitctf/pkg/registry"
	"github.com/ssargent/bitctf/pkg/schema"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by --output
const (
	formatYAML = "yaml"
	formatJSON = "json"
	formatText = "text"
)

// addSchemaFlags registers the flags selecting the schema to work with
func addSchemaFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("schema", "s", "", "Schema document (YAML file)")
	cmd.Flags().StringP("ref", "r", "", "Schema id or name in the registry")
	cmd.Flags().Bool("generic-headers", false, "Decode event headers through the generic struct instead of the fast path")
	cmd.MarkFlagsMutuallyExclusive("schema", "ref")
}

func addOutputFlag(cmd *cobra.Command, def string) {
	cmd.Flags().StringP("output", "o", def, "Output format: yaml, json or text")
}

func compileOptions(cmd *cobra.Command) []schema.Option {
	opts := []schema.Option{schema.WithMaxSequence(configFrom(cmd).Decode.MaxSequence)}
	if generic, _ := cmd.Flags().GetBool("generic-headers"); generic {
		opts = append(opts, schema.WithGenericHeaders())
	}
	return opts
}

// openRegistry opens the registry under the configured data directory
func openRegistry(cmd *cobra.Command, opts ...schema.Option) (*registry.Registry, error) {
	dir := filepath.Join(configFrom(cmd).DataDir, "registry")
	reg, err := getContainer().OpenRegistry(dir, registry.WithCompileOptions(opts...))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open schema registry")
	}
	return reg, nil
}

// loadDeclaration compiles the schema named by --schema or --ref
func loadDeclaration(cmd *cobra.Command) (ctf.Declaration, error) {
	path, _ := cmd.Flags().GetString("schema")
	ref, _ := cmd.Flags().GetString("ref")
	opts := compileOptions(cmd)

	switch {
	case path != "":
		doc, err := schema.LoadFile(path)
		if err != nil {
			return nil, err
		}
		return schema.Compile(doc, opts...)
	case ref != "":
		reg, err := openRegistry(cmd, opts...)
		if err != nil {
			return nil, err
		}
		defer reg.Close()

		id, err := reg.Resolve(ref)
		if err != nil {
			return nil, err
		}
		return reg.Declaration(id)
	}
	return nil, errors.New("one of --schema or --ref is required")
}

// byteOrderFlag returns --byte-order, or the configured default
func byteOrderFlag(cmd *cobra.Command) (bitbuf.ByteOrder, error) {
	v, _ := cmd.Flags().GetString("byte-order")
	if v == "" {
		return configFrom(cmd).Decode.ByteOrder, nil
	}
	return bitbuf.ParseByteOrder(v)
}

// parseHex accepts hex with optional spaces, colons and a 0x prefix
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "").Replace(s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "invalid hex payload")
	}
	return data, nil
}

// readPayload takes the payload from --file or from hex arguments
func readPayload(cmd *cobra.Command, args []string) ([]byte, error) {
	file, _ := cmd.Flags().GetString("file")
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read payload file")
		}
		return data, nil
	}
	if len(args) == 0 {
		return nil, errors.New("a hex payload or --file is required")
	}
	return parseHex(strings.Join(args, ""))
}

// writeOutput prints v as YAML or JSON. Text output is handled by the callers.
func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "failed to write yaml")
		}
		return enc.Close()
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "failed to write json")
		}
		return nil
	}
	return errors.Newf("unknown output format %q", format)
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("output")
	switch format {
	case formatYAML, formatJSON, formatText:
		return format, nil
	}
	return "", errors.Newf("unknown output format %q", format)
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
