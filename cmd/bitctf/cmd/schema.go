/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/ssargent/bitctf/pkg/schema"
)

func newSchemaCmd() *cobra.Command {
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage schemas in the registry",
		Long: `Store, inspect and remove schema documents in the local registry.
Stored schemas can be used by name or id with --ref and through the REST API.`,
	}

	schemaCmd.AddCommand(
		newSchemaPutCmd(),
		newSchemaUpdateCmd(),
		newSchemaGetCmd(),
		newSchemaListCmd(),
		newSchemaDeleteCmd(),
	)
	return schemaCmd
}

func newSchemaPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <file>",
		Short: "Validate and store a schema document",
		Long: `Validate and store a schema document. A document with the name of a
stored schema takes over the name.

Example:
  bitctf schema put sched_switch.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, "failed to read schema file")
			}
			reg, err := openRegistry(cmd)
			if err != nil {
				return err
			}
			defer reg.Close()

			id, err := reg.Put(data)
			if err != nil {
				return err
			}
			printf(cmd, "%s\n", id)
			return nil
		},
	}
}

func newSchemaUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <id or name> <file>",
		Short: "Replace a stored schema document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return errors.Wrap(err, "failed to read schema file")
			}
			reg, err := openRegistry(cmd)
			if err != nil {
				return err
			}
			defer reg.Close()

			id, err := reg.Resolve(args[0])
			if err != nil {
				return err
			}
			if err := reg.Update(id, data); err != nil {
				return err
			}
			printf(cmd, "%s\n", id)
			return nil
		},
	}
}

func newSchemaGetCmd() *cobra.Command {
	getCmd := &cobra.Command{
		Use:   "get <id or name>",
		Short: "Print a stored schema document",
		Long: `Print a stored schema document as it was stored, or with --normalized
as the compiled declaration tree written back out with every byte order
and alignment explicit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry(cmd)
			if err != nil {
				return err
			}
			defer reg.Close()

			id, err := reg.Resolve(args[0])
			if err != nil {
				return err
			}
			entry, err := reg.Get(id)
			if err != nil {
				return err
			}

			if normalized, _ := cmd.Flags().GetBool("normalized"); !normalized {
				_, err = cmd.OutOrStdout().Write(entry.Raw)
				return err
			}

			decl, err := reg.Declaration(id)
			if err != nil {
				return err
			}
			root, err := schema.Describe(decl)
			if err != nil {
				return err
			}
			doc := &schema.Document{
				Name:        entry.Document.Name,
				Description: entry.Document.Description,
				ByteOrder:   entry.Document.ByteOrder,
				Root:        root,
			}
			data, err := doc.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	getCmd.Flags().Bool("normalized", false, "Print the compiled schema with every default spelled out")
	return getCmd
}

func newSchemaListCmd() *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			reg, err := openRegistry(cmd)
			if err != nil {
				return err
			}
			defer reg.Close()

			schemas, err := reg.List()
			if err != nil {
				return err
			}
			if format != formatText {
				return writeOutput(cmd.OutOrStdout(), format, schemas)
			}
			for _, s := range schemas {
				printf(cmd, "%s\t%s\t%s\n", s.ID, s.Name, s.Description)
			}
			return nil
		},
	}
	addOutputFlag(listCmd, formatText)
	return listCmd
}

func newSchemaDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id or name>",
		Short: "Remove a stored schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry(cmd)
			if err != nil {
				return err
			}
			defer reg.Close()

			id, err := reg.Resolve(args[0])
			if err != nil {
				return err
			}
			if err := reg.Delete(id); err != nil {
				return err
			}
			printf(cmd, "deleted %s\n", id)
			return nil
		},
	}
}
