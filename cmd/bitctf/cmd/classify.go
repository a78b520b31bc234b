/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/ssargent/bitctf/pkg/schema"
)

func newClassifyCmd() *cobra.Command {
	classifyCmd := &cobra.Command{
		Use:   "classify",
		Short: "Report the event headers a schema contains",
		Long: `Walk a schema and report every event header in it: declared event_header
nodes and structs with the exact compact or large header layout, which decode
through the fast path.

With --canonical, print the generic document of a header layout instead.

Examples:
  bitctf classify --schema sched_switch.yaml
  bitctf classify --canonical large`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind, _ := cmd.Flags().GetString("canonical"); kind != "" {
				k, err := schema.ParseHeaderKind(kind)
				if err != nil {
					return err
				}
				doc, err := schema.CanonicalHeader(k)
				if err != nil {
					return err
				}
				data, err := doc.Marshal()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			decl, err := loadDeclaration(cmd)
			if err != nil {
				return err
			}
			matches := schema.FindEventHeaders(decl)

			if format != formatText {
				if matches == nil {
					matches = []schema.HeaderMatch{}
				}
				return writeOutput(cmd.OutOrStdout(), format, matches)
			}
			if len(matches) == 0 {
				printf(cmd, "no event headers\n")
				return nil
			}
			for _, m := range matches {
				path := m.Path
				if path == "" {
					path = "(root)"
				}
				how := "generic"
				if m.Specialized {
					how = "fast path"
				}
				printf(cmd, "%s\t%s\t%s\n", path, m.Kind, how)
			}
			return nil
		},
	}

	addSchemaFlags(classifyCmd)
	addOutputFlag(classifyCmd, formatText)
	classifyCmd.Flags().String("canonical", "", "Print the canonical document of a header kind (compact or large)")
	return classifyCmd
}
