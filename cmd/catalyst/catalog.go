package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/descriptor"
)

func newCatalogCommand() *cobra.Command {
	var catalogDir string

	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and validate resource descriptors",
		Long: `Inspect the resource descriptors that drive validation, diffing and
reconciliation, and validate descriptor files before shipping them.

Examples:
  # List the builtin resources
  catalyst catalog list

  # Show one descriptor
  catalyst catalog show global_pool

  # Validate a directory of descriptor files
  catalyst catalog validate ./descriptors`,
	}
	catalogCmd.PersistentFlags().StringVar(&catalogDir, "catalog-dir", "",
		"Directory of descriptor files extending the builtin catalog")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List resources and their tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog(catalogDir)
			if err != nil {
				return err
			}
			return writeCatalogList(cmd, catalog)
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <resource>",
		Short: "Print one descriptor as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog(catalogDir)
			if err != nil {
				return err
			}
			name := strings.TrimSuffix(args[0], descriptor.InfoSuffix)
			d, ok := catalog.Get(name)
			if !ok {
				return fmt.Errorf("unknown resource %q", args[0])
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(d); err != nil {
				return fmt.Errorf("failed to encode descriptor: %w", err)
			}
			return enc.Close()
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate <dir>",
		Short: "Validate descriptor files offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := descriptor.NewCatalog()
			if err := catalog.LoadDir(args[0]); err != nil {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Validation: FAILED")
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  [ERROR] %v\n", err)
				os.Exit(1)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Validation: SUCCESS (%d descriptors)\n", len(catalog.Names()))
			return nil
		},
	}

	catalogCmd.AddCommand(listCmd, showCmd, validateCmd)
	return catalogCmd
}

func writeCatalogList(cmd *cobra.Command, catalog *descriptor.Catalog) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RESOURCE\tFAMILY\tSTATES\tOPERATIONS")
	for _, name := range catalog.Names() {
		d, _ := catalog.Get(name)
		ops := make([]string, 0, len(d.Operations))
		for kind := range d.Operations {
			ops = append(ops, kind)
		}
		sort.Strings(ops)
		states := strings.Join(d.States, ",")
		if d.IsReadOnly() {
			states = descriptor.StateQuery
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, d.Family, states, strings.Join(ops, ","))
	}
	return w.Flush()
}
