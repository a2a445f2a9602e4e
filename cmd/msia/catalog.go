package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pepeccz/msi-a-sub001/internal/catalog"
	"github.com/pepeccz/msi-a-sub001/internal/collection"
	"github.com/pepeccz/msi-a-sub001/internal/models"
)

func newCatalogCmd(cfg Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Element catalog commands",
	}

	cmd.AddCommand(newCatalogValidateCmd(cfg))
	cmd.AddCommand(newCatalogInspectCmd(cfg))
	return cmd
}

func newCatalogValidateCmd(cfg Config) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the catalog for unknown types, duplicate keys, dangling parents and cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(path)
			if err != nil {
				return err
			}
			fields := 0
			for _, e := range cat.Elements {
				fields += len(e.Fields)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d elements, %d fields, OK\n", path, len(cat.Elements), fields)
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "catalog", "c", cfg.CatalogPath, "path to the element catalog")
	return cmd
}

func newCatalogInspectCmd(cfg Config) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "inspect [CODE...]",
		Short: "Show the collection mode and first question block for each element",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(path)
			if err != nil {
				return err
			}
			codes := args
			if len(codes) == 0 {
				codes = cat.Codes()
			}
			for _, code := range codes {
				e, err := cat.Element(code)
				if err != nil {
					return err
				}
				printElement(cmd, e)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "catalog", "c", cfg.CatalogPath, "path to the element catalog")
	return cmd
}

func printElement(cmd *cobra.Command, e catalog.Element) {
	out := cmd.OutOrStdout()
	collected := models.CollectedValues{}
	mode := collection.Classify(e.Fields, collected)
	phase := collection.Render(mode, e.Fields, collected)

	fmt.Fprintf(out, "%s  %s\n", e.Code, e.Name)
	fmt.Fprintf(out, "  fields: %d  mode: %s  dependency depth: %d\n",
		len(e.Fields), mode, collection.DependencyComplexity(e.Fields, collected))
	for _, f := range e.Fields {
		marker := " "
		if f.Required {
			marker = "*"
		}
		line := fmt.Sprintf("  %s %-24s %-8s", marker, f.Key, f.Type)
		if f.IsConditional() {
			line += " <- " + f.DependsOn.ParentKey
		}
		fmt.Fprintln(out, strings.TrimRight(line, " "))
	}
	if prompt := phase.Prompt(); prompt != "" {
		fmt.Fprintln(out, "  first turn:")
		for _, l := range strings.Split(prompt, "\n") {
			fmt.Fprintf(out, "    %s\n", l)
		}
	}
	fmt.Fprintln(out)
}
