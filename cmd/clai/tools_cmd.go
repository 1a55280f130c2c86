package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Mmeadows3/clai/internal/catalog"
	"github.com/Mmeadows3/clai/internal/config"
	"github.com/Mmeadows3/clai/internal/core"
	"github.com/Mmeadows3/clai/internal/definition"
	"github.com/Mmeadows3/clai/internal/mount"
	"github.com/Mmeadows3/clai/internal/render"
)

// newToolsCmd creates the tools command group
func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect tool definitions without starting the server",
	}

	cmd.AddCommand(newToolsListCmd())
	cmd.AddCommand(newToolsInfoCmd())
	return cmd
}

func newToolsListCmd() *cobra.Command {
	var (
		configPath  string
		defsDirFlag string
		jsonOut     bool
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tools that would register at startup",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := mountCatalog(configPath, defsDirFlag)
			if err != nil {
				return err
			}
			return listTools(cat, os.Stdout, jsonOut, verbose)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to clai.yaml config file")
	cmd.Flags().StringVar(&defsDirFlag, "definitions-dir", "", "Directory containing tool definitions (overrides config file)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Show kind and description columns")

	return cmd
}

func newToolsInfoCmd() *cobra.Command {
	var (
		configPath  string
		defsDirFlag string
		jsonOut     bool
	)

	cmd := &cobra.Command{
		Use:   "info TOOL-NAME",
		Short: "Show one tool definition in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := mountCatalog(configPath, defsDirFlag)
			if err != nil {
				return err
			}
			return toolInfo(cat, args[0], os.Stdout, jsonOut)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to clai.yaml config file")
	cmd.Flags().StringVar(&defsDirFlag, "definitions-dir", "", "Directory containing tool definitions (overrides config file)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}

// mountCatalog runs the load+mount pipeline locally, without serving.
func mountCatalog(configPath, defsDirFlag string) (*catalog.Catalog, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if defsDirFlag != "" {
		if err := cfg.SetDefinitionsDir(defsDirFlag); err != nil {
			return nil, err
		}
	}

	results, err := definition.Load(cfg.DefinitionsDir)
	if err != nil {
		return nil, err
	}

	cat := catalog.New()
	mounter := mount.NewMounter(core.NewProcessRunner(cfg.Timeout))
	mounter.MountAll(results, cat)
	return cat, nil
}

// listTools lists mounted tools with the requested output format
func listTools(cat *catalog.Catalog, w io.Writer, jsonOut, verbose bool) error {
	contracts := make([]*catalog.Contract, 0, cat.Len())
	for contract := range cat.All() {
		contracts = append(contracts, contract)
	}

	if jsonOut {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(contracts)
	}

	if len(contracts) == 0 {
		core.MustFprintf(w, "No tools mounted.\n")
		core.MustFprintf(w, "Add TOOL.yaml definitions to the definitions directory.\n")
		return nil
	}

	if verbose {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

		core.MustFprintf(tw, "NAME\tKIND\tDESCRIPTION\n")
		core.MustFprintf(tw, "----\t----\t-----------\n")

		for _, contract := range contracts {
			description := contract.Description
			if len(description) > 60 {
				description = description[:57] + "..."
			}
			core.MustFprintf(tw, "%s\t%s\t%s\n", contract.Name, contract.Kind, description)
		}

		return tw.Flush()
	}

	core.MustFprintf(w, "%s\n", render.Header(fmt.Sprintf("%d tools mounted, %d failed", cat.RegisteredCount(), cat.FailedCount())))
	for _, contract := range contracts {
		core.MustFprintf(w, "%s %s\n", contract.Name, render.Kind(fmt.Sprintf("(%s)", contract.Kind)))
	}

	return nil
}

// toolInfo shows one mounted tool in detail
func toolInfo(cat *catalog.Catalog, name string, w io.Writer, jsonOut bool) error {
	contract, ok := cat.Lookup(name)
	if !ok {
		return fmt.Errorf("tool %q is not mounted", name)
	}

	if jsonOut {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(contract)
	}

	core.MustFprintf(w, "Name:        %s\n", contract.Name)
	core.MustFprintf(w, "Kind:        %s\n", contract.Kind)
	if contract.Version != "" {
		core.MustFprintf(w, "Version:     %s\n", contract.Version)
	}
	core.MustFprintf(w, "Description: %s\n", contract.Description)
	core.MustFprintf(w, "Source:      %s\n", contract.SourcePath)

	if len(contract.Inputs) > 0 {
		core.MustFprintf(w, "\nInputs:\n")
		for _, param := range contract.Inputs {
			required := ""
			if param.Required {
				required = " (required)"
			}
			core.MustFprintf(w, "  %s %s%s  %s\n", param.Name, param.Type, required, param.Description)
		}
	}

	// Prompt tools carry a template worth reading; render it.
	if contract.Kind == definition.KindPromptExtension {
		raw, err := readDefinition(contract.SourcePath)
		if err == nil && raw.Template != "" {
			core.MustFprintf(w, "\n%s\n%s", render.Header("Template:"), render.Markdown(raw.Template))
		}
	}

	return nil
}

// readDefinition re-reads one definition file for display purposes.
func readDefinition(sourcePath string) (*definition.RawDefinition, error) {
	data, err := os.ReadFile(sourcePath) // #nosec G304 -- path comes from a mounted definition
	if err != nil {
		return nil, err
	}
	var raw definition.RawDefinition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}
