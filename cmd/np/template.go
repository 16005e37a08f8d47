package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nitroplanner/nitroplanner/internal/config"
	"github.com/nitroplanner/nitroplanner/internal/template"
)

func newTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Process template commands",
	}

	cmd.AddCommand(newTemplateImportCmd())
	cmd.AddCommand(newTemplateListCmd())
	cmd.AddCommand(newTemplateApplyCmd())
	return cmd
}

// templateFile is the YAML layout accepted by template import: the same
// shape as the templates section of the config file.
type templateFile struct {
	Templates []config.TemplateConfig `yaml:"templates"`
}

func loadTemplateFile(path string) ([]config.TemplateConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var tf templateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(tf.Templates) == 0 {
		return nil, fmt.Errorf("%s declares no templates", path)
	}
	return tf.Templates, nil
}

func newTemplateImportCmd() *cobra.Command {
	var (
		configPath string
		inactive   bool
	)

	cmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import process templates from a YAML file",
		Long:  "Saves every template in the file for the configured company. A template with the same name is replaced.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplateImport(cmd, configPath, args[0], !inactive)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to NitroPlanner config file")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "import templates as inactive")
	return cmd
}

func runTemplateImport(cmd *cobra.Command, configPath, path string, active bool) error {
	out := cmd.OutOrStdout()
	tcs, err := loadTemplateFile(path)
	if err != nil {
		return err
	}
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	company, err := defaultCompany(cfg, gormDB)
	if err != nil {
		return err
	}

	store := template.NewStore(gormDB)
	for _, tc := range tcs {
		t := template.FromConfig(company.ID, tc)
		t.IsActive = active
		saved, err := store.Save(cmd.Context(), t)
		if err != nil {
			return fmt.Errorf("import %q: %w", tc.Name, err)
		}
		fmt.Fprintf(out, "Imported template %q (%s, %d work units)\n", saved.Name, saved.ID, len(saved.WorkUnits))
	}
	return nil
}

func newTemplateListCmd() *cobra.Command {
	var (
		configPath string
		format     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List process templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplateList(cmd, configPath, format)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to NitroPlanner config file")
	addOutputFlag(cmd, &format)
	return cmd
}

func runTemplateList(cmd *cobra.Command, configPath, format string) error {
	out := cmd.OutOrStdout()
	asJSON, err := useJSON(out, format)
	if err != nil {
		return err
	}
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	company, err := defaultCompany(cfg, gormDB)
	if err != nil {
		return err
	}

	ts, err := template.NewStore(gormDB).List(cmd.Context(), company.ID)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(out, ts)
	}
	if len(ts) == 0 {
		fmt.Fprintln(out, "No templates.")
		return nil
	}
	tw := newTable(out)
	tw.AppendHeader(table.Row{"ID", "Name", "Type", "Work units", "Active"})
	for _, t := range ts {
		tw.AppendRow(table.Row{t.ID, t.Name, t.WorkUnitType, len(t.WorkUnits), t.IsActive})
	}
	tw.Render()
	return nil
}

func newTemplateApplyCmd() *cobra.Command {
	var (
		configPath string
		priority   string
		actor      string
	)

	cmd := &cobra.Command{
		Use:   "apply <template-id> <project-id>",
		Short: "Create a project's work units from a template",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplateApply(cmd, configPath, args[0], args[1], template.Customizations{DefaultPriority: priority}, actor)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to NitroPlanner config file")
	cmd.Flags().StringVar(&priority, "priority", "", "priority for every created work unit")
	cmd.Flags().StringVar(&actor, "actor", "", "user recorded as creator")
	return cmd
}

func runTemplateApply(cmd *cobra.Command, configPath, templateID, projectID string, c template.Customizations, actor string) error {
	out := cmd.OutOrStdout()
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	company, err := defaultCompany(cfg, gormDB)
	if err != nil {
		return err
	}

	inst, err := newService(cfg, gormDB).CreateFromTemplate(cmd.Context(), company.ID, projectID, templateID, c, actor)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Created %d work units from %q:\n", len(inst.WorkUnits), inst.Template.Name)
	for _, wu := range inst.WorkUnits {
		fmt.Fprintf(out, "  %s  %s (%s, %s)\n", wu.ID, wu.Name, wu.Priority, formatHours(wu.EstimatedHours))
	}
	return nil
}
