package cmd

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/conneroisu/casefiler/internal/forms"
	"github.com/conneroisu/casefiler/internal/templates"
	"github.com/spf13/cobra"
)

var templateCmd = &cobra.Command{
	Use:     "template",
	Aliases: []string{"t", "templates"},
	Short:   "Manage folder structure templates",
	Long: `List, inspect, validate, preview, import, export and delete the templates
that decide the folder structure evidence is filed under.

Examples:
  casefiler template list
  casefiler template show default_forensic -o yaml
  casefiler template validate agency.json
  casefiler template preview agency_layout -f case.yaml
  casefiler template import agency.json --overwrite
  casefiler template export agency_layout agency.yaml
  casefiler template export --all all.json
  casefiler template fields`,
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List system and user templates",
	Args:  cobra.NoArgs,
	RunE:  runTemplateList,
}

var templateShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a template definition",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateShow,
}

var templateValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a template file without installing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateValidate,
}

var templatePreviewCmd = &cobra.Command{
	Use:   "preview <id>",
	Short: "Show the folder path a template builds",
	Long: `Render a template against a case form. Without a form the built-in sample
case is used.`,
	Args: cobra.ExactArgs(1),
	RunE: runTemplatePreview,
}

var templateImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Validate and install the templates in a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateImport,
}

var templateExportCmd = &cobra.Command{
	Use:   "export [id] <dest>",
	Short: "Export a template, or all user templates, to a file",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runTemplateExport,
}

var templateDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a user template (a backup is taken first)",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateDelete,
}

var templateFieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List the placeholders patterns may use",
	Args:  cobra.NoArgs,
	RunE:  runTemplateFields,
}

var templateCleanupCmd = &cobra.Command{
	Use:   "cleanup-backups",
	Short: "Remove old template backups",
	Args:  cobra.NoArgs,
	RunE:  runTemplateCleanup,
}

var (
	templateFlags     *StandardFlags
	templatePreviewFm *FormFlags
	templateOverwrite bool
	templateExportAll bool
	templateKeep      int
)

func init() {
	rootCmd.AddCommand(templateCmd)
	templateCmd.AddCommand(templateListCmd, templateShowCmd, templateValidateCmd, templatePreviewCmd,
		templateImportCmd, templateExportCmd, templateDeleteCmd, templateFieldsCmd, templateCleanupCmd)

	// One output flag set shared by every subcommand.
	templateFlags = &StandardFlags{}
	templateCmd.PersistentFlags().StringVarP(&templateFlags.OutputFormat, "output", "o", "table",
		"Output format (table|json|yaml)")
	templateCmd.PersistentFlags().BoolVarP(&templateFlags.Quiet, "quiet", "q", false, "Suppress output")

	templatePreviewFm = AddFormFlags(templatePreviewCmd)
	templateImportCmd.Flags().BoolVar(&templateOverwrite, "overwrite", false, "Replace templates with the same id")
	templateExportCmd.Flags().BoolVar(&templateExportAll, "all", false, "Export every user template")
	templateCleanupCmd.Flags().IntVar(&templateKeep, "keep", templates.DefaultBackupsKept, "Backups to keep")
}

func openTemplates(cmd *cobra.Command) (*app, *templates.Manager, error) {
	a, err := newApp(cmd, templateFlags)
	if err != nil {
		return nil, nil, err
	}
	m, err := a.templates()
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, m, nil
}

func runTemplateList(cmd *cobra.Command, _ []string) error {
	a, m, err := openTemplates(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	all := m.All()
	type row struct {
		ID          string `json:"id" yaml:"id"`
		Name        string `json:"name" yaml:"name"`
		Source      string `json:"source" yaml:"source"`
		Levels      int    `json:"levels" yaml:"levels"`
		Description string `json:"description,omitempty" yaml:"description,omitempty"`
	}
	rows := make([]row, 0, len(all))
	for _, info := range all {
		rows = append(rows, row{
			ID:          info.ID,
			Name:        info.Template.Name,
			Source:      string(info.Source),
			Levels:      len(info.Template.Structure.Levels),
			Description: info.Template.Description,
		})
	}
	return render(a.out, templateFlags.OutputFormat, rows, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "ID\tNAME\tSOURCE\tLEVELS")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", r.ID, r.Name, r.Source, r.Levels)
		}
	})
}

func runTemplateShow(cmd *cobra.Command, args []string) error {
	a, m, err := openTemplates(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	info, err := m.Get(args[0])
	if err != nil {
		return err
	}
	// The table view is the YAML document; patterns read best that way.
	return render(a.out, templateFlags.OutputFormat, info, nil)
}

func runTemplateValidate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, templateFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	report := templates.NewValidator().ValidateFile(args[0])
	err = render(a.out, templateFlags.OutputFormat, report, func(tw *tabwriter.Writer) {
		for _, issue := range report.Issues {
			fmt.Fprintln(tw, issue.String())
		}
		if report.Valid() {
			fmt.Fprintf(tw, "%s is valid (%d warning(s))\n", args[0], len(report.Warnings()))
		}
	})
	if err != nil {
		return err
	}
	return report.Err(filepath.Base(args[0]))
}

func runTemplatePreview(cmd *cobra.Command, args []string) error {
	a, m, err := openTemplates(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	b, err := m.Builder(args[0])
	if err != nil {
		return err
	}
	var form *forms.FormData
	if templatePreviewFm.File != "" || templatePreviewFm.Occurrence != "" {
		if form, err = templatePreviewFm.Form(); err != nil {
			return err
		}
	}
	preview, err := templates.Preview(b, form)
	if err != nil {
		return err
	}
	return render(a.out, templateFlags.OutputFormat, preview, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "Template:\t%s (%s)\n", preview.TemplateName, preview.TemplateID)
		fmt.Fprintf(tw, "Folder path:\t%s\n", preview.FolderPath)
		fmt.Fprintf(tw, "Archive name:\t%s\n", preview.ArchiveName)
		fmt.Fprintf(tw, "Documents:\t%s\n", preview.DocumentsPath)
	})
}

func runTemplateImport(cmd *cobra.Command, args []string) error {
	a, m, err := openTemplates(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := m.Import(args[0], templateOverwrite)
	if err != nil {
		return err
	}
	return render(a.out, templateFlags.OutputFormat, res, func(tw *tabwriter.Writer) {
		for _, id := range res.Imported {
			fmt.Fprintf(tw, "Imported:\t%s\n", id)
		}
		for _, issue := range res.Issues {
			fmt.Fprintf(tw, "Warning:\t%s\n", issue.Message)
		}
		if res.BackupPath != "" {
			fmt.Fprintf(tw, "Backup:\t%s\n", res.BackupPath)
		}
	})
}

func runTemplateExport(cmd *cobra.Command, args []string) error {
	a, m, err := openTemplates(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if templateExportAll {
		if len(args) != 1 {
			return fmt.Errorf("--all takes only a destination file")
		}
		n, err := m.ExportAll(args[0])
		if err != nil {
			return err
		}
		printf(a.out, templateFlags.Quiet, "Exported %d template(s) to %s\n", n, args[0])
		return nil
	}

	if len(args) != 2 {
		return fmt.Errorf("export needs a template id and a destination file")
	}
	if err := m.Export(args[0], args[1]); err != nil {
		return err
	}
	printf(a.out, templateFlags.Quiet, "Exported %s to %s\n", args[0], args[1])
	return nil
}

func runTemplateDelete(cmd *cobra.Command, args []string) error {
	a, m, err := openTemplates(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := m.Delete(args[0]); err != nil {
		return err
	}
	printf(a.out, templateFlags.Quiet, "Deleted template %s\n", args[0])
	return nil
}

func runTemplateFields(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, templateFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	docs := templates.FieldDocs()
	return render(a.out, templateFlags.OutputFormat, docs, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "FIELD\tTYPE\tDESCRIPTION\tEXAMPLE")
		for _, d := range docs {
			fmt.Fprintf(tw, "{%s}\t%s\t%s\t%s\n", d.Name, d.Kind, d.Description, d.Example)
		}
	})
}

func runTemplateCleanup(cmd *cobra.Command, _ []string) error {
	a, m, err := openTemplates(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	removed, err := m.CleanupBackups(templateKeep)
	if err != nil {
		return err
	}
	printf(a.out, templateFlags.Quiet, "Removed %d backup(s)\n", removed)
	return nil
}
