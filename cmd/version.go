package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/conneroisu/casefiler/internal/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display the version, commit, build time, Go version and platform.

Examples:
  casefiler version
  casefiler version --short
  casefiler version --detailed
  casefiler version -o json`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

var (
	versionFormat   string
	versionShort    bool
	versionDetailed bool
)

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "output", "o", "table", "Output format (table|json|yaml)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show the version only")
	versionCmd.Flags().BoolVar(&versionDetailed, "detailed", false, "Show every build detail")
	versionCmd.MarkFlagsMutuallyExclusive("short", "detailed")
	AddFlagValidation(versionCmd, "output", func(format string) error {
		return ValidateFormat(format, outputFormats)
	})
}

func runVersion(cmd *cobra.Command, _ []string) error {
	info := version.Get()
	out := cmd.OutOrStdout()

	return render(out, versionFormat, info, func(tw *tabwriter.Writer) {
		switch {
		case versionShort:
			fmt.Fprintln(tw, info.Version)
		case versionDetailed:
			fmt.Fprintln(tw, info.Detailed())
		default:
			fmt.Fprintf(tw, "casefiler %s", info.Short())
			if info.Dirty {
				fmt.Fprint(tw, " (dirty)")
			}
			fmt.Fprintln(tw)
			if !info.BuildTime.IsZero() {
				fmt.Fprintf(tw, "Built:\t%s\n", info.BuildTime.UTC().Format(time.DateTime+" UTC"))
			}
			fmt.Fprintf(tw, "Go:\t%s\n", info.GoVersion)
			fmt.Fprintf(tw, "Platform:\t%s\n", info.Platform)
		}
	})
}
