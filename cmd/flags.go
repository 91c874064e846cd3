package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/conneroisu/casefiler/internal/forms"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var outputFormats = []string{"table", "json", "yaml"}

// StandardFlags provides consistent flag definitions across commands.
type StandardFlags struct {
	OutputFormat string `flag:"output,o" desc:"Output format (table|json|yaml)" default:"table"`
	Verbose      bool   `flag:"verbose,v" desc:"Enable verbose output" default:"false"`
	Quiet        bool   `flag:"quiet,q" desc:"Suppress output" default:"false"`
}

// AddStandardFlags adds the named flag groups to a command. The only group
// today is "output".
func AddStandardFlags(cmd *cobra.Command, flagTypes ...string) *StandardFlags {
	flags := &StandardFlags{}
	for _, flagType := range flagTypes {
		if flagType == "output" {
			addOutputFlags(cmd, flags)
		}
	}
	return flags
}

func addOutputFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVarP(&flags.OutputFormat, "output", "o", "table", "Output format (table|json|yaml)")
	cmd.Flags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable verbose output")
	cmd.Flags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress output")

	AddFlagValidation(cmd, "output", func(format string) error {
		return ValidateFormat(format, outputFormats)
	})
}

// ValidateFlags validates flag combinations and values.
func (f *StandardFlags) ValidateFlags() error {
	if f.OutputFormat != "" {
		if err := ValidateFormat(f.OutputFormat, outputFormats); err != nil {
			return err
		}
	}
	if f.Quiet && f.Verbose {
		return fmt.Errorf("cannot specify both --quiet and --verbose")
	}
	return nil
}

// ValidateFormat checks format against the allowed values, case-insensitively.
func ValidateFormat(format string, allowed []string) error {
	for _, a := range allowed {
		if strings.EqualFold(format, a) {
			return nil
		}
	}
	return fmt.Errorf("invalid output format %s, must be one of: %s", format, strings.Join(allowed, ", "))
}

// AddFlagValidation runs validator before a flag value is accepted.
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}
	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidateFileExists accepts an empty name for optional files.
func ValidateFileExists(filename string) error {
	if filename == "" {
		return nil
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", filename)
	}
	return nil
}

// FormFlags build a case form from a file, individual flags, or both. Flags
// override values read from the file.
type FormFlags struct {
	File        string
	Occurrence  string
	Business    string
	Location    string
	VideoStart  string
	VideoEnd    string
	TimeOffset  string
	DVRTime     string
	RealTime    string
	Technician  string
	BadgeNumber string
}

// AddFormFlags registers the case form flags on cmd.
func AddFormFlags(cmd *cobra.Command) *FormFlags {
	f := &FormFlags{}
	bindFormFlags(cmd, f)
	return f
}

// bindFormFlags registers the form flags of an existing FormFlags on cmd, so
// sibling commands can share one set of values.
func bindFormFlags(cmd *cobra.Command, f *FormFlags) {
	fl := cmd.Flags()
	fl.StringVarP(&f.File, "form", "f", "", "Case form file (.json, .yaml or .toml)")
	fl.StringVar(&f.Occurrence, "occurrence", "", "Occurrence number")
	fl.StringVar(&f.Business, "business", "", "Business name")
	fl.StringVar(&f.Location, "location", "", "Location address")
	fl.StringVar(&f.VideoStart, "video-start", "", "Video start time (2006-01-02T15:04[:05])")
	fl.StringVar(&f.VideoEnd, "video-end", "", "Video end time (2006-01-02T15:04[:05])")
	fl.StringVar(&f.TimeOffset, "time-offset", "", "DVR time offset, free text or minutes")
	fl.StringVar(&f.DVRTime, "dvr-time", "", "Time shown on the DVR when the offset was measured")
	fl.StringVar(&f.RealTime, "real-time", "", "Real time when the offset was measured")
	fl.StringVar(&f.Technician, "technician", "", "Technician name (overrides config)")
	fl.StringVar(&f.BadgeNumber, "badge", "", "Badge number (overrides config)")
	AddFlagValidation(cmd, "form", ValidateFileExists)
}

// Form loads the form file, if any, and applies the individual flags.
func (f *FormFlags) Form() (*forms.FormData, error) {
	form := &forms.FormData{}
	if f.File != "" {
		loaded, err := forms.Load(f.File)
		if err != nil {
			return nil, err
		}
		form = loaded
	}

	for _, s := range []struct {
		val string
		dst *string
	}{
		{f.Occurrence, &form.OccurrenceNumber},
		{f.Business, &form.BusinessName},
		{f.Location, &form.LocationAddress},
		{f.TimeOffset, &form.TimeOffset},
		{f.Technician, &form.TechnicianName},
		{f.BadgeNumber, &form.BadgeNumber},
	} {
		if s.val != "" {
			*s.dst = s.val
		}
	}

	for _, t := range []struct {
		name string
		val  string
		dst  **time.Time
	}{
		{"video-start", f.VideoStart, &form.VideoStart},
		{"video-end", f.VideoEnd, &form.VideoEnd},
		{"dvr-time", f.DVRTime, &form.DVRTime},
		{"real-time", f.RealTime, &form.RealTime},
	} {
		if t.val == "" {
			continue
		}
		parsed, err := parseTimeFlag(t.val)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", t.name, err)
		}
		*t.dst = &parsed
	}
	return form, nil
}

var timeFlagLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseTimeFlag accepts RFC 3339 or a local wall-clock time.
func parseTimeFlag(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range timeFlagLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q, use 2006-01-02T15:04 or RFC 3339", s)
}
