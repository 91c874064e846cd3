package cmd

import (
	"fmt"
	"os"

	"github.com/conneroisu/casefiler/internal/config"
	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/fileutils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage casefiler configuration",
	Long: `Create, validate and show casefiler configuration.

Settings are resolved from defaults, then .casefiler.yml (or --config), then
CASEFILER_* environment variables such as CASEFILER_HASHING_WORKERS.

Examples:
  casefiler config init
  casefiler config validate --file .casefiler.yml --strict
  casefiler config show -o json`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with every default",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Check a configuration file for errors and questionable settings. Errors
fail the command; warnings only fail it with --strict.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var (
	configFlags     *StandardFlags
	configFile      string
	configStrict    bool
	configInitPath  string
	configInitForce bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configValidateCmd, configShowCmd)

	configInitCmd.Flags().StringVar(&configInitPath, "path", ".casefiler.yml", "File to write")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")

	configValidateCmd.Flags().StringVarP(&configFile, "file", "f", "",
		"Configuration file to validate (default .casefiler.yml)")
	configValidateCmd.Flags().BoolVar(&configStrict, "strict", false, "Treat warnings as errors")

	configFlags = &StandardFlags{}
	configShowCmd.Flags().StringVarP(&configFlags.OutputFormat, "output", "o", "yaml", "Output format (json|yaml)")
	AddFlagValidation(configShowCmd, "output", func(format string) error {
		return ValidateFormat(format, []string{"json", "yaml"})
	})
}

// defaultConfig is the configuration with nothing but defaults applied.
func defaultConfig() (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)
	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, err.Error())
	}
	return &cfg, nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	if fileutils.Exists(configInitPath) && !configInitForce {
		return fmt.Errorf("%s already exists, use --force to overwrite it", configInitPath)
	}
	cfg, err := defaultConfig()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	header := []byte("# casefiler configuration. Environment variables CASEFILER_<SECTION>_<KEY> override these values.\n")
	if err := fileutils.AtomicWrite(configInitPath, append(header, data...)); err != nil {
		return errors.WrapFile(err, "write configuration", configInitPath)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", configInitPath)
	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	target := configFile
	if target == "" {
		target = ".casefiler.yml"
	}
	if _, err := os.Stat(target); err != nil {
		return errors.WrapFile(err, "stat configuration", target).
			WithUserMessage("No configuration file found. Use --file or run 'casefiler config init'.")
	}

	v := viper.New()
	v.SetConfigFile(target)
	if err := v.ReadInConfig(); err != nil {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("failed to read %s: %v", target, err))
	}
	config.SetDefaults(v)

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("failed to parse %s: %v", target, err))
	}

	out := cmd.OutOrStdout()
	result := config.ValidateConfigWithDetails(&cfg)
	if !result.HasErrors() && !result.HasWarnings() {
		fmt.Fprintf(out, "%s is valid\n", target)
		return nil
	}
	fmt.Fprint(out, result.String())

	if result.HasErrors() {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("configuration has %d error(s)", len(result.Errors)))
	}
	if configStrict {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("configuration has %d warning(s) in strict mode", len(result.Warnings)))
	}
	fmt.Fprintf(out, "%s is valid with %d warning(s); use --strict to treat them as errors\n",
		target, len(result.Warnings))
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if f := viper.ConfigFileUsed(); f != "" {
		cmd.PrintErrf("# resolved from %s\n", f)
	}
	return render(cmd.OutOrStdout(), configFlags.OutputFormat, cfg, nil)
}
