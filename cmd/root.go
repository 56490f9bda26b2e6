// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/reportcast/internal/config"
	"github.com/xkilldash9x/reportcast/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// bindPrefix marks command annotations that map a flag onto a config key.
const bindPrefix = "bind-flag:"

// Dependencies are the pieces of the CLI that reach outside the process and
// are swapped out in tests.
type Dependencies struct {
	Stores    storeProvider
	Capturers capturerProvider
}

// DefaultDependencies connects to real browsers and databases.
func DefaultDependencies() Dependencies {
	return Dependencies{
		Stores:    NewStoreProvider(),
		Capturers: NewCapturerProvider(),
	}
}

// NewRootCmd builds the command tree.
func NewRootCmd(deps Dependencies) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "reportcast",
		Short: "Capture dashboards and reports and post them to a chat webhook.",
		Long: `reportcast opens a dashboard or BI report in headless Chrome, logs in when a
login page shows up, waits for the page to render and posts one screenshot
per view to a chat webhook. It can also export images through a BI REST API
or deliver an existing image file.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "reportcast"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting reportcast", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, config.Interface(cfg)))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "reportcast version %s\n" .Version}}`)

	rootCmd.AddCommand(newCaptureCmd(deps))
	rootCmd.AddCommand(newExportCmd(deps))
	rootCmd.AddCommand(newSendCmd(deps))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the CLI with the default dependencies.
func Execute(ctx context.Context) error {
	defer observability.Sync()
	return NewRootCmd(DefaultDependencies()).ExecuteContext(ctx)
}

// initializeConfig layers the config file, environment and flags onto v.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("REPORTCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	for annotation, key := range cmd.Annotations {
		name, ok := strings.CutPrefix(annotation, bindPrefix)
		if !ok {
			continue
		}
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			return fmt.Errorf("flag %q bound to %s does not exist", name, key)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return err
		}
	}
	return nil
}

// bindFlag maps a command flag onto a config key. Flags beat env and file.
func bindFlag(cmd *cobra.Command, flag, key string) {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[bindPrefix+flag] = key
}

func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not found in command context")
	}
	return cfg, nil
}
