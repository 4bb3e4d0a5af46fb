// -- cmd/root.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Anonyfox/magpie-html-sub001/internal/config"
	"github.com/Anonyfox/magpie-html-sub001/internal/observability"
	"github.com/Anonyfox/magpie-html-sub001/internal/render"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	cfgFile    string
	outputMode string
	flagCfg    flagOverrides
)

// flagOverrides holds the command-line values layered over file/env config.
type flagOverrides struct {
	engine          string
	timeout         string
	waitStrategy    string
	idleTime        string
	pollInterval    string
	maxScripts      int
	noScripts       bool
	forwardConsole  bool
	permissiveShims bool
	userAgent       string
	insecureTLS     bool
}

var rootCmd = &cobra.Command{
	Use:   "magpie-render [url]",
	Short: "Fetch a page, run its scripts in an isolated sandbox, and print the resulting HTML.",
	Long: `magpie-render fetches an HTML document, executes its scripts inside an
isolated JavaScript sandbox with a simulated browser environment, waits for
the page to settle, and prints the mutated document.

Output is the final HTML by default; --output json emits the full run result
(snapshot, console entries, per-script errors, timing).`,
	Version: Version,
	Args:    cobra.ExactArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeConfig(cmd)
	},
	RunE: runRender,
}

// Execute runs the root command under the given context.
func Execute(ctx context.Context) error {
	defer observability.Sync()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.Flags().StringVarP(&outputMode, "output", "o", "html", "output format: html or json")

	rootCmd.Flags().StringVar(&flagCfg.engine, "engine", "", "script engine to use")
	rootCmd.Flags().StringVar(&flagCfg.timeout, "timeout", "", "total run budget (e.g. 30s)")
	rootCmd.Flags().StringVar(&flagCfg.waitStrategy, "wait", "", "settle strategy: timeout or networkidle")
	rootCmd.Flags().StringVar(&flagCfg.idleTime, "idle-time", "", "quiet period for the settle strategies")
	rootCmd.Flags().StringVar(&flagCfg.pollInterval, "poll-interval", "", "networkidle poll interval")
	rootCmd.Flags().IntVar(&flagCfg.maxScripts, "max-scripts", 0, "cap on scripts considered per run")
	rootCmd.Flags().BoolVar(&flagCfg.noScripts, "no-scripts", false, "skip script execution, return the parsed document")
	rootCmd.Flags().BoolVar(&flagCfg.forwardConsole, "forward-console", false, "forward page console output to the process logger")
	rootCmd.Flags().BoolVar(&flagCfg.permissiveShims, "permissive-shims", false, "stub out live-connection APIs instead of throwing")
	rootCmd.Flags().StringVar(&flagCfg.userAgent, "user-agent", "", "User-Agent header for all requests")
	rootCmd.Flags().BoolVar(&flagCfg.insecureTLS, "insecure", false, "skip TLS certificate verification")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// initializeConfig layers file, environment and flag values, then boots the
// logger.
func initializeConfig(cmd *cobra.Command) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	config.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix("MAGPIE_RENDER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	applyFlagOverrides(cmd)

	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		observability.InitializeForCLI(config.LoggerConfig{Level: "info", Format: "console"})
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	observability.InitializeForCLI(cfg.Logger)
	return nil
}

func applyFlagOverrides(cmd *cobra.Command) {
	set := func(flag, key string, value any) {
		if cmd.Flags().Changed(flag) {
			viper.Set(key, value)
		}
	}
	set("engine", "run.engine", flagCfg.engine)
	set("timeout", "run.timeout", flagCfg.timeout)
	set("wait", "run.wait_strategy", flagCfg.waitStrategy)
	set("idle-time", "run.idle_time", flagCfg.idleTime)
	set("poll-interval", "run.poll_interval", flagCfg.pollInterval)
	set("max-scripts", "run.max_scripts", flagCfg.maxScripts)
	set("forward-console", "run.forward_console", flagCfg.forwardConsole)
	set("permissive-shims", "run.permissive_shims", flagCfg.permissiveShims)
	set("user-agent", "network.user_agent", flagCfg.userAgent)
	set("insecure", "network.insecure_skip_verify", flagCfg.insecureTLS)
	if cmd.Flags().Changed("no-scripts") {
		viper.Set("run.execute_scripts", !flagCfg.noScripts)
	}
}

func runRender(cmd *cobra.Command, args []string) error {
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Run.Validate(); err != nil {
		return err
	}

	logger := observability.Get()
	logger.Info("Starting magpie-render", zap.String("version", Version))

	renderer := render.New(&cfg, logger)
	result, err := renderer.Run(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	switch outputMode {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
	case "html":
		fmt.Fprintln(os.Stdout, result.HTML)
	default:
		return fmt.Errorf("unknown output format %q (want html or json)", outputMode)
	}
	return nil
}
