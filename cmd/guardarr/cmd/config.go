package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/guardarr/internal/config"
	"github.com/jmylchreest/guardarr/pkg/duration"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing guardarr configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

This shows all available configuration options with their default values.
You can redirect this output to a file to create a configuration template:

  guardarr config dump > config.yaml

Configuration can be set via:
  - Config file (.guardarr.yaml, /etc/guardarr/.guardarr.yaml)
  - Environment variables (GUARDARR_CONTROLLER_URL, GUARDARR_SERVER_PORT, etc.)
  - Command-line flags (for some options)

Environment variables use the GUARDARR_ prefix and underscores for nesting.
Example: controller.url -> GUARDARR_CONTROLLER_URL`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a config struct to a map, formatting durations for
// human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Name
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = duration.Format(v)
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfgMap := toMap(cfg)

	yamlData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# guardarr Configuration File")
	fmt.Println("# ============================")
	fmt.Println("#")
	fmt.Println("# All values shown below are defaults.")
	fmt.Println("# Duration format: 30s, 5m, 1h, 30d")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides:")
	fmt.Println("#   GUARDARR_CONTROLLER_TYPE, GUARDARR_CONTROLLER_URL")
	fmt.Println("#   GUARDARR_CONTROLLER_USERNAME, GUARDARR_CONTROLLER_PASSWORD")
	fmt.Println("#   GUARDARR_WATCHDOG_POLL_INTERVAL, GUARDARR_WATCHDOG_ERROR_THRESHOLD")
	fmt.Println("#   GUARDARR_DATABASE_DRIVER, GUARDARR_DATABASE_DSN")
	fmt.Println("#   GUARDARR_LOGGING_LEVEL, GUARDARR_LOGGING_FORMAT")
	fmt.Println("#   etc.")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
