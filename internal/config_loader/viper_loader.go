package config_loader

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/utils"
)

// viperKeyMappings defines mappings from config keys to env variable suffixes
// The full env var name is EnvPrefix + "_" + suffix
var viperKeyMappings = map[string]string{
	FieldHost:              "HOST",
	FieldPort:              "PORT",
	FieldUsername:          "USERNAME",
	FieldPassword:          "PASSWORD",
	FieldToken:             "TOKEN",
	FieldVerify:            "VERIFY",
	FieldCAFile:            "CA_FILE",
	FieldVersion:           "VERSION",
	FieldDebug:             "DEBUG",
	FieldTimeout:           "TIMEOUT",
	FieldRetryAttempts:     "RETRY_ATTEMPTS",
	FieldRateLimit:         "RATE_LIMIT",
	FieldIdempotencyHeader: "IDEMPOTENCY_HEADER",
}

// cliFlags defines mappings from CLI flag names to config keys
var cliFlags = map[string]string{
	"host":                FieldHost,
	"port":                FieldPort,
	"username":            FieldUsername,
	"password":            FieldPassword,
	"token":               FieldToken,
	"verify":              FieldVerify,
	"ca-file":             FieldCAFile,
	"controller-version":  FieldVersion,
	"timeout":             FieldTimeout,
	"retry-attempts":      FieldRetryAttempts,
	"retry-initial-delay": FieldRetryInitialDelay,
	"retry-max-delay":     FieldRetryMaxDelay,
	"rate-limit":          FieldRateLimit,
}

// LoadConnection builds the connection config from the task file's
// connection keys with environment variable and CLI flag overrides.
// Priority: CLI flags > Environment variables > Task file > Defaults
func LoadConnection(fileKeys map[string]interface{}, flags *pflag.FlagSet) (*ConnectionConfig, error) {
	v := viper.New()
	v.SetDefault(FieldPort, DefaultPort)
	v.SetDefault(FieldVerify, true)
	v.SetDefault(FieldVersion, DefaultVersion)
	v.SetDefault(FieldTimeout, DefaultTimeout)
	v.SetDefault(FieldRetryAttempts, DefaultRetryAttempts)
	v.SetDefault(FieldRetryInitialDelay, DefaultRetryInitialDelay)
	v.SetDefault(FieldRetryMaxDelay, DefaultRetryMaxDelay)
	v.SetDefault(FieldIdempotencyHeader, DefaultIdempotencyHeader)

	if err := v.MergeConfigMap(connectionKeys(fileKeys)); err != nil {
		return nil, fmt.Errorf("failed to merge task file connection keys: %w", err)
	}

	// Bind specific environment variables
	for key, envSuffix := range viperKeyMappings {
		if val := os.Getenv(EnvPrefix + "_" + envSuffix); val != "" {
			v.Set(key, val)
		}
	}

	// Bind CLI flags if provided
	if flags != nil {
		for flagName, key := range cliFlags {
			if flag := flags.Lookup(flagName); flag != nil && flag.Changed {
				v.Set(key, flag.Value.String())
			}
		}
	}

	var config ConnectionConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal connection config: %w", err)
	}
	if err := ValidateConnection(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// connectionKeys keeps the connection fields of an ambient mapping under
// their config key names
func connectionKeys(ambient map[string]interface{}) map[string]interface{} {
	known := make(map[string]bool, len(viperKeyMappings))
	for key := range viperKeyMappings {
		known[strings.ToLower(key)] = true
	}
	out := make(map[string]interface{}, len(ambient))
	for k, val := range ambient {
		key := strings.TrimPrefix(k, "dnac_")
		if !known[strings.ToLower(key)] || val == nil {
			continue
		}
		out[key] = val
	}
	return out
}

// LoadTaskFile reads a task mapping from a YAML or JSON file. "-" reads
// standard input.
func LoadTaskFile(filePath string) (map[string]interface{}, error) {
	if filePath == "" {
		return nil, fmt.Errorf("task file path is required")
	}
	var (
		data []byte
		err  error
	)
	if filePath == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(filePath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read task file %q: %w", filePath, err)
	}
	return ParseTask(data)
}

// ParseTask decodes a task mapping
func ParseTask(data []byte) (map[string]interface{}, error) {
	var task map[string]interface{}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&task); err != nil {
		return nil, fmt.Errorf("failed to parse task file: %w", err)
	}
	if task == nil {
		task = map[string]interface{}{}
	}
	return task, nil
}

// ParseRuntime reads the runtime fields of an ambient mapping. Poll values
// are seconds or Go duration strings.
func ParseRuntime(ambient map[string]interface{}) (*RuntimeOptions, error) {
	opts := &RuntimeOptions{}
	var err error
	if v, ok := ambient[FieldState]; ok && v != nil {
		if opts.State, err = utils.ConvertToString(v); err != nil {
			return nil, fmt.Errorf("%s: %w", FieldState, err)
		}
	}
	if v, ok := ambient[FieldCheckMode]; ok && v != nil {
		if opts.CheckMode, err = utils.ConvertToBool(v); err != nil {
			return nil, fmt.Errorf("%s: %w", FieldCheckMode, err)
		}
	}
	if v, ok := ambient[FieldDiff]; ok && v != nil {
		if opts.Diff, err = utils.ConvertToBool(v); err != nil {
			return nil, fmt.Errorf("%s: %w", FieldDiff, err)
		}
	}
	for key, target := range map[string]*time.Duration{
		FieldPollInitialDelay: &opts.PollInitialDelay,
		FieldPollMaxDelay:     &opts.PollMaxDelay,
		FieldPollTimeout:      &opts.PollTimeout,
	} {
		v, ok := ambient[key]
		if !ok || v == nil {
			continue
		}
		d, err := parseSeconds(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		*target = d
	}
	return opts, nil
}

func parseSeconds(v interface{}) (time.Duration, error) {
	if s, ok := v.(string); ok {
		if d, err := time.ParseDuration(s); err == nil {
			return d, nil
		}
	}
	f, err := utils.ConvertToFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("expected seconds or a duration, got %v", v)
	}
	if f < 0 {
		return 0, fmt.Errorf("must not be negative, got %v", v)
	}
	return time.Duration(f * float64(time.Second)), nil
}
