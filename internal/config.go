package internal

import (
	"bytes"
	"fmt"
	"os"
	"os/user"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/wal-g/tracelog"
)

const (
	LogLevelSetting        = "WALG_LOG_LEVEL"
	HTTPListen             = "HTTP_LISTEN"
	StatsdAddressSetting   = "WALG_STATSD_ADDRESS"
	StatsdExtraTagsSetting = "WALG_STATSD_EXTRA_TAGS"
	ProfileSamplingRatio   = "PROFILE_SAMPLING_RATIO"
	ProfileMode            = "PROFILE_MODE"
	ProfilePath            = "PROFILE_PATH"

	MongoDBUriSetting               = "MONGODB_URI"
	SourceURISetting                = "INITSYNC_SOURCE_URI"
	BufferMaxCountSetting           = "INITSYNC_BUFFER_MAX_COUNT"
	BufferMaxBytesSetting           = "INITSYNC_BUFFER_MAX_BYTES"
	BufferPolicySetting             = "INITSYNC_BUFFER_POLICY"
	PushRetriesSetting              = "INITSYNC_PUSH_RETRIES"
	ApplyWorkersSetting             = "INITSYNC_APPLY_WORKERS"
	ApplyOpsLimitSetting            = "INITSYNC_APPLY_OPS_LIMIT"
	BatchMaxOpsSetting              = "INITSYNC_BATCH_MAX_OPS"
	BatchMaxBytesSetting            = "INITSYNC_BATCH_MAX_BYTES"
	BatchIntervalSetting            = "INITSYNC_BATCH_INTERVAL"
	MetadataIntervalSetting         = "INITSYNC_METADATA_INTERVAL"
	ExecutorConcurrencySetting      = "INITSYNC_EXECUTOR_CONCURRENCY"
	StatsLoggingIntervalSetting     = "INITSYNC_STATS_LOGGING_INTERVAL"
	StopWhenSourceIsBehindSetting   = "INITSYNC_STOP_WHEN_SOURCE_IS_BEHIND"
	defaultConfigFileName           = ".walg-initsync"
	hiddenConfigFlagAnnotation      = "walg_initsync_annotation_hidden_config_flag"
	requiredSettingUsageDescription = "Required, can be set though this flag or %s variable"
)

var (
	CfgFile string

	defaultConfigValues = map[string]string{
		LogLevelSetting:               tracelog.NormalLogLevel,
		BufferMaxCountSetting:         "10000",
		BufferMaxBytesSetting:         "268435456",
		BufferPolicySetting:           "block",
		PushRetriesSetting:            "5",
		ApplyWorkersSetting:           "16",
		ApplyOpsLimitSetting:          "0",
		BatchMaxOpsSetting:            "5000",
		BatchMaxBytesSetting:          "104857600",
		BatchIntervalSetting:          "1s",
		MetadataIntervalSetting:       "10s",
		ExecutorConcurrencySetting:    "4",
		StatsLoggingIntervalSetting:   "30s",
		StopWhenSourceIsBehindSetting: "false",
	}

	AllowedSettings = map[string]bool{
		LogLevelSetting:               true,
		HTTPListen:                    true,
		StatsdAddressSetting:          true,
		StatsdExtraTagsSetting:        true,
		ProfileSamplingRatio:          true,
		ProfileMode:                   true,
		ProfilePath:                   true,
		MongoDBUriSetting:             true,
		SourceURISetting:              true,
		BufferMaxCountSetting:         true,
		BufferMaxBytesSetting:         true,
		BufferPolicySetting:           true,
		PushRetriesSetting:            true,
		ApplyWorkersSetting:           true,
		ApplyOpsLimitSetting:          true,
		BatchMaxOpsSetting:            true,
		BatchMaxBytesSetting:          true,
		BatchIntervalSetting:          true,
		MetadataIntervalSetting:       true,
		ExecutorConcurrencySetting:    true,
		StatsLoggingIntervalSetting:   true,
		StopWhenSourceIsBehindSetting: true,
	}

	RequiredSettings = make(map[string]bool)

	secretSettings = map[string]bool{
		MongoDBUriSetting: true,
		SourceURISetting:  true,
	}
)

// GetSetting extract setting by key if key is set, return empty string otherwise
func GetSetting(key string) (value string, ok bool) {
	if viper.IsSet(key) {
		return viper.GetString(key), true
	}
	return "", false
}

// GetRequiredSetting returns setting value or error if setting is not set
func GetRequiredSetting(setting string) (string, error) {
	val, ok := GetSetting(setting)
	if !ok {
		return "", errors.Errorf("%s is required", setting)
	}
	return val, nil
}

// GetIntSetting parses integer setting
func GetIntSetting(setting string) (int, error) {
	val, ok := GetSetting(setting)
	if !ok {
		return 0, errors.Errorf("%s is not set", setting)
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to parse %s", setting)
	}
	return intVal, nil
}

// GetBoolSettingDefault parses boolean setting, def is returned if setting is not set
func GetBoolSettingDefault(setting string, def bool) (bool, error) {
	val, ok := GetSetting(setting)
	if !ok {
		return def, nil
	}
	boolVal, err := strconv.ParseBool(val)
	if err != nil {
		return false, errors.Wrapf(err, "failed to parse %s", setting)
	}
	return boolVal, nil
}

// GetFloat64Setting parses float setting
func GetFloat64Setting(setting string) (float64, error) {
	val, ok := GetSetting(setting)
	if !ok {
		return 0, errors.Errorf("%s is not set", setting)
	}
	floatVal, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to parse %s", setting)
	}
	return floatVal, nil
}

// GetDurationSetting parses duration setting
func GetDurationSetting(setting string) (time.Duration, error) {
	val, ok := GetSetting(setting)
	if !ok {
		return 0, errors.Errorf("%s is not set", setting)
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to parse %s", setting)
	}
	return dur, nil
}

// GetPositiveDurationSetting parses duration setting which must be greater than zero
func GetPositiveDurationSetting(setting string) (time.Duration, error) {
	dur, err := GetDurationSetting(setting)
	if err != nil {
		return 0, err
	}
	if dur <= 0 {
		return 0, errors.Errorf("%s must be positive, got %s", setting, dur)
	}
	return dur, nil
}

// ConfigureLogging sets log level from settings
func ConfigureLogging() error {
	if logLevel, ok := GetSetting(LogLevelSetting); ok {
		return tracelog.UpdateLogLevel(logLevel)
	}
	return nil
}

// Configure sets up logging and dumps effective environment in DEVEL mode
func Configure() {
	err := ConfigureLogging()
	if err != nil {
		tracelog.ErrorLogger.Println("Failed to configure logging.")
		tracelog.ErrorLogger.FatalError(err)
	}

	var buff bytes.Buffer
	buff.WriteString("--- COMPILED ENVIRONMENT VARS ---\n")

	var keys []string
	for k := range viper.AllSettings() {
		keys = append(keys, strings.ToUpper(k))
	}
	sort.Strings(keys)

	for _, k := range keys {
		val, ok := os.LookupEnv(k)
		if !ok {
			continue
		}
		if secretSettings[k] && val != "" {
			val = "--HIDDEN--"
		}
		fmt.Fprintf(&buff, "\t%s=%s\n", k, val)
	}

	tracelog.DebugLogger.Print(buff.String())
}

// AddConfigFlags registers flag for every allowed setting
func AddConfigFlags(Cmd *cobra.Command) {
	cfgFlags := &pflag.FlagSet{}
	for k := range AllowedSettings {
		flagName := toFlagName(k)
		flagUsage := ""
		if RequiredSettings[k] {
			flagUsage = fmt.Sprintf(requiredSettingUsageDescription, k)
		}

		cfgFlags.String(flagName, "", flagUsage)
		_ = viper.BindPFlag(k, cfgFlags.Lookup(flagName))
	}
	cfgFlags.VisitAll(func(f *pflag.Flag) {
		if f.Annotations == nil {
			f.Annotations = map[string][]string{}
		}
		f.Annotations[hiddenConfigFlagAnnotation] = []string{"true"}
	})
	Cmd.PersistentFlags().AddFlagSet(cfgFlags)
}

// InitConfig reads config file and ENV variables if set.
func InitConfig() {
	var globalViper = viper.GetViper()
	globalViper.AutomaticEnv() // read in environment variables that match
	SetDefaultValues(globalViper)
	ReadConfigFromFile(globalViper, CfgFile)
	CheckAllowedSettings(globalViper)
}

// ReadConfigFromFile read config to the viper instance
func ReadConfigFromFile(config *viper.Viper, configFile string) {
	if configFile != "" {
		config.SetConfigFile(configFile)
	} else {
		usr, err := user.Current()
		tracelog.ErrorLogger.FatalOnError(err)

		config.AddConfigPath(usr.HomeDir)
		config.SetConfigName(defaultConfigFileName)
	}

	err := config.ReadInConfig()
	if err == nil {
		tracelog.DebugLogger.Println("Using config file:", config.ConfigFileUsed())
	} else if config.ConfigFileUsed() != "" {
		// Config file is found, but parsing failed
		tracelog.WarningLogger.Printf("Failed to parse config file %s. %s.", config.ConfigFileUsed(), err)
	}
}

// SetDefaultValues set default settings to the viper instance
func SetDefaultValues(config *viper.Viper) {
	for setting, value := range defaultConfigValues {
		config.SetDefault(setting, value)
	}
}

// CheckAllowedSettings warnings if a viper instance's setting not allowed
func CheckAllowedSettings(config *viper.Viper) {
	for k := range config.AllSettings() {
		k = strings.ToUpper(k)
		if !AllowedSettings[k] {
			tracelog.WarningLogger.Println(k + " is unknown")
		}
	}
}

// AssertRequiredSettingsSet checks every required setting is set
func AssertRequiredSettingsSet() error {
	for setting, required := range RequiredSettings {
		if required && !viper.IsSet(setting) {
			return errors.Errorf("Required variable %s is not set. You can set is using --%s flag or variable %s",
				setting, toFlagName(setting), setting)
		}
	}
	return nil
}

func toFlagName(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "_", "-")
}
