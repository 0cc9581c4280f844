package interviewer

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/harunnryd/interviewer/pkg/configutil"
	"github.com/harunnryd/interviewer/pkg/errorsx"
	"github.com/harunnryd/interviewer/pkg/interview"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. INTERVIEW_LOG_LEVEL.
const EnvPrefix = "INTERVIEW"

type Config struct {
	Environment    string         `mapstructure:"environment"`
	LogLevel       string         `mapstructure:"log_level"`
	LogFormat      string         `mapstructure:"log_format"`
	DrainTimeoutMS int            `mapstructure:"drain_timeout_ms"`
	TimingSettings TimingConfig   `mapstructure:"timing"`
	Stages         []StageConfig  `mapstructure:"stages" expand:"-"`
	Transport      ProviderConfig `mapstructure:"transport"`
	Speech         ProviderConfig `mapstructure:"speech"`
	Privacy        PrivacyConfig  `mapstructure:"privacy"`
}

type TimingConfig struct {
	IdleTimeoutMS   int `mapstructure:"idle_timeout_ms"`
	Q1SkipTimeoutMS int `mapstructure:"q1_skip_timeout_ms"`
	TickMS          int `mapstructure:"tick_ms"`
	MinAnswerWords  int `mapstructure:"min_answer_words"`
}

// StageConfig describes one stage. Empty lines fall back to the built-in
// script of the stage kind.
type StageConfig struct {
	Name      string                 `mapstructure:"name"`
	Kind      string                 `mapstructure:"kind"`
	TimeoutMS int                    `mapstructure:"timeout_ms"`
	Greeting  string                 `mapstructure:"greeting"`
	AckQ1     string                 `mapstructure:"ack_q1"`
	AckQ2     string                 `mapstructure:"ack_q2"`
	NudgeQ1   string                 `mapstructure:"nudge_q1"`
	NudgeQ2   string                 `mapstructure:"nudge_q2"`
	ReaskQ1   string                 `mapstructure:"reask_q1"`
	Closing   interview.ClosingLines `mapstructure:"closing"`
}

type ProviderConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

// LoadConfig reads the optional YAML file at path and applies environment overrides.
// An empty path runs on defaults and environment only.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("drain_timeout_ms", 5000)
	v.SetDefault("timing.idle_timeout_ms", 10000)
	v.SetDefault("timing.q1_skip_timeout_ms", 40000)
	v.SetDefault("timing.tick_ms", 1000)
	v.SetDefault("timing.min_answer_words", 2)
	v.SetDefault("transport.provider", "ws")
	v.SetDefault("speech.provider", "mock")
	v.SetDefault("privacy.redact_pii", true)

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := configutil.RequireString(c.Transport.Provider, "transport.provider"); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	if err := configutil.RequireString(c.Speech.Provider, "speech.provider"); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "text", "json":
	default:
		return errorsx.New(errorsx.ReasonConfigInvalid, "log_format must be text or json, got %q", c.LogFormat)
	}
	if _, err := c.Plan(); err != nil {
		return err
	}
	return nil
}

// Timing converts the millisecond settings into the interview tunables.
func (c Config) Timing() interview.Timing {
	def := interview.DefaultTiming()
	return interview.Timing{
		IdleTimeout:    configutil.Millis(c.TimingSettings.IdleTimeoutMS, def.IdleTimeout),
		Q1SkipTimeout:  configutil.Millis(c.TimingSettings.Q1SkipTimeoutMS, def.Q1SkipTimeout),
		TickInterval:   configutil.Millis(c.TimingSettings.TickMS, def.TickInterval),
		MinAnswerWords: configutil.IntValue(c.TimingSettings.MinAnswerWords, def.MinAnswerWords),
	}
}

func (c Config) DrainTimeout() time.Duration {
	return configutil.Millis(c.DrainTimeoutMS, 5*time.Second)
}

// Plan resolves the configured stages. Without stages the built-in
// introduction and experience stages are used.
func (c Config) Plan() ([]interview.StageDefinition, error) {
	if len(c.Stages) == 0 {
		return interview.DefaultPlan(), nil
	}
	plan := make([]interview.StageDefinition, 0, len(c.Stages))
	for i, sc := range c.Stages {
		kind := strings.ToLower(strings.TrimSpace(sc.Kind))
		stage, ok := interview.StageFor(kind, sc.Closing)
		if !ok {
			return nil, errorsx.New(errorsx.ReasonConfigInvalid, "stages[%d]: unknown kind %q", i, sc.Kind)
		}
		script := baseScript(kind)
		script.Stage = configutil.StringValue(sc.Name, script.Stage)
		script.Greeting = configutil.StringValue(sc.Greeting, script.Greeting)
		script.AckQ1 = configutil.StringValue(sc.AckQ1, script.AckQ1)
		script.AckQ2 = configutil.StringValue(sc.AckQ2, script.AckQ2)
		script.NudgeQ1 = configutil.StringValue(sc.NudgeQ1, script.NudgeQ1)
		script.NudgeQ2 = configutil.StringValue(sc.NudgeQ2, script.NudgeQ2)
		script.ReaskQ1 = configutil.StringValue(sc.ReaskQ1, script.ReaskQ1)
		script.Timeout = configutil.Millis(sc.TimeoutMS, script.Timeout)
		if err := script.Validate(); err != nil {
			return nil, fmt.Errorf("stages[%d]: %w", i, err)
		}
		plan = append(plan, interview.StageDefinition{Script: script, Stage: stage})
	}
	return plan, nil
}

func baseScript(kind string) interview.Script {
	if kind == interview.KindExperience {
		return interview.ExperienceScript()
	}
	return interview.IntroScript()
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Transport.Settings = expandSettings(cfg.Transport.Settings)
	cfg.Speech.Settings = expandSettings(cfg.Speech.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			// Spoken lines are literal text; "$90k" must survive.
			if v.Type().Field(i).Tag.Get("expand") == "-" {
				continue
			}
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
