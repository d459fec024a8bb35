// Package config implements the runtime's optional, overridable tunables:
// a nil-safe default configuration optionally overridden in whole by a
// JSON file, with ${VAR}-style environment substitution applied
// reflectively across every string field.
package config

import (
	"encoding/json"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/bfix/gospel/logger"
)

// EnvVar names the environment variable pointing at a JSON configuration
// file. Its absence is not an error; defaults apply.
const EnvVar = "NEVERLIIE_CONFIG"

// Environ carries substitution values for ${VAR} references inside string
// fields of Config (e.g. a RegistryPath of "${HOME}/.neverliie/registry.json").
type Environ map[string]string

// Config holds non-protocol tunables. None of these override the
// wire-format or on-disk layout; they only parameterize behavior the
// protocol leaves unconstrained (e.g. the default _timeout).
type Config struct {
	Env Environ `json:"environ"`

	// CallTimeoutSeconds is the default unary call timeout applied when a
	// caller does not supply _timeout explicitly. Protocol default: 5s.
	CallTimeoutSeconds float64 `json:"call_timeout_seconds"`
	// PingTimeoutSeconds bounds a liveness probe. Protocol default: 1s.
	PingTimeoutSeconds float64 `json:"ping_timeout_seconds"`
	// WakePollIntervalMillis is the interval Wake polls ping at while
	// waiting for a spawned peer to come up. Protocol default: 100ms.
	WakePollIntervalMillis int64 `json:"wake_poll_interval_millis"`
	// LogLevel sets the gospel/logger verbosity threshold: DBG, INFO,
	// WARN, or ERROR.
	LogLevel string `json:"log_level"`
	// RegistryPath overrides the default <home>/.neverliie/registry.json
	// location. Supports ${VAR} substitution against Env.
	RegistryPath string `json:"registry_path"`
}

// Defaults returns the built-in configuration applied when no file is
// loaded.
func Defaults() *Config {
	return &Config{
		CallTimeoutSeconds:     5.0,
		PingTimeoutSeconds:     1.0,
		WakePollIntervalMillis: 100,
		LogLevel:               "WARN",
	}
}

// Cfg is the process-wide configuration. Nil-safe: it is always a valid
// *Config, starting from Defaults(), and Load replaces it wholesale.
var Cfg = Defaults()

// Load reads the JSON file named by NEVERLIIE_CONFIG, if set, replacing
// Cfg. A missing environment variable is not an error; a present-but-
// unreadable or malformed file is returned to the caller so boot can
// decide whether to proceed with defaults or fail.
func Load() error {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil
	}
	return ParseConfig(path)
}

// ParseConfig loads and applies a specific configuration file, unmarshaling
// onto a copy of the defaults and then running ${VAR} substitution over
// every string field using the file's own "environ" map.
func ParseConfig(fileName string) error {
	file, err := os.ReadFile(fileName)
	if err != nil {
		return err
	}
	cfg := Defaults()
	if err := json.Unmarshal(file, cfg); err != nil {
		return err
	}
	applySubstitutions(cfg, cfg.Env)
	Cfg = cfg
	return nil
}

// CallTimeout returns the configured default unary call timeout.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds * float64(time.Second))
}

// PingTimeout returns the configured ping timeout.
func (c *Config) PingTimeout() time.Duration {
	return time.Duration(c.PingTimeoutSeconds * float64(time.Second))
}

// WakePollInterval returns the configured wake-polling interval.
func (c *Config) WakePollInterval() time.Duration {
	return time.Duration(c.WakePollIntervalMillis) * time.Millisecond
}

var rx = regexp.MustCompile(`\$\{([^\}]*)\}`)

// substString replaces ${VAR} occurrences in s with values from env.
func substString(s string, env map[string]string) string {
	matches := rx.FindAllStringSubmatch(s, -1)
	for _, m := range matches {
		if len(m[1]) != 0 {
			subst, ok := env[m[1]]
			if !ok {
				continue
			}
			s = strings.Replace(s, "${"+m[1]+"}", subst, -1)
		}
	}
	return s
}

// applySubstitutions traverses x reflectively and applies ${VAR}
// substitution to every string field, repeating until a pass makes no
// further change (so one substituted value may itself contain a
// reference).
func applySubstitutions(x interface{}, env map[string]string) {
	var process func(v reflect.Value)
	process = func(v reflect.Value) {
		for i := 0; i < v.NumField(); i++ {
			fld := v.Field(i)
			if !fld.CanSet() {
				continue
			}
			switch fld.Kind() {
			case reflect.String:
				s := fld.Interface().(string)
				for {
					s1 := substString(s, env)
					if s1 == s {
						break
					}
					logger.Printf(logger.DBG, "[config] %s --> %s\n", s, s1)
					fld.SetString(s1)
					s = s1
				}
			case reflect.Struct:
				process(fld)
			case reflect.Ptr:
				if e := fld.Elem(); e.IsValid() {
					process(e)
				}
			}
		}
	}
	v := reflect.ValueOf(x)
	switch v.Kind() {
	case reflect.Ptr:
		if e := v.Elem(); e.IsValid() {
			process(e)
		}
	case reflect.Struct:
		process(v)
	}
}
