// Package config loads engine configuration from file, environment and flags.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hilops/titleflow/internal/types"
)

// Config is the explicit configuration struct handed to the scanner and
// dispatcher at construction. Nothing here is ambient global state.
type Config struct {
	// DBPath is the SQLite database location.
	DBPath string `mapstructure:"db"`
	// Actor identifies this process in audit events.
	Actor string `mapstructure:"actor"`

	// ScanInterval is the breach scanner period.
	ScanInterval time.Duration `mapstructure:"scan_interval"`
	// FallbackSLAWindow applies to tasks without SLA configuration,
	// measured from creation time.
	FallbackSLAWindow time.Duration `mapstructure:"fallback_sla_window"`
	// NotificationWindow bounds the recent-notification listing.
	NotificationWindow time.Duration `mapstructure:"notification_window"`
	// PublishTimeout bounds each per-user real-time publish.
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`

	// OrchestratorURL is the outbound trigger endpoint called on workflow
	// start. Empty disables the trigger.
	OrchestratorURL string `mapstructure:"orchestrator_url"`
	// ListenAddr is the realtime hub bind address for `titleflow serve`.
	ListenAddr string `mapstructure:"listen_addr"`
	// NotifyRole is the default audience role for operator notifications.
	NotifyRole string `mapstructure:"notify_role"`
	// NATSURL enables mirroring lifecycle events to a NATS JetStream server.
	// Empty disables the distributed publish path.
	NATSURL string `mapstructure:"nats_url"`

	// SLAPolicyFile optionally points at a YAML document of per-workflow-type
	// default SLA hours, applied when a task starts without its own sla_hours.
	SLAPolicyFile string `mapstructure:"sla_policy_file"`

	// SLAPolicies is populated from SLAPolicyFile.
	SLAPolicies map[types.WorkflowType]float64 `mapstructure:"-"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DBPath:             ".titleflow/titleflow.db",
		Actor:              "system",
		ScanInterval:       15 * time.Minute,
		FallbackSLAWindow:  24 * time.Hour,
		NotificationWindow: 24 * time.Hour,
		PublishTimeout:     10 * time.Second,
		ListenAddr:         ":8317",
		NotifyRole:         "hil-operator",
	}
}

// Load reads configuration from the given file (optional), the environment
// (TITLEFLOW_ prefix) and built-in defaults, in ascending precedence of
// defaults < file < env.
func Load(path string) (Config, error) {
	v := viper.New()

	def := Defaults()
	v.SetDefault("db", def.DBPath)
	v.SetDefault("actor", def.Actor)
	v.SetDefault("scan_interval", def.ScanInterval)
	v.SetDefault("fallback_sla_window", def.FallbackSLAWindow)
	v.SetDefault("notification_window", def.NotificationWindow)
	v.SetDefault("publish_timeout", def.PublishTimeout)
	v.SetDefault("orchestrator_url", def.OrchestratorURL)
	v.SetDefault("listen_addr", def.ListenAddr)
	v.SetDefault("notify_role", def.NotifyRole)
	v.SetDefault("nats_url", def.NATSURL)
	v.SetDefault("sla_policy_file", "")

	v.SetEnvPrefix("TITLEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.SLAPolicyFile != "" {
		policies, err := LoadSLAPolicies(cfg.SLAPolicyFile)
		if err != nil {
			return Config{}, err
		}
		cfg.SLAPolicies = policies
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the scanner cannot run with.
func (c Config) Validate() error {
	if c.ScanInterval <= 0 {
		return fmt.Errorf("scan_interval must be positive, got %s", c.ScanInterval)
	}
	if c.FallbackSLAWindow <= 0 {
		return fmt.Errorf("fallback_sla_window must be positive, got %s", c.FallbackSLAWindow)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	return nil
}

// PolicyHours returns the default SLA hours for a workflow type, if any.
func (c Config) PolicyHours(t types.WorkflowType) (float64, bool) {
	h, ok := c.SLAPolicies[t]
	return h, ok
}

// slaPolicyDoc is the on-disk shape of the SLA policy file:
//
//	policies:
//	  payoff: 24
//	  hoa_acquisition: 48
type slaPolicyDoc struct {
	Policies map[string]float64 `yaml:"policies"`
}

// LoadSLAPolicies reads a per-workflow-type SLA hours document.
func LoadSLAPolicies(path string) (map[types.WorkflowType]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read SLA policy file: %w", err)
	}
	var doc slaPolicyDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse SLA policy file: %w", err)
	}

	out := make(map[types.WorkflowType]float64, len(doc.Policies))
	for name, hours := range doc.Policies {
		wt := types.WorkflowType(name)
		if !wt.IsValid() {
			return nil, fmt.Errorf("unknown workflow type %q in SLA policy file", name)
		}
		if hours <= 0 {
			return nil, fmt.Errorf("SLA hours for %q must be positive, got %v", name, hours)
		}
		out[wt] = hours
	}
	return out, nil
}
