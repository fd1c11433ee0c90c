// Package config loads the Kestrel configuration from defaults, an optional
// file and KESTREL_* environment variables, in increasing priority.
package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/viper"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g.
// KESTREL_ENGINE_SCORING_SMR_THRESHOLD for engine.scoring.smr_threshold.
const EnvPrefix = "KESTREL"

// Load builds a configuration. path may be empty; a YAML, JSON or TOML
// file is detected by its extension. KESTREL_TIER=pro (or tier: pro in
// the file) starts from domain.ProConfig instead of domain.DefaultConfig.
func Load(path string) (*domain.Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	base := domain.DefaultConfig()
	if domain.Deployment(strings.ToLower(v.GetString("tier"))) == domain.TierPro {
		base = domain.ProConfig()
	}
	setDefaults(v, "", reflect.ValueOf(base).Elem())

	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Tier = domain.Deployment(strings.ToLower(string(cfg.Tier)))

	if v.GetBool("debug") {
		cfg.Logging.Level = "debug"
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every leaf of cfg under its mapstructure key so
// that AutomaticEnv can override keys that no file mentions.
func setDefaults(v *viper.Viper, prefix string, rv reflect.Value) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		fv := rv.Field(i)
		if fv.Kind() == reflect.Struct && field.Type.PkgPath() != "time" {
			setDefaults(v, key, fv)
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}

// Validate rejects settings the engine cannot start with.
func Validate(cfg *domain.Config) error {
	switch cfg.Tier {
	case domain.TierCommunity, domain.TierPro:
	default:
		return &domain.ConfigError{Reason: fmt.Sprintf("unknown tier %q", cfg.Tier)}
	}

	s := cfg.Engine.Scoring
	if s.EDDThreshold > s.SMRThreshold {
		return &domain.ConfigError{Reason: fmt.Sprintf("edd_threshold %d above smr_threshold %d", s.EDDThreshold, s.SMRThreshold)}
	}
	if s.BusinessDays < 0 {
		return &domain.ConfigError{Reason: "business_days must not be negative"}
	}

	r := cfg.Engine.Rules
	if r.ProfileLowCeiling < 0 || r.ProfileMediumCeiling < 0 || r.ProfileHighCeiling < 0 {
		return &domain.ConfigError{Reason: "profile ceilings must not be negative"}
	}
	if r.ProfileSevereRatio < r.ProfileModerateRatio {
		return &domain.ConfigError{Reason: fmt.Sprintf("profile_severe_ratio %.1f below profile_moderate_ratio %.1f", r.ProfileSevereRatio, r.ProfileModerateRatio)}
	}

	b := cfg.Engine.Batch
	if b.MaxBatchSize <= 0 || b.ChunkSize <= 0 {
		return &domain.ConfigError{Reason: "batch sizes must be positive"}
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return &domain.ConfigError{Reason: fmt.Sprintf("invalid server port %d", cfg.Server.Port)}
	}
	return nil
}
