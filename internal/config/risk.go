package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// RiskPolicy holds the scan risk thresholds. A product with at most LowMax
// valid scans inside Window is low risk, at most MediumMax is medium, and
// anything above is high.
type RiskPolicy struct {
	Window    time.Duration `mapstructure:"window"`
	LowMax    int64         `mapstructure:"lowMax"`
	MediumMax int64         `mapstructure:"mediumMax"`
}

func DefaultRiskPolicy() RiskPolicy {
	return RiskPolicy{
		Window:    24 * time.Hour,
		LowMax:    3,
		MediumMax: 10,
	}
}

type RiskPolicyHolder struct {
	current atomic.Value // holds RiskPolicy
}

// NewStaticRiskPolicyHolder returns a holder that never reloads.
func NewStaticRiskPolicyHolder(policy RiskPolicy) *RiskPolicyHolder {
	holder := &RiskPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

// NewRiskPolicyHolder reads risk.yml from path, or from the usual config
// directories when path is empty, and keeps it in sync with the file.
// RISK_* environment variables override file values.
func NewRiskPolicyHolder(path string, log *zap.Logger) (*RiskPolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.risk")

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("risk")
		v.SetConfigType("yml")
		v.AddConfigPath("/var/lib/trustmark/config")
		v.AddConfigPath("/etc/trustmark")
		v.AddConfigPath(".")
	}

	defaults := DefaultRiskPolicy()
	v.SetDefault("window", defaults.Window.String())
	v.SetDefault("lowMax", defaults.LowMax)
	v.SetDefault("mediumMax", defaults.MediumMax)

	v.SetEnvPrefix("RISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var policy RiskPolicy
	if err := v.Unmarshal(&policy); err != nil {
		return nil, err
	}
	if err := ValidateRiskPolicy(policy); err != nil {
		return nil, err
	}

	holder := &RiskPolicyHolder{}
	holder.current.Store(policy)

	if !fileLoaded {
		log.Info("risk policy file not found, using defaults",
			zap.Duration("window", policy.Window),
			zap.Int64("low_max", policy.LowMax),
			zap.Int64("medium_max", policy.MediumMax),
		)
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated RiskPolicy
		if err := v.Unmarshal(&updated); err != nil {
			log.Warn("risk policy reload failed", zap.Error(err))
			return
		}
		if err := ValidateRiskPolicy(updated); err != nil {
			log.Warn("invalid risk policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("risk policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *RiskPolicyHolder) Get() RiskPolicy {
	return h.current.Load().(RiskPolicy)
}

func ValidateRiskPolicy(p RiskPolicy) error {
	if p.Window <= 0 {
		return errors.New("risk.window must be positive")
	}
	if p.LowMax < 0 {
		return errors.New("risk.lowMax cannot be negative")
	}
	if p.MediumMax < p.LowMax {
		return errors.New("risk.mediumMax must be >= risk.lowMax")
	}
	return nil
}
