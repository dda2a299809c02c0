package pipelineconfig

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/edgepulse/edgepulse/internal/config"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// Module provides the hot-reloadable pipeline tuning config.
var Module = fx.Provide(NewHolder)

// Tuning carries the knobs operators are expected to adjust at runtime
// without restarting the normalizer.
type Tuning struct {
	MaxAttempts       int           `mapstructure:"maxAttempts"`
	BatchSize         int           `mapstructure:"batchSize"`
	ReclaimMinIdle    time.Duration `mapstructure:"reclaimMinIdle"`
	PerMessageTimeout time.Duration `mapstructure:"perMessageTimeout"`
}

func DefaultTuning() Tuning {
	return Tuning{
		MaxAttempts:       5,
		BatchSize:         16,
		ReclaimMinIdle:    time.Minute,
		PerMessageTimeout: 30 * time.Second,
	}
}

// Holder exposes the current tuning, swapped atomically on file change.
type Holder struct {
	current atomic.Value // holds Tuning
}

func NewHolder(appCfg config.Config) (*Holder, error) {
	v := viper.New()

	v.SetConfigName("pipeline")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/edgepulse")
	v.AddConfigPath(".")

	v.SetEnvPrefix("EDGEPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults are registered up front so a file that sets only some keys
	// merges over them instead of zeroing the rest.
	defaults := DefaultTuning()
	if appCfg.NormalizerMaxTries > 0 {
		defaults.MaxAttempts = appCfg.NormalizerMaxTries
	}
	v.SetDefault("pipeline.maxAttempts", defaults.MaxAttempts)
	v.SetDefault("pipeline.batchSize", defaults.BatchSize)
	v.SetDefault("pipeline.reclaimMinIdle", defaults.ReclaimMinIdle)
	v.SetDefault("pipeline.perMessageTimeout", defaults.PerMessageTimeout)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Tuning
	if err := v.UnmarshalKey("pipeline", &cfg); err != nil {
		return nil, err
	}
	if err := validateTuning(cfg); err != nil {
		return nil, err
	}

	holder := &Holder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated Tuning
		if err := v.UnmarshalKey("pipeline", &updated); err != nil {
			log.Printf("[pipeline-config] reload failed: %v", err)
			return
		}
		if err := validateTuning(updated); err != nil {
			log.Printf("[pipeline-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[pipeline-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticHolder wraps a fixed tuning with no file watching.
func NewStaticHolder(cfg Tuning) *Holder {
	holder := &Holder{}
	holder.current.Store(cfg)
	return holder
}

func (h *Holder) Get() Tuning {
	return h.current.Load().(Tuning)
}

func validateTuning(cfg Tuning) error {
	if cfg.MaxAttempts <= 0 {
		return errors.New("pipeline.maxAttempts must be positive")
	}
	if cfg.BatchSize <= 0 {
		return errors.New("pipeline.batchSize must be positive")
	}
	if cfg.ReclaimMinIdle < 0 || cfg.PerMessageTimeout <= 0 {
		return errors.New("pipeline timeouts must be positive")
	}
	return nil
}
