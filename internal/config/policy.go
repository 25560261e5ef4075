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

const maxProfileCacheTTL = 15 * time.Minute

// Policy holds the operational knobs that can change without a restart.
type Policy struct {
	AccessCode AccessCodePolicy `mapstructure:"accessCode"`
	Session    SessionPolicy    `mapstructure:"session"`
	Sweeper    SweeperPolicy    `mapstructure:"sweeper"`
	RateLimit  RateLimitPolicy  `mapstructure:"rateLimit"`
}

type AccessCodePolicy struct {
	Prefix string        `mapstructure:"prefix"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type SessionPolicy struct {
	ProfileCacheTTL time.Duration `mapstructure:"profileCacheTTL"`
}

type SweeperPolicy struct {
	OverdueInterval time.Duration `mapstructure:"overdueInterval"`
	RelayInterval   time.Duration `mapstructure:"relayInterval"`
}

type RateLimitPolicy struct {
	RedeemPerMinute int `mapstructure:"redeemPerMinute"`
}

func DefaultPolicy() Policy {
	return Policy{
		AccessCode: AccessCodePolicy{Prefix: "ACC", TTL: 7 * 24 * time.Hour},
		Session:    SessionPolicy{ProfileCacheTTL: 5 * time.Minute},
		Sweeper:    SweeperPolicy{OverdueInterval: 10 * time.Minute, RelayInterval: 5 * time.Second},
		RateLimit:  RateLimitPolicy{RedeemPerMinute: 5},
	}
}

// PolicyHolder serves the current Policy and swaps it on file change.
type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(p Policy) *PolicyHolder {
	h := &PolicyHolder{}
	h.current.Store(normalizePolicy(p))
	return h
}

func NewPolicyHolder(log *zap.Logger) (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("opsledger")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/opsledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("OPSLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	v.SetDefault("accessCode.prefix", defaults.AccessCode.Prefix)
	v.SetDefault("accessCode.ttl", defaults.AccessCode.TTL)
	v.SetDefault("session.profileCacheTTL", defaults.Session.ProfileCacheTTL)
	v.SetDefault("sweeper.overdueInterval", defaults.Sweeper.OverdueInterval)
	v.SetDefault("sweeper.relayInterval", defaults.Sweeper.RelayInterval)
	v.SetDefault("rateLimit.redeemPerMinute", defaults.RateLimit.RedeemPerMinute)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var p Policy
	if err := v.Unmarshal(&p); err != nil {
		return nil, err
	}
	if err := validatePolicy(p); err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(normalizePolicy(p))

	if !fileLoaded {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var updated Policy
		if err := v.Unmarshal(&updated); err != nil {
			log.Warn("policy reload failed", zap.Error(err))
			return
		}
		if err := validatePolicy(updated); err != nil {
			log.Warn("invalid policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(normalizePolicy(updated))
		log.Info("policy reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *PolicyHolder) Get() Policy {
	return h.current.Load().(Policy)
}

func validatePolicy(p Policy) error {
	prefix := strings.TrimSpace(p.AccessCode.Prefix)
	if prefix == "" || len(prefix) > 8 {
		return errors.New("accessCode.prefix must be 1-8 characters")
	}
	for _, r := range prefix {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return errors.New("accessCode.prefix must be letters only")
		}
	}
	if p.AccessCode.TTL <= 0 {
		return errors.New("accessCode.ttl must be positive")
	}
	if p.RateLimit.RedeemPerMinute <= 0 {
		return errors.New("rateLimit.redeemPerMinute must be positive")
	}
	return nil
}

func normalizePolicy(p Policy) Policy {
	p.AccessCode.Prefix = strings.ToUpper(strings.TrimSpace(p.AccessCode.Prefix))
	if p.Session.ProfileCacheTTL <= 0 {
		p.Session.ProfileCacheTTL = DefaultPolicy().Session.ProfileCacheTTL
	}
	if p.Session.ProfileCacheTTL > maxProfileCacheTTL {
		p.Session.ProfileCacheTTL = maxProfileCacheTTL
	}
	if p.Sweeper.OverdueInterval <= 0 {
		p.Sweeper.OverdueInterval = DefaultPolicy().Sweeper.OverdueInterval
	}
	if p.Sweeper.RelayInterval <= 0 {
		p.Sweeper.RelayInterval = DefaultPolicy().Sweeper.RelayInterval
	}
	return p
}
