package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingConfig is the hot-reloadable billing policy read from billing.yml.
type BillingConfig struct {
	Author                string           `mapstructure:"author"`
	TimeZone              string           `mapstructure:"timeZone"`
	ErrorMessageMaxLength int              `mapstructure:"errorMessageMaxLength"`
	BatchLockTTL          time.Duration    `mapstructure:"batchLockTTL"`
	VolumeDiscounts       []VolumeDiscount `mapstructure:"volumeDiscounts"`
}

// VolumeDiscount configures period-level discounts for one product.
type VolumeDiscount struct {
	Product string       `mapstructure:"product"`
	Tiers   []VolumeTier `mapstructure:"tiers"`
}

// VolumeTier applies Percent off once a product's monthly quantity reaches MinQuantity.
type VolumeTier struct {
	MinQuantity float64 `mapstructure:"minQuantity"`
	Percent     int     `mapstructure:"percent"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Author:                "ifxbilling",
		TimeZone:              "America/New_York",
		ErrorMessageMaxLength: 2000,
		BatchLockTTL:          30 * time.Minute,
	}
}

// Location returns the billing time zone, falling back to UTC.
func (c BillingConfig) Location() *time.Location {
	name := strings.TrimSpace(c.TimeZone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DiscountFor returns the configured tiers for a product name.
func (c BillingConfig) DiscountFor(product string) (VolumeDiscount, bool) {
	for _, d := range c.VolumeDiscounts {
		if strings.EqualFold(strings.TrimSpace(d.Product), strings.TrimSpace(product)) {
			return d, true
		}
	}
	return VolumeDiscount{}, false
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/ifxbilling")
	v.AddConfigPath(".")

	v.SetEnvPrefix("IFXBILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.author", defaults.Author)
	v.SetDefault("billing.timeZone", defaults.TimeZone)
	v.SetDefault("billing.errorMessageMaxLength", defaults.ErrorMessageMaxLength)
	v.SetDefault("billing.batchLockTTL", defaults.BatchLockTTL)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticBillingConfigHolder wraps a fixed configuration.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *BillingConfigHolder) Get() BillingConfig {
	if h == nil {
		return DefaultBillingConfig()
	}
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if strings.TrimSpace(cfg.Author) == "" {
		return errors.New("billing.author cannot be empty")
	}
	if cfg.ErrorMessageMaxLength <= 0 {
		return errors.New("billing.errorMessageMaxLength must be positive")
	}
	if _, err := time.LoadLocation(strings.TrimSpace(cfg.TimeZone)); err != nil {
		return fmt.Errorf("billing.timeZone: %w", err)
	}
	for _, d := range cfg.VolumeDiscounts {
		if strings.TrimSpace(d.Product) == "" {
			return errors.New("billing.volumeDiscounts product cannot be empty")
		}
		for _, tier := range d.Tiers {
			if tier.Percent <= 0 || tier.Percent > 100 {
				return fmt.Errorf("billing.volumeDiscounts %s: percent %d out of range", d.Product, tier.Percent)
			}
			if tier.MinQuantity < 0 {
				return fmt.Errorf("billing.volumeDiscounts %s: negative minQuantity", d.Product)
			}
		}
	}
	return nil
}
