package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig carries the operator-tunable billing rules loaded from billing.yml.
type BillingConfig struct {
	Currency              string          `mapstructure:"currency"`
	DueDays               int             `mapstructure:"dueDays"`
	InvoiceNumberTemplate string          `mapstructure:"invoiceNumberTemplate"`
	ReminderCooldown      time.Duration   `mapstructure:"reminderCooldown"`
	MaxBulkSize           int             `mapstructure:"maxBulkSize"`
	ReconcileOverdue      bool            `mapstructure:"reconcileOverdue"`
	MutationRateLimit     RateLimitConfig `mapstructure:"mutationRateLimit"`
	Plans                 []PlanPrice     `mapstructure:"plans"`
}

type RateLimitConfig struct {
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

// PlanPrice is the monthly subscription price of a plan, in centavos.
type PlanPrice struct {
	Code         string `mapstructure:"code"`
	Label        string `mapstructure:"label"`
	MonthlyPrice int64  `mapstructure:"monthlyPrice"`
}

// Plan looks up a plan by code, case-insensitively.
func (c BillingConfig) Plan(code string) (PlanPrice, bool) {
	code = strings.TrimSpace(code)
	for _, p := range c.Plans {
		if strings.EqualFold(p.Code, code) {
			return p, true
		}
	}
	return PlanPrice{}, false
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Currency:              "BRL",
		DueDays:               10,
		InvoiceNumberTemplate: "INV-{YYYY}-{SEQ3}",
		ReminderCooldown:      24 * time.Hour,
		MaxBulkSize:           500,
		ReconcileOverdue:      false,
		MutationRateLimit:     RateLimitConfig{Rate: 5, Burst: 20},
		Plans: []PlanPrice{
			{Code: "STARTER", Label: "Starter", MonthlyPrice: 250_000},
			{Code: "PROFESSIONAL", Label: "Professional", MonthlyPrice: 500_000},
			{Code: "ENTERPRISE", Label: "Enterprise", MonthlyPrice: 1_000_000},
		},
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder returns a holder that never reloads.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("billing.config")

	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/digiurban/config")
	v.AddConfigPath("/etc/digiurban")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DIGIURBAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.currency", defaults.Currency)
	v.SetDefault("billing.dueDays", defaults.DueDays)
	v.SetDefault("billing.invoiceNumberTemplate", defaults.InvoiceNumberTemplate)
	v.SetDefault("billing.reminderCooldown", defaults.ReminderCooldown)
	v.SetDefault("billing.maxBulkSize", defaults.MaxBulkSize)
	v.SetDefault("billing.reconcileOverdue", defaults.ReconcileOverdue)
	v.SetDefault("billing.mutationRateLimit.rate", defaults.MutationRateLimit.Rate)
	v.SetDefault("billing.mutationRateLimit.burst", defaults.MutationRateLimit.Burst)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
		log.Info("billing.yml not found, using defaults")
	}

	cfg, err := decodeBillingConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeBillingConfig(v)
		if err != nil {
			log.Warn("billing config reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func decodeBillingConfig(v *viper.Viper) (BillingConfig, error) {
	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return BillingConfig{}, err
	}
	if len(cfg.Plans) == 0 {
		cfg.Plans = DefaultBillingConfig().Plans
	}
	if err := ValidateBillingConfig(cfg); err != nil {
		return BillingConfig{}, err
	}
	return cfg, nil
}

// ValidateBillingConfig rejects configurations the invoice service cannot run with.
func ValidateBillingConfig(cfg BillingConfig) error {
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("billing.currency cannot be empty")
	}
	if cfg.DueDays <= 0 {
		return errors.New("billing.dueDays must be positive")
	}
	if !strings.Contains(cfg.InvoiceNumberTemplate, "{SEQ") {
		return errors.New("billing.invoiceNumberTemplate must contain a {SEQ} token")
	}
	if cfg.MaxBulkSize <= 0 {
		return errors.New("billing.maxBulkSize must be positive")
	}
	if cfg.ReminderCooldown < 0 {
		return errors.New("billing.reminderCooldown cannot be negative")
	}
	if len(cfg.Plans) == 0 {
		return errors.New("billing.plans cannot be empty")
	}
	seen := make(map[string]struct{}, len(cfg.Plans))
	for _, p := range cfg.Plans {
		code := strings.ToUpper(strings.TrimSpace(p.Code))
		if code == "" {
			return errors.New("billing.plans code cannot be empty")
		}
		if _, ok := seen[code]; ok {
			return fmt.Errorf("billing.plans duplicate code %s", code)
		}
		seen[code] = struct{}{}
		if p.MonthlyPrice <= 0 {
			return fmt.Errorf("billing.plans %s monthlyPrice must be positive", code)
		}
	}
	return nil
}
