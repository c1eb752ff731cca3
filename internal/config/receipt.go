package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ReceiptConfig describes the issuing organization printed on receipts,
// statements and notification emails.
type ReceiptConfig struct {
	OrganizationName   string   `mapstructure:"organizationName"`
	RegistrationNumber string   `mapstructure:"registrationNumber"`
	AddressLines       []string `mapstructure:"addressLines"`
	SupportEmail       string   `mapstructure:"supportEmail"`
	Currency           string   `mapstructure:"currency"`
	Signatory          string   `mapstructure:"signatory"`
	PortalURL          string   `mapstructure:"portalURL"`
}

func DefaultReceiptConfig() ReceiptConfig {
	return ReceiptConfig{
		OrganizationName: "Donara Foundation",
		AddressLines:     []string{},
		SupportEmail:     "support@donara.local",
		Currency:         "CAD",
		PortalURL:        "http://localhost:3000",
	}
}

type ReceiptConfigHolder struct {
	current atomic.Value // holds ReceiptConfig
}

// NewStaticReceiptConfigHolder wraps a fixed config without file watching.
func NewStaticReceiptConfigHolder(cfg ReceiptConfig) *ReceiptConfigHolder {
	holder := &ReceiptConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewReceiptConfigHolder(log *zap.Logger) (*ReceiptConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.receipt")

	v := viper.New()

	v.SetConfigName("receipt")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/donara/config")
	v.AddConfigPath("/etc/donara")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DONARA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultReceiptConfig()
	v.SetDefault("receipt.organizationName", defaults.OrganizationName)
	v.SetDefault("receipt.addressLines", defaults.AddressLines)
	v.SetDefault("receipt.supportEmail", defaults.SupportEmail)
	v.SetDefault("receipt.currency", defaults.Currency)
	v.SetDefault("receipt.portalURL", defaults.PortalURL)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg ReceiptConfig
	if err := v.UnmarshalKey("receipt", &cfg); err != nil {
		return nil, err
	}
	if err := validateReceiptConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticReceiptConfigHolder(cfg)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated ReceiptConfig
			if err := v.UnmarshalKey("receipt", &updated); err != nil {
				log.Warn("receipt config reload failed", zap.Error(err))
				return
			}
			if err := validateReceiptConfig(updated); err != nil {
				log.Warn("invalid receipt config ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("receipt config reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *ReceiptConfigHolder) Get() ReceiptConfig {
	if h == nil {
		return DefaultReceiptConfig()
	}
	return h.current.Load().(ReceiptConfig)
}

func validateReceiptConfig(cfg ReceiptConfig) error {
	if strings.TrimSpace(cfg.OrganizationName) == "" {
		return errors.New("receipt.organizationName cannot be empty")
	}
	if len(strings.TrimSpace(cfg.Currency)) != 3 {
		return errors.New("receipt.currency must be an ISO 4217 code")
	}
	return nil
}
