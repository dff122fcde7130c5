package config

import (
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// CatalogEntry maps one provider product identifier to its entitlement.
// Tier and Period are kept as raw strings here; the catalog service owns
// validation against its own enums.
type CatalogEntry struct {
	ProductID string `mapstructure:"product_id"`
	Tier      string `mapstructure:"tier"`
	Period    string `mapstructure:"period"`
}

type CatalogConfig struct {
	Products []CatalogEntry `mapstructure:"products"`
}

func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Products: []CatalogEntry{
			{ProductID: "basic_monthly", Tier: "BASIC", Period: "MONTHLY"},
			{ProductID: "basic_6mo", Tier: "BASIC", Period: "SIX_MONTHS"},
			{ProductID: "basic_annual", Tier: "BASIC", Period: "ANNUAL"},
			{ProductID: "pro_monthly", Tier: "PRO", Period: "MONTHLY"},
			{ProductID: "pro_6mo", Tier: "PRO", Period: "SIX_MONTHS"},
			{ProductID: "pro_annual", Tier: "PRO", Period: "ANNUAL"},
			{ProductID: "promo_pro_lifetime", Tier: "PRO", Period: "ALL_TIME"},
		},
	}
}

// CatalogHolder exposes the current product catalog and hot-reloads it
// when catalog.yml changes on disk.
type CatalogHolder struct {
	current atomic.Value // holds CatalogConfig
}

func NewCatalogHolder(log *zap.Logger) (*CatalogHolder, error) {
	v := viper.New()

	v.SetConfigName("catalog")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/entitlement/config") // Volume-mounted config
	v.AddConfigPath("/etc/entitlement")            // System config
	v.AddConfigPath(".")                           // Current directory (dev mode)

	v.SetEnvPrefix("ENTITLEMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &CatalogHolder{}
	holder.current.Store(DefaultCatalogConfig())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// No catalog file: run on defaults, classification falls back
		// to the heuristic for unknown products.
		return holder, nil
	}

	if err := holder.reload(v, log); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if err := holder.reload(v, log); err != nil {
			log.Warn("catalog reload failed", zap.String("file", e.Name), zap.Error(err))
		}
	})
	v.WatchConfig()

	return holder, nil
}

func (h *CatalogHolder) reload(v *viper.Viper, log *zap.Logger) error {
	var cfg CatalogConfig
	if err := v.UnmarshalKey("catalog", &cfg); err != nil {
		return err
	}
	if len(cfg.Products) == 0 {
		cfg = DefaultCatalogConfig()
	}
	h.current.Store(cfg)
	log.Info("product catalog loaded", zap.Int("products", len(cfg.Products)))
	return nil
}

// NewStaticCatalogHolder wraps a fixed catalog with no file watching.
func NewStaticCatalogHolder(cfg CatalogConfig) *CatalogHolder {
	holder := &CatalogHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *CatalogHolder) Current() CatalogConfig {
	return h.current.Load().(CatalogConfig)
}
