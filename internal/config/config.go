package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Broker  BrokerConfig
	Grid    GridConfig
	Runtime RuntimeConfig
}

type SessionKeys struct {
	ApiKey string
	Secret string
}

type BrokerConfig struct {
	BaseUrl       string
	WSUrl         string
	Trade         SessionKeys
	UpsideHedge   SessionKeys
	DownsideHedge SessionKeys
}

// GridConfig is validated once at startup and never mutated afterwards.
type GridConfig struct {
	Symbol      string
	HedgeSymbol string

	CenterPrice  float64
	Steps        int
	Spacing      float64
	TargetSpread float64
	HedgeSpread  float64
	QtyMain      float64
	QtyHedge     float64

	Mode           string // both | upside | downside
	Hedge          bool
	HedgeStopCount int

	PollInterval   time.Duration
	FeedStaleAfter time.Duration
	StateFile      string
	HistoryLimit   int
}

type RuntimeConfig struct {
	MetricsAddr string
	Log         LogConfig
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.AddConfigPath("configs")
		viper.SetConfigName("config")
	}
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	viper.SetDefault("grid.mode", "both")
	viper.SetDefault("grid.poll_interval", "1s")
	viper.SetDefault("grid.feed_stale_after", "5s")
	viper.SetDefault("grid.history_limit", 200)
	viper.SetDefault("grid.state_file", "data/gridbot-state.json")

	cfg := &Config{}

	cfg.Broker = BrokerConfig{
		BaseUrl: viper.GetString("broker.base_url"),
		WSUrl:   viper.GetString("broker.ws_url"),
		Trade: SessionKeys{
			ApiKey: envSub("broker.trade.api_key"),
			Secret: envSub("broker.trade.secret"),
		},
		UpsideHedge: SessionKeys{
			ApiKey: envSub("broker.upside_hedge.api_key"),
			Secret: envSub("broker.upside_hedge.secret"),
		},
		DownsideHedge: SessionKeys{
			ApiKey: envSub("broker.downside_hedge.api_key"),
			Secret: envSub("broker.downside_hedge.secret"),
		},
	}

	cfg.Grid = GridConfig{
		Symbol:         viper.GetString("grid.symbol"),
		HedgeSymbol:    viper.GetString("grid.hedge_symbol"),
		CenterPrice:    viper.GetFloat64("grid.center_price"),
		Steps:          viper.GetInt("grid.steps"),
		Spacing:        viper.GetFloat64("grid.spacing"),
		TargetSpread:   viper.GetFloat64("grid.target_spread"),
		HedgeSpread:    viper.GetFloat64("grid.hedge_spread"),
		QtyMain:        viper.GetFloat64("grid.qty_main"),
		QtyHedge:       viper.GetFloat64("grid.qty_hedge"),
		Mode:           strings.ToLower(viper.GetString("grid.mode")),
		Hedge:          viper.GetBool("grid.hedge"),
		HedgeStopCount: viper.GetInt("grid.hedge_stop_count"),
		PollInterval:   viper.GetDuration("grid.poll_interval"),
		FeedStaleAfter: viper.GetDuration("grid.feed_stale_after"),
		StateFile:      viper.GetString("grid.state_file"),
		HistoryLimit:   viper.GetInt("grid.history_limit"),
	}

	cfg.Runtime = RuntimeConfig{
		MetricsAddr: viper.GetString("runtime.metrics_addr"),
		Log: LogConfig{
			Level:      viper.GetString("runtime.log.level"),
			Format:     viper.GetString("runtime.log.format"),
			File:       viper.GetString("runtime.log.file"),
			MaxSize:    viper.GetInt("runtime.log.max_size"),
			MaxBackups: viper.GetInt("runtime.log.max_backups"),
			MaxAge:     viper.GetInt("runtime.log.max_age"),
			Compress:   viper.GetBool("runtime.log.compress"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Broker.BaseUrl == "" {
		return fmt.Errorf("broker.base_url is required")
	}
	if c.Broker.WSUrl == "" {
		return fmt.Errorf("broker.ws_url is required")
	}
	if c.Broker.Trade.ApiKey == "" || c.Broker.Trade.Secret == "" {
		return fmt.Errorf("broker.trade credentials are required")
	}

	g := c.Grid
	if g.Symbol == "" {
		return fmt.Errorf("grid.symbol is required")
	}
	if g.CenterPrice <= 0 {
		return fmt.Errorf("grid.center_price must be positive, got %v", g.CenterPrice)
	}
	if g.Steps <= 0 {
		return fmt.Errorf("grid.steps must be positive, got %d", g.Steps)
	}
	if g.Spacing <= 0 {
		return fmt.Errorf("grid.spacing must be positive, got %v", g.Spacing)
	}
	if g.TargetSpread <= 0 {
		return fmt.Errorf("grid.target_spread must be positive, got %v", g.TargetSpread)
	}
	if g.QtyMain <= 0 {
		return fmt.Errorf("grid.qty_main must be positive, got %v", g.QtyMain)
	}
	switch g.Mode {
	case "both", "upside", "downside":
	default:
		return fmt.Errorf("grid.mode must be one of both/upside/downside, got %q", g.Mode)
	}
	if g.Hedge {
		if g.HedgeSymbol == "" {
			return fmt.Errorf("grid.hedge_symbol is required when hedging is enabled")
		}
		// Hedge sessions may share an account with each other but never run
		// through the trade account.
		if c.Broker.UpsideHedge.ApiKey == "" || c.Broker.DownsideHedge.ApiKey == "" {
			return fmt.Errorf("broker hedge session credentials are required when hedging is enabled")
		}
		if c.Broker.UpsideHedge.ApiKey == c.Broker.Trade.ApiKey || c.Broker.DownsideHedge.ApiKey == c.Broker.Trade.ApiKey {
			return fmt.Errorf("hedge sessions must not use the trade account credentials")
		}
		if g.HedgeSpread <= 0 {
			return fmt.Errorf("grid.hedge_spread must be positive, got %v", g.HedgeSpread)
		}
		if g.QtyHedge <= 0 {
			return fmt.Errorf("grid.qty_hedge must be positive, got %v", g.QtyHedge)
		}
		if g.HedgeStopCount <= 0 {
			return fmt.Errorf("grid.hedge_stop_count must be positive, got %d", g.HedgeStopCount)
		}
	}
	if g.PollInterval <= 0 {
		return fmt.Errorf("grid.poll_interval must be positive, got %v", g.PollInterval)
	}
	if g.HistoryLimit <= 0 {
		return fmt.Errorf("grid.history_limit must be positive, got %d", g.HistoryLimit)
	}
	return nil
}

func envSub(key string) string {
	val := viper.GetString(key)
	if val == "" {
		return ""
	}

	re := regexp.MustCompile(`\$\{(\w+)\}`)
	return re.ReplaceAllStringFunc(val, func(match string) string {
		envKey := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(envKey)
	})
}
