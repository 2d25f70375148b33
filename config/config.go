package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del servicio de mercados de atención.
type Config struct {
	Index     IndexConfig     `yaml:"index"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Market    MarketConfig    `yaml:"market"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Gate      GateConfig      `yaml:"gate"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// IndexConfig controla el pipeline del índice.
type IndexConfig struct {
	LiveTickSeconds       int     `yaml:"live_tick_seconds"`
	DemoTickSeconds       int     `yaml:"demo_tick_seconds"`
	ChannelTimeoutSeconds int     `yaml:"channel_timeout_seconds"` // por canal; un canal lento no bloquea el tick
	Scale                 float64 `yaml:"scale"`                   // escala de los canales derivados
	LookbackMinutes       int     `yaml:"lookback_minutes"`        // ventana de actividad que cuenta cada canal
}

// PricingConfig controla la curva logística de precios.
type PricingConfig struct {
	K         float64 `yaml:"k"`
	Liquidity float64 `yaml:"liquidity"` // profundidad constante; más alta = precios más lentos
}

// MarketConfig fija la duración de las ventanas por tipo de mercado.
type MarketConfig struct {
	Window1hMinutes   int `yaml:"window_1h_minutes"`
	Window24hMinutes  int `yaml:"window_24h_minutes"`
	DemoWindowMinutes int `yaml:"demo_window_minutes"`
}

// SchedulerConfig controla el driver periódico.
type SchedulerConfig struct {
	DriverSpec string `yaml:"driver_spec"` // expresión cron con segundos, p.ej. "@every 5s"
	Workers    int    `yaml:"workers"`
}

// ChannelsConfig contiene los base URLs de las fuentes de actividad.
type ChannelsConfig struct {
	HackerNewsBase  string `yaml:"hackernews_base"`
	RedditBase      string `yaml:"reddit_base"`
	RedditUserAgent string `yaml:"reddit_user_agent"`
}

// GateConfig controla qué temas se pueden abrir.
type GateConfig struct {
	Blocklist   []string `yaml:"blocklist"`
	MinActivity float64  `yaml:"min_activity"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// MetricsConfig controla el endpoint de Prometheus.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // vacío = deshabilitado
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// LiveTick devuelve el intervalo entre ticks de eventos reales.
func (c *Config) LiveTick() time.Duration {
	return time.Duration(c.Index.LiveTickSeconds) * time.Second
}

// DemoTick devuelve el intervalo entre ticks de eventos demo.
func (c *Config) DemoTick() time.Duration {
	return time.Duration(c.Index.DemoTickSeconds) * time.Second
}

// ChannelTimeout devuelve el timeout por canal.
func (c *Config) ChannelTimeout() time.Duration {
	return time.Duration(c.Index.ChannelTimeoutSeconds) * time.Second
}

// Lookback devuelve la ventana de actividad de cada canal.
func (c *Config) Lookback() time.Duration {
	return time.Duration(c.Index.LookbackMinutes) * time.Minute
}

// Windows devuelve la duración de las ventanas 1h, 24h y demo.
func (c *Config) Windows() (hour, day, demo time.Duration) {
	return time.Duration(c.Market.Window1hMinutes) * time.Minute,
		time.Duration(c.Market.Window24hMinutes) * time.Minute,
		time.Duration(c.Market.DemoWindowMinutes) * time.Minute
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("ATTENTION_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("REDDIT_USER_AGENT"); v != "" {
		cfg.Channels.RedditUserAgent = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Index.LiveTickSeconds <= 0 {
		cfg.Index.LiveTickSeconds = 60
	}
	if cfg.Index.DemoTickSeconds <= 0 {
		cfg.Index.DemoTickSeconds = 15
	}
	if cfg.Index.ChannelTimeoutSeconds <= 0 {
		cfg.Index.ChannelTimeoutSeconds = 8
	}
	if cfg.Index.Scale <= 0 {
		cfg.Index.Scale = 1
	}
	if cfg.Index.LookbackMinutes <= 0 {
		cfg.Index.LookbackMinutes = 60
	}
	if cfg.Pricing.K <= 0 {
		cfg.Pricing.K = 1
	}
	if cfg.Pricing.Liquidity <= 0 {
		cfg.Pricing.Liquidity = 20
	}
	if cfg.Market.Window1hMinutes <= 0 {
		cfg.Market.Window1hMinutes = 60
	}
	if cfg.Market.Window24hMinutes <= 0 {
		cfg.Market.Window24hMinutes = 1440
	}
	if cfg.Market.DemoWindowMinutes <= 0 {
		cfg.Market.DemoWindowMinutes = 2
	}
	if cfg.Scheduler.DriverSpec == "" {
		cfg.Scheduler.DriverSpec = "@every 5s"
	}
	if cfg.Scheduler.Workers <= 0 {
		cfg.Scheduler.Workers = 8
	}
	if cfg.Channels.HackerNewsBase == "" {
		cfg.Channels.HackerNewsBase = "https://hn.algolia.com/api/v1"
	}
	if cfg.Channels.RedditBase == "" {
		cfg.Channels.RedditBase = "https://www.reddit.com"
	}
	if cfg.Channels.RedditUserAgent == "" {
		cfg.Channels.RedditUserAgent = "attention-markets/1.0"
	}
	if cfg.Gate.MinActivity <= 0 {
		cfg.Gate.MinActivity = 1
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "attention.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
