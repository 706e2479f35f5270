package clickhouse

import "time"

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

// ClientConfig holds ClickHouse configuration. It doubles as the
// clickhouse section of the service config.
type ClientConfig struct {
	Host            string        `yaml:"host" default:"localhost"`
	Port            int           `yaml:"port" default:"9000" validate:"gt=0,lte=65535"`
	Database        string        `yaml:"database" default:"stockcast" validate:"required"`
	User            string        `yaml:"user" default:"default"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns" default:"10"`
	MaxIdleConns    int           `yaml:"max_idle_conns" default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"5m"`
	DialTimeout     time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	UseHTTP         bool          `yaml:"use_http"`
	AsyncInsert     bool          `yaml:"async_insert"`
	WaitForAsync    bool          `yaml:"wait_for_async_insert"`
	MaxExecTime     time.Duration `yaml:"max_execution_time"`
	// CandleTable is the source of close prices, one row per (symbol, timeframe, bucket).
	CandleTable   string `yaml:"candle_table" default:"candles"`
	ForecastTable string `yaml:"forecast_table" default:"forecasts"`
	// InitSchema creates the forecast table on startup.
	InitSchema bool `yaml:"init_schema"`
}

// WithConfig copies a whole config section over the defaults.
func WithConfig(cfg ClientConfig) ClientOption {
	return func(c *ClientConfig) {
		*c = cfg
	}
}

// WithHost sets database host.
func WithHost(host string) ClientOption {
	return func(c *ClientConfig) {
		c.Host = host
	}
}

// WithPort sets database port.
func WithPort(port int) ClientOption {
	return func(c *ClientConfig) {
		c.Port = port
	}
}

// WithDatabase sets database name.
func WithDatabase(database string) ClientOption {
	return func(c *ClientConfig) {
		c.Database = database
	}
}

// WithCredentials sets username and password.
func WithCredentials(user, password string) ClientOption {
	return func(c *ClientConfig) {
		c.User = user
		c.Password = password
	}
}

// WithHTTP enables HTTP protocol instead of native.
func WithHTTP(useHTTP bool) ClientOption {
	return func(c *ClientConfig) {
		c.UseHTTP = useHTTP
	}
}

// WithAsyncInsert configures async_insert and wait behavior.
func WithAsyncInsert(enabled, wait bool) ClientOption {
	return func(c *ClientConfig) {
		c.AsyncInsert = enabled
		c.WaitForAsync = wait
	}
}
