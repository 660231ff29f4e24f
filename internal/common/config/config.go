// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Auth          AuthConfig              `mapstructure:"auth"`
	Integrations  IntegrationConfig       `mapstructure:"integrations"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Pipeline      PipelineConfig          `mapstructure:"pipeline"`
	Dispatcher    DispatcherConfig        `mapstructure:"dispatcher"`
	Directory     DirectoryConfig         `mapstructure:"directory"`
	Observability ObservabilityConfig     `mapstructure:"observability"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every job worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

// AuthConfig holds the Keycloak client used to introspect caller tokens.
type AuthConfig struct {
	Keycloak struct {
		URL          string `mapstructure:"url"`
		Realm        string `mapstructure:"realm"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
		Timeout      int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"keycloak"`
}

// IntegrationConfig holds the push provider settings.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SNS    struct {
			// PlatformApplicationARN is the FCM/APNs platform application device
			// tokens are registered under.
			PlatformApplicationARN string `mapstructure:"platform_application_arn"`
			// TopicARNPrefix is prepended to topic names, e.g.
			// "arn:aws:sns:eu-west-1:123456789012:".
			TopicARNPrefix string `mapstructure:"topic_arn_prefix"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// PipelineConfig tunes the fan-out.
type PipelineConfig struct {
	FanoutThreshold int  `mapstructure:"fanout_threshold"`
	BatchSize       int  `mapstructure:"batch_size"`
	StoreTimeout    int  `mapstructure:"store_timeout"` // milliseconds
	DirectPush      bool `mapstructure:"direct_push"`
}

// DispatcherConfig tunes the push dispatcher and its Redis stream consumer.
type DispatcherConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Stream          string `mapstructure:"stream"`
	Group           string `mapstructure:"group"`
	Consumer        string `mapstructure:"consumer"`
	Concurrency     int    `mapstructure:"concurrency"`
	ProviderTimeout int    `mapstructure:"provider_timeout"` // milliseconds
	Block           int    `mapstructure:"block"`            // milliseconds
	ClaimIdle       int    `mapstructure:"claim_idle"`       // milliseconds
	SweepInterval   int    `mapstructure:"sweep_interval"`   // milliseconds
	SweepAge        int    `mapstructure:"sweep_age"`        // milliseconds
	SweepLimit      int    `mapstructure:"sweep_limit"`
	LeaseTTL        int    `mapstructure:"lease_ttl"` // milliseconds
}

// DirectoryConfig points the user directory at its Elasticsearch indices.
type DirectoryConfig struct {
	UsersIndex        string `mapstructure:"users_index"`
	UniversitiesIndex string `mapstructure:"universities_index"`
	CacheTTL          int    `mapstructure:"cache_ttl"` // milliseconds
	PageSize          int    `mapstructure:"page_size"`
}

// ObservabilityConfig holds metrics and tracing settings.
type ObservabilityConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	MetricsAddress string `mapstructure:"metrics_address"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}
