package config

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration, with defaults applied and validated
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetServer() (*ServerData, error)
	GetDataset() (*DatasetData, error)
	GetDefaults() (*DefaultsData, error)
	GetCache() (*CacheData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Server   ServerData   `json:"server"`
	Dataset  DatasetData  `json:"dataset"`
	Defaults DefaultsData `json:"defaults"`
	Cache    CacheData    `json:"cache"`
}

// ServerData holds the REST server settings
type ServerData struct {
	ListenAddr string `json:"listen_addr,omitempty"`
	Port       int    `json:"port,omitempty"`
	Cert       string `json:"cert,omitempty"`
	Key        string `json:"key,omitempty"`
	EnableCORS bool   `json:"enable_cors,omitempty"`
}

// DatasetData points at the rainfall atlas and hydrologic region tables
type DatasetData struct {
	// Backend is "yaml" or "sqlite".
	Backend string `json:"backend"`
	Path    string `json:"path"`
	// Reload is an optional cron spec, seconds first, on which the dataset
	// is read again.
	Reload string `json:"reload,omitempty"`
}

// DefaultsData holds the computation settings used when a request leaves
// them unset
type DefaultsData struct {
	// Ratio is the Cs/Cv ratio of storm rainfall.
	Ratio float64 `json:"ratio,omitempty"`
	// ExponentMode is "derived" or "atlas".
	ExponentMode string `json:"exponent_mode,omitempty"`
	// Concentration is "fit" or "chart".
	Concentration string `json:"concentration,omitempty"`
	// MuSource is "storm" or "region".
	MuSource      string   `json:"mu_source,omitempty"`
	Step          float64  `json:"step,omitempty"`
	Tolerance     float64  `json:"tolerance,omitempty"`
	MaxIterations int      `json:"max_iterations,omitempty"`
	FitMean       bool     `json:"fit_mean,omitempty"`
	Methods       []string `json:"methods,omitempty"`
	// Timeout bounds one computation, as a Go duration string.
	Timeout string `json:"timeout,omitempty"`
}

// CacheData configures the design flood result cache
type CacheData struct {
	// Backend is "", "memory" or "redis"; empty disables caching.
	Backend       string `json:"backend,omitempty"`
	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty"`
	// TTL is a Go duration string.
	TTL string `json:"ttl,omitempty"`
}
