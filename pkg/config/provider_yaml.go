package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	config, err := ParseYAML(cfgFile)
	if err != nil {
		return nil, err
	}

	y.config = config
	return config, nil
}

// ParseYAML decodes, completes and validates a YAML configuration document
func ParseYAML(data []byte) (*ConfigData, error) {
	// Load into temporary struct with YAML tags
	var yamlConfig ConfigYAML
	if err := yaml.Unmarshal(data, &yamlConfig); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	config := &ConfigData{
		Server: ServerData{
			ListenAddr: yamlConfig.Server.ListenAddr,
			Port:       yamlConfig.Server.Port,
			Cert:       yamlConfig.Server.Cert,
			Key:        yamlConfig.Server.Key,
			EnableCORS: yamlConfig.Server.EnableCORS,
		},
		Dataset: DatasetData{
			Backend: yamlConfig.Dataset.Backend,
			Path:    yamlConfig.Dataset.Path,
			Reload:  yamlConfig.Dataset.Reload,
		},
		Defaults: DefaultsData{
			Ratio:         yamlConfig.Defaults.Ratio,
			ExponentMode:  yamlConfig.Defaults.ExponentMode,
			Concentration: yamlConfig.Defaults.Concentration,
			MuSource:      yamlConfig.Defaults.MuSource,
			Step:          yamlConfig.Defaults.Step,
			Tolerance:     yamlConfig.Defaults.Tolerance,
			MaxIterations: yamlConfig.Defaults.MaxIterations,
			FitMean:       yamlConfig.Defaults.FitMean,
			Methods:       yamlConfig.Defaults.Methods,
			Timeout:       yamlConfig.Defaults.Timeout,
		},
		Cache: CacheData{
			Backend:       yamlConfig.Cache.Backend,
			RedisAddr:     yamlConfig.Cache.RedisAddr,
			RedisPassword: yamlConfig.Cache.RedisPassword,
			RedisDB:       yamlConfig.Cache.RedisDB,
			TTL:           yamlConfig.Cache.TTL,
		},
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// GetServer returns the REST server configuration
func (y *YAMLProvider) GetServer() (*ServerData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &y.config.Server, nil
}

// GetDataset returns the dataset configuration
func (y *YAMLProvider) GetDataset() (*DatasetData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &y.config.Dataset, nil
}

// GetDefaults returns the computation defaults
func (y *YAMLProvider) GetDefaults() (*DefaultsData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &y.config.Defaults, nil
}

// GetCache returns the result cache configuration
func (y *YAMLProvider) GetCache() (*CacheData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &y.config.Cache, nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

// YAML-specific structs with the hyphenated keys used in configuration files
type ConfigYAML struct {
	Server   ServerYAML   `yaml:"server"`
	Dataset  DatasetYAML  `yaml:"dataset"`
	Defaults DefaultsYAML `yaml:"defaults,omitempty"`
	Cache    CacheYAML    `yaml:"cache,omitempty"`
}

type ServerYAML struct {
	ListenAddr string `yaml:"listen-addr,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	Cert       string `yaml:"cert,omitempty"`
	Key        string `yaml:"key,omitempty"`
	EnableCORS bool   `yaml:"enable-cors,omitempty"`
}

type DatasetYAML struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	Reload  string `yaml:"reload,omitempty"`
}

type DefaultsYAML struct {
	Ratio         float64  `yaml:"ratio,omitempty"`
	ExponentMode  string   `yaml:"exponent-mode,omitempty"`
	Concentration string   `yaml:"concentration,omitempty"`
	MuSource      string   `yaml:"mu-source,omitempty"`
	Step          float64  `yaml:"step,omitempty"`
	Tolerance     float64  `yaml:"tolerance,omitempty"`
	MaxIterations int      `yaml:"max-iterations,omitempty"`
	FitMean       bool     `yaml:"fit-mean,omitempty"`
	Methods       []string `yaml:"methods,omitempty"`
	Timeout       string   `yaml:"timeout,omitempty"`
}

type CacheYAML struct {
	Backend       string `yaml:"backend,omitempty"`
	RedisAddr     string `yaml:"redis-addr,omitempty"`
	RedisPassword string `yaml:"redis-password,omitempty"`
	RedisDB       int    `yaml:"redis-db,omitempty"`
	TTL           string `yaml:"ttl,omitempty"`
}
