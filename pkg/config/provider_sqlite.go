package config

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/chrissnell/designflood/pkg/migrate"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MigrationProvider returns the configuration schema migrations.
func MigrationProvider() *migrate.FSProvider {
	return migrate.NewFSProvider(migrations, "migrations", "config_migrations")
}

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider creates a new SQLite configuration provider, creating the
// configuration tables when they are missing
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	m := migrate.NewMigrator(db, MigrationProvider(), nil)
	if err := m.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create configuration tables: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	server, err := s.GetServer()
	if err != nil {
		return nil, fmt.Errorf("failed to load server config: %w", err)
	}
	config.Server = *server

	dataset, err := s.GetDataset()
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset config: %w", err)
	}
	config.Dataset = *dataset

	defaults, err := s.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	config.Defaults = *defaults

	cache, err := s.GetCache()
	if err != nil {
		return nil, fmt.Errorf("failed to load cache config: %w", err)
	}
	config.Cache = *cache

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// GetServer returns the REST server configuration from the database
func (s *SQLiteProvider) GetServer() (*ServerData, error) {
	query := `
		SELECT listen_addr, port, cert, key, enable_cors
		FROM server_configs
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
	`

	var server ServerData
	var listenAddr, cert, key sql.NullString
	var port sql.NullInt64
	err := s.db.QueryRow(query).Scan(&listenAddr, &port, &cert, &key, &server.EnableCORS)
	if errors.Is(err, sql.ErrNoRows) {
		return &server, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query server config: %w", err)
	}
	server.ListenAddr = listenAddr.String
	server.Port = int(port.Int64)
	server.Cert = cert.String
	server.Key = key.String
	return &server, nil
}

// GetDataset returns the dataset configuration from the database
func (s *SQLiteProvider) GetDataset() (*DatasetData, error) {
	query := `
		SELECT backend, path, reload
		FROM dataset_configs
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
	`

	var dataset DatasetData
	var backend, path, reload sql.NullString
	err := s.db.QueryRow(query).Scan(&backend, &path, &reload)
	if errors.Is(err, sql.ErrNoRows) {
		return &dataset, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query dataset config: %w", err)
	}
	dataset.Backend = backend.String
	dataset.Path = path.String
	dataset.Reload = reload.String
	return &dataset, nil
}

// GetDefaults returns the computation defaults from the database
func (s *SQLiteProvider) GetDefaults() (*DefaultsData, error) {
	query := `
		SELECT ratio, exponent_mode, concentration, mu_source, step,
		       tolerance, max_iterations, fit_mean, methods, timeout
		FROM defaults_configs
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
	`

	var d DefaultsData
	var ratio, step, tolerance sql.NullFloat64
	var mode, concentration, muSource, methods, timeout sql.NullString
	var maxIterations sql.NullInt64
	err := s.db.QueryRow(query).Scan(&ratio, &mode, &concentration, &muSource, &step,
		&tolerance, &maxIterations, &d.FitMean, &methods, &timeout)
	if errors.Is(err, sql.ErrNoRows) {
		return &d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query defaults: %w", err)
	}

	d.Ratio = ratio.Float64
	d.ExponentMode = mode.String
	d.Concentration = concentration.String
	d.MuSource = muSource.String
	d.Step = step.Float64
	d.Tolerance = tolerance.Float64
	d.MaxIterations = int(maxIterations.Int64)
	if methods.String != "" {
		d.Methods = strings.Split(methods.String, ",")
	}
	d.Timeout = timeout.String
	return &d, nil
}

// GetCache returns the result cache configuration from the database
func (s *SQLiteProvider) GetCache() (*CacheData, error) {
	query := `
		SELECT backend, redis_addr, redis_password, redis_db, ttl
		FROM cache_configs
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
	`

	var cache CacheData
	var backend, addr, password, ttl sql.NullString
	var db sql.NullInt64
	err := s.db.QueryRow(query).Scan(&backend, &addr, &password, &db, &ttl)
	if errors.Is(err, sql.ErrNoRows) {
		return &cache, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cache config: %w", err)
	}
	cache.Backend = backend.String
	cache.RedisAddr = addr.String
	cache.RedisPassword = password.String
	cache.RedisDB = int(db.Int64)
	cache.TTL = ttl.String
	return &cache, nil
}

// IsReadOnly returns false since SQLite supports SaveConfig
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig replaces the stored configuration
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT OR IGNORE INTO configs (name) VALUES ('default')`); err != nil {
		return fmt.Errorf("failed to insert config: %w", err)
	}
	var configID int64
	if err := tx.QueryRow(`SELECT id FROM configs WHERE name = 'default'`).Scan(&configID); err != nil {
		return fmt.Errorf("failed to get config ID: %w", err)
	}

	srv := configData.Server
	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO server_configs (config_id, listen_addr, port, cert, key, enable_cors)
		VALUES (?, ?, ?, ?, ?, ?)`,
		configID, nullString(srv.ListenAddr), srv.Port, nullString(srv.Cert), nullString(srv.Key), srv.EnableCORS); err != nil {
		return fmt.Errorf("failed to save server config: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO dataset_configs (config_id, backend, path, reload) VALUES (?, ?, ?, ?)`,
		configID, nullString(configData.Dataset.Backend), nullString(configData.Dataset.Path),
		nullString(configData.Dataset.Reload)); err != nil {
		return fmt.Errorf("failed to save dataset config: %w", err)
	}

	d := configData.Defaults
	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO defaults_configs (config_id, ratio, exponent_mode, concentration, mu_source,
			step, tolerance, max_iterations, fit_mean, methods, timeout)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		configID, d.Ratio, nullString(d.ExponentMode), nullString(d.Concentration), nullString(d.MuSource),
		d.Step, d.Tolerance, d.MaxIterations, d.FitMean, nullString(strings.Join(d.Methods, ",")),
		nullString(d.Timeout)); err != nil {
		return fmt.Errorf("failed to save defaults: %w", err)
	}

	c := configData.Cache
	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO cache_configs (config_id, backend, redis_addr, redis_password, redis_db, ttl)
		VALUES (?, ?, ?, ?, ?, ?)`,
		configID, nullString(c.Backend), nullString(c.RedisAddr), nullString(c.RedisPassword), c.RedisDB,
		nullString(c.TTL)); err != nil {
		return fmt.Errorf("failed to save cache config: %w", err)
	}

	return tx.Commit()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
