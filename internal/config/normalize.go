package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDatabase(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeAuth()
	if err := c.normalizeOracle(); err != nil {
		return err
	}
	if err := c.normalizeBinarize(); err != nil {
		return err
	}
	c.normalizeSessions()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.UploadDir) == "" {
		c.Paths.UploadDir = filepath.Join(c.Paths.DataDir, defaultUploadDirName)
	}
	if c.Paths.UploadDir, err = expandPath(c.Paths.UploadDir); err != nil {
		return fmt.Errorf("paths.upload_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		c.Paths.TempDir = filepath.Join(c.Paths.DataDir, defaultTempDirName)
	}
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, defaultLogDirName)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDatabase() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case "", "sqlite3":
		c.Database.Driver = defaultDatabaseDriver
	case "postgresql", "pgx":
		c.Database.Driver = "postgres"
	}
	c.Database.DSN = strings.TrimSpace(c.Database.DSN)
	if c.Database.DSN == "" {
		if value, ok := os.LookupEnv("FINGERID_DATABASE_DSN"); ok {
			c.Database.DSN = strings.TrimSpace(value)
		}
	}
	if c.Database.DSN == "" && c.Database.Driver == defaultDatabaseDriver {
		c.Database.DSN = filepath.Join(c.Paths.DataDir, defaultDatabaseFile)
	}
	if c.Database.Driver == defaultDatabaseDriver && !strings.HasPrefix(c.Database.DSN, "file:") {
		var err error
		if c.Database.DSN, err = expandPath(c.Database.DSN); err != nil {
			return fmt.Errorf("database.dsn: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = defaultMaxUploadMB
	}
}

func (c *Config) normalizeAuth() {
	c.Auth.JWTSecret = strings.TrimSpace(c.Auth.JWTSecret)
	if c.Auth.JWTSecret == "" {
		if value, ok := os.LookupEnv("FINGERID_JWT_SECRET"); ok {
			c.Auth.JWTSecret = strings.TrimSpace(value)
		}
	}
	if c.Auth.TokenTTLHours <= 0 {
		c.Auth.TokenTTLHours = defaultTokenTTLHours
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = defaultBcryptCost
	}
}

func (c *Config) normalizeOracle() error {
	c.Oracle.Python = strings.TrimSpace(c.Oracle.Python)
	if c.Oracle.Python == "" {
		c.Oracle.Python = defaultPython
	}
	c.Oracle.Script = strings.TrimSpace(c.Oracle.Script)
	if c.Oracle.Script == "" {
		c.Oracle.Script = defaultOracleScript
	}
	var err error
	if c.Oracle.Script, err = expandPath(c.Oracle.Script); err != nil {
		return fmt.Errorf("oracle.script: %w", err)
	}
	if c.Oracle.ModelPath = strings.TrimSpace(c.Oracle.ModelPath); c.Oracle.ModelPath != "" {
		if c.Oracle.ModelPath, err = expandPath(c.Oracle.ModelPath); err != nil {
			return fmt.Errorf("oracle.model_path: %w", err)
		}
	}
	c.Oracle.Device = strings.ToLower(strings.TrimSpace(c.Oracle.Device))
	if c.Oracle.TimeoutSeconds == 0 {
		c.Oracle.TimeoutSeconds = defaultOracleTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeBinarize() error {
	c.Binarize.Python = strings.TrimSpace(c.Binarize.Python)
	if c.Binarize.Python == "" {
		c.Binarize.Python = c.Oracle.Python
	}
	c.Binarize.Script = strings.TrimSpace(c.Binarize.Script)
	if c.Binarize.Script == "" {
		c.Binarize.Script = defaultBinarizeScript
	}
	var err error
	if c.Binarize.Script, err = expandPath(c.Binarize.Script); err != nil {
		return fmt.Errorf("binarize.script: %w", err)
	}
	if c.Binarize.TimeoutSeconds == 0 {
		c.Binarize.TimeoutSeconds = defaultBinarizeTimeoutSecond
	}
	return nil
}

func (c *Config) normalizeSessions() {
	c.Sessions.RedisAddr = strings.TrimSpace(c.Sessions.RedisAddr)
	if c.Sessions.RedisAddr == "" {
		if value, ok := os.LookupEnv("FINGERID_REDIS_ADDR"); ok {
			c.Sessions.RedisAddr = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNotifyTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
