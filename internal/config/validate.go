package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateSubprocesses(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAuth() error {
	if c.Auth.JWTSecret == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/fingerid/config.toml"
		}
		return fmt.Errorf("auth.jwt_secret is required. Set FINGERID_JWT_SECRET env var or edit %s (create with 'fingerid config init')", defaultPath)
	}
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("auth.jwt_secret must be at least 16 characters")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return errors.New("auth.bcrypt_cost must be between 4 and 31")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn must be set when database.driver is postgres")
		}
	default:
		return fmt.Errorf("database.driver: unsupported value %q (want sqlite or postgres)", c.Database.Driver)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.MaxUploadMB > 100 {
		return errors.New("server.max_upload_mb must not exceed 100")
	}
	return nil
}

func (c *Config) validateSubprocesses() error {
	if c.Oracle.TimeoutSeconds < 0 {
		return errors.New("oracle.timeout_seconds must be positive")
	}
	switch c.Oracle.Device {
	case "", "cpu", "cuda":
	default:
		return fmt.Errorf("oracle.device: unsupported value %q (want cpu or cuda)", c.Oracle.Device)
	}
	if c.Binarize.TimeoutSeconds < 0 {
		return errors.New("binarize.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
