package config

const (
	defaultDataDir               = "~/.local/share/fingerid"
	defaultUploadDirName         = "uploads"
	defaultTempDirName           = "tmp"
	defaultLogDirName            = "logs"
	defaultBind                  = "127.0.0.1:3000"
	defaultMaxUploadMB           = 10
	defaultDatabaseDriver        = "sqlite"
	defaultDatabaseFile          = "fingerid.db"
	defaultTokenTTLHours         = 8
	defaultBcryptCost            = 10
	defaultPython                = "python"
	defaultOracleScript          = "recognition.py"
	defaultOracleTimeoutSeconds  = 30
	defaultBinarizeScript        = "vein_binarize.py"
	defaultBinarizeTimeoutSecond = 30
	defaultNotifyTimeoutSeconds  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults. Directory and
// DSN fields left empty are derived from the data directory during normalization.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		Server: Server{
			Bind:        defaultBind,
			MaxUploadMB: defaultMaxUploadMB,
		},
		Database: Database{
			Driver: defaultDatabaseDriver,
		},
		Auth: Auth{
			TokenTTLHours: defaultTokenTTLHours,
			BcryptCost:    defaultBcryptCost,
		},
		Oracle: Oracle{
			Python:         defaultPython,
			Script:         defaultOracleScript,
			TimeoutSeconds: defaultOracleTimeoutSeconds,
		},
		Binarize: Binarize{
			Enabled:        true,
			Python:         defaultPython,
			Script:         defaultBinarizeScript,
			TimeoutSeconds: defaultBinarizeTimeoutSecond,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
