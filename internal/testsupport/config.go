package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"fingerid/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The oracle and binarize commands point at /bin/sh scripts that succeed
// trivially until an option replaces them.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.UploadDir = filepath.Join(base, "data", "uploads")
	cfgVal.Paths.TempDir = filepath.Join(base, "data", "tmp")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Database.Driver = "sqlite"
	cfgVal.Database.DSN = filepath.Join(base, "data", "fingerid.db")
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Auth.JWTSecret = "test-secret-please-ignore"
	cfgVal.Auth.BcryptCost = 4
	cfgVal.Oracle.Python = "/bin/sh"
	cfgVal.Binarize.Python = "/bin/sh"
	cfgVal.Binarize.Enabled = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	builder.cfg.Oracle.Script = builder.writeScript("recognition.sh", OracleScript(`{"success":true,"is_match":true,"match_probability":0.9,"different_probability":0.1,"confidence":0.9,"model_loaded":true}`))
	builder.cfg.Binarize.Script = builder.writeScript("binarize.sh", BinarizeCopyScript)

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithOracleOutput makes the oracle script print payload and exit 0.
func WithOracleOutput(payload string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Oracle.Script = b.writeScript("recognition.sh", OracleScript(payload))
	}
}

// WithOracleScript installs a raw shell script as the oracle.
func WithOracleScript(body string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Oracle.Script = b.writeScript("recognition.sh", body)
	}
}

// WithOracleTimeout overrides the oracle deadline in seconds.
func WithOracleTimeout(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Oracle.TimeoutSeconds = seconds
	}
}

// WithBinarize enables the binarization transform backed by a copy script.
func WithBinarize() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Binarize.Enabled = true
	}
}

// OracleScript returns a shell script body that ignores its arguments and
// prints payload.
func OracleScript(payload string) string {
	return "#!/bin/sh\ncat <<'JSON'\n" + payload + "\nJSON\n"
}

// BinarizeCopyScript copies -i to -o, standing in for the real transform.
const BinarizeCopyScript = `#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    -i) in="$2"; shift 2 ;;
    -o) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
cp "$in" "$out"
`

func (b *configBuilder) writeScript(name, body string) string {
	dir := filepath.Join(b.baseDir, "scripts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		b.t.Fatalf("mkdir scripts: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		b.t.Fatalf("write script %s: %v", name, err)
	}
	return path
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
