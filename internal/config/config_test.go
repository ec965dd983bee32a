package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
firefly:
  url: http://firefly/api/v1
  token: secret
sources:
  ponto:
    enabled: true
    url: https://api.ponto.example
    client_id: id
    client_secret: secret
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, DefaultIntervalHours, cfg.IntervalHours)
	assert.Equal(t, BackendNotes, cfg.Watermark.Backend)
	assert.True(t, cfg.Sources.Ponto.Enabled)
	assert.False(t, cfg.Sources.Pluxee.Enabled)
}

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(`
interval_hours: 12
listen: ":9090"
firefly:
  url: http://firefly/api/v1
  token: secret
watermark:
  backend: sqlite
  sqlite_path: /var/lib/ledgersync/watermarks.db
sources:
  pluxee:
    enabled: true
    url: https://portal.pluxee.example
    username: user
    password: pass
  ofxfile:
    enabled: true
    dir: ~/statements
`))
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.IntervalHours)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, BackendSQLite, cfg.Watermark.Backend)
	assert.Equal(t, "/var/lib/ledgersync/watermarks.db", cfg.Watermark.SQLitePath)
	assert.True(t, cfg.Sources.Pluxee.Enabled)
	assert.True(t, cfg.Sources.OFXFile.Enabled)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("FIREFLY_TOKEN", "env-token")
	t.Setenv("PONTO_CLIENT_SECRET", "env-secret")
	t.Setenv("HOURS_BETWEEN_SYNCS", "3")

	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Firefly.Token)
	assert.Equal(t, "env-secret", cfg.Sources.Ponto.ClientSecret)
	assert.Equal(t, 3, cfg.IntervalHours)
}

func TestParse_SecretsFromEnvOnly(t *testing.T) {
	t.Setenv("FIREFLY_TOKEN", "env-token")
	t.Setenv("PLUXEE_USERNAME", "user")
	t.Setenv("PLUXEE_PASSWORD", "pass")

	cfg, err := Parse([]byte(`
firefly:
  url: http://firefly/api/v1
sources:
  pluxee:
    enabled: true
    url: https://portal.pluxee.example
`))
	require.NoError(t, err)
	assert.Equal(t, "user", cfg.Sources.Pluxee.Username)
}

func TestParse_ValidationErrors(t *testing.T) {
	// Neutralize ambient credentials so the file contents alone decide.
	for _, key := range []string{"FIREFLY_TOKEN", "PONTO_CLIENT_ID", "PONTO_CLIENT_SECRET", "PLUXEE_USERNAME", "PLUXEE_PASSWORD", "HOURS_BETWEEN_SYNCS"} {
		t.Setenv(key, "")
	}

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing firefly url",
			yaml: `
firefly:
  token: secret
sources:
  ofxfile: {enabled: true, dir: /tmp}
`,
			want: "firefly.url is required",
		},
		{
			name: "missing firefly token",
			yaml: `
firefly:
  url: http://firefly/api/v1
sources:
  ofxfile: {enabled: true, dir: /tmp}
`,
			want: "firefly.token is required",
		},
		{
			name: "no sources enabled",
			yaml: `
firefly:
  url: http://firefly/api/v1
  token: secret
`,
			want: "no sources enabled",
		},
		{
			name: "unknown watermark backend",
			yaml: `
firefly:
  url: http://firefly/api/v1
  token: secret
watermark:
  backend: redis
sources:
  ofxfile: {enabled: true, dir: /tmp}
`,
			want: "invalid watermark backend",
		},
		{
			name: "sqlite backend without path",
			yaml: `
firefly:
  url: http://firefly/api/v1
  token: secret
watermark:
  backend: sqlite
sources:
  ofxfile: {enabled: true, dir: /tmp}
`,
			want: "watermark.sqlite_path is required",
		},
		{
			name: "ponto enabled without credentials",
			yaml: `
firefly:
  url: http://firefly/api/v1
  token: secret
sources:
  ponto:
    enabled: true
    url: https://api.ponto.example
`,
			want: "client_id and client_secret are required",
		},
		{
			name: "negative interval",
			yaml: `
interval_hours: -2
firefly:
  url: http://firefly/api/v1
  token: secret
sources:
  ofxfile: {enabled: true, dir: /tmp}
`,
			want: "interval_hours must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://firefly/api/v1", cfg.Firefly.URL)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse([]byte("firefly: [not: a: map"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML config")
}
