package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = `
app:
  http_addr: ":8080"
postgres:
  host: db
  port: 5432
  dbname: orders
checkout:
  currency: USD
  tax_rate: "0.10"
gateway:
  base_url: http://gw
  secret_key: s3cret
  timeout: 5s
notifier:
  kind: log
`

func writeConfig(t *testing.T, name, body string) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	return dir
}

func TestLoad_Base(t *testing.T) {
	dir := writeConfig(t, "base.yaml", testBase)

	cfg, err := Load(dir, "")
	require.NoError(t, err)

	assert.Equal(t, "db", cfg.Postgres.Host)
	assert.Equal(t, 5*time.Second, cfg.Gateway.Timeout)
	rate, err := cfg.TaxRate()
	require.NoError(t, err)
	assert.Equal(t, "0.1", rate.String())
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := writeConfig(t, "base.yaml", testBase)
	t.Setenv("PHOTOSHOP_GATEWAY__SECRET_KEY", "from-env")
	t.Setenv("PHOTOSHOP_POSTGRES__PORT", "6543")

	cfg, err := Load(dir, "")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Gateway.SecretKey)
	assert.Equal(t, 6543, cfg.Postgres.Port)
}

func TestLoad_EnvFileOverlay(t *testing.T) {
	dir := writeConfig(t, "base.yaml", testBase)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prod.yaml"), []byte("checkout:\n  tax_rate: \"0.2\"\n"), 0o600))

	cfg, err := Load(dir, "prod")
	require.NoError(t, err)
	assert.Equal(t, "0.2", cfg.Checkout.TaxRate)
}

func TestLoad_MissingBase(t *testing.T) {
	_, err := Load(t.TempDir(), "")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	dir := writeConfig(t, "base.yaml", testBase)
	cfg, err := Load(dir, "")
	require.NoError(t, err)

	bad := cfg
	bad.Checkout.TaxRate = "-0.1"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Checkout.TaxRate = "ten"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Gateway.SecretKey = ""
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Notifier.Kind = "kafka"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Notifier.Kind = "smtp"
	assert.Error(t, bad.Validate())
}
