package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"connection": { "uri": "radio://0/90/2M/E7E7E7E701" },
		"sim": { "gridSize": 6.5 }
	}`)

	require.NoError(t, Load(dir))

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "radio://0/90/2M/E7E7E7E701", viper.GetString("connection.uri"))
	assert.Equal(t, 6.5, GetSimConfig().GridSize)
	assert.Equal(t, 60, GetSimConfig().FrameRate)
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./logs", viper.GetString("logsDir"))
	assert.Equal(t, "radio://0/80/2M/E7E7E7E7E7", viper.GetString("connection.uri"))
	assert.Equal(t, "", viper.GetString("codegen.templatePath"))
	assert.Equal(t, "http://localhost:5000", viper.GetString("api.serverUrl"))
	assert.Equal(t, 10*time.Second, viper.GetDuration("api.timeout"))
	assert.Equal(t, "127.0.0.1:8080", viper.GetString("server.listen"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, "flight-metrics", viper.GetString("influx.bucket"))

	cc := GetCompilerConfig()
	assert.Equal(t, 8, cc.MaxLoopDepth)
	assert.Equal(t, 10000, cc.MaxInstructions)

	sc := GetSimConfig()
	assert.Equal(t, 10.0, sc.GridSize)
	assert.Equal(t, 60, sc.FrameRate)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")

	var notFound viper.ConfigFileNotFoundError
	assert.True(t, errors.As(err, &notFound))

	// defaults are still registered
	assert.Equal(t, "memory", GetStorageConfig().Type)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("FLIGHTDECK_SIM_GRIDSIZE", "4")
	t.Setenv("FLIGHTDECK_STORAGE_TYPE", "sqlite")

	require.NoError(t, Load(writeConfig(t, `{}`)))
	assert.Equal(t, 4.0, GetSimConfig().GridSize)
	assert.Equal(t, "sqlite", GetStorageConfig().Type)
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, "./runs", cfg.Memory.OutputDir)
	assert.Equal(t, "gzip", cfg.Memory.Compress)
	assert.Equal(t, 3*time.Minute, cfg.SQLite.DumpInterval)
	assert.Equal(t, "flightdeck", cfg.Postgres.Database)
	assert.Equal(t, "disable", cfg.Postgres.SSLMode)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"storage": {
			"type": "sqlite",
			"memory": { "outputDir": "/tmp/out", "compress": "zstd" },
			"sqlite": { "dumpInterval": "10m", "path": "/tmp/runs.db" },
			"websocket": { "url": "ws://viewer:9000/ingest", "secret": "s3cret" }
		}
	}`)
	require.NoError(t, Load(dir))

	sc := GetStorageConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/out", sc.Memory.OutputDir)
	assert.Equal(t, "zstd", sc.Memory.Compress)
	assert.Equal(t, 10*time.Minute, sc.SQLite.DumpInterval)
	assert.Equal(t, "/tmp/runs.db", sc.SQLite.Path)
	assert.Equal(t, "ws://viewer:9000/ingest", sc.WebSocket.URL)
	assert.Equal(t, "s3cret", sc.WebSocket.Secret)
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetOTelConfig()
	assert.Equal(t, false, cfg.Enabled)
	assert.Equal(t, "flightdeck", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, "", cfg.Endpoint)
	assert.Equal(t, true, cfg.Insecure)
}

func TestGetOTelConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"otel": {
			"enabled": true,
			"serviceName": "my-service",
			"batchTimeout": "30s",
			"endpoint": "localhost:4317",
			"insecure": false
		}
	}`)
	require.NoError(t, Load(dir))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "my-service", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4317", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}

func TestGetInfluxAndGraylogConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"influx": { "enabled": true, "host": "metrics", "org": "lab" },
		"graylog": { "enabled": true, "address": "gray:12201" }
	}`)
	require.NoError(t, Load(dir))

	ic := GetInfluxConfig()
	assert.True(t, ic.Enabled)
	assert.Equal(t, "metrics", ic.Host)
	assert.Equal(t, "8086", ic.Port)
	assert.Equal(t, "lab", ic.Org)

	gc := GetGraylogConfig()
	assert.True(t, gc.Enabled)
	assert.Equal(t, "gray:12201", gc.Address)
}
