package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// writeConfigDir lays out a config directory with the given local.yaml body
// and pins the test to the local environment.
func writeConfigDir(t *testing.T, local string) string {
	t.Helper()
	t.Setenv("APP_ENVIRONMENT", "local")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "local.yaml"), []byte(local), 0o644))
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	dir := writeConfigDir(t, "{}\n")

	s, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", s.App.Host)
	assert.Equal(t, 8000, s.App.Port)
	assert.Equal(t, 1, s.TodoHandler.StoreInterval)
	assert.Equal(t, ".session_secret", s.Session.SecretFile)
	assert.Equal(t, "memory", s.Store.Driver)
	assert.Equal(t, "info", s.Log.Level)
	assert.Equal(t, "text", s.Log.Format)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := writeConfigDir(t, `
app:
  port: 9001
store:
  driver: sqlite
  sqlite:
    path: /tmp/test.db
`)

	s, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9001, s.App.Port)
	assert.Equal(t, "127.0.0.1", s.App.Host, "untouched defaults survive the merge")
	assert.Equal(t, "sqlite", s.Store.Driver)
	assert.Equal(t, "/tmp/test.db", s.Store.SQLite.Path)
}

func TestLoad_EnvOverridesEverything(t *testing.T) {
	dir := writeConfigDir(t, "app:\n  port: 9001\n")
	t.Setenv("APP_APP__PORT", "5001")
	t.Setenv("APP_STORE__REDIS__HOST", "redis.internal")
	t.Setenv("APP_TODO_HANDLER__STORE_INTERVAL", "3")

	s, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 5001, s.App.Port)
	assert.Equal(t, "redis.internal", s.Store.Redis.Host)
	assert.Equal(t, 3, s.TodoHandler.StoreInterval)
}

func TestLoad_PicksEnvironmentFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "production.yaml"), []byte("app:\n  port: 80\n"), 0o644))
	t.Setenv("APP_ENVIRONMENT", "production")

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 80, s.App.Port)
}

func TestLoad_UnknownEnvironment(t *testing.T) {
	t.Setenv("APP_ENVIRONMENT", "staging")

	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "use either local or production")
}

func TestLoad_MissingEnvironmentFile(t *testing.T) {
	t.Setenv("APP_ENVIRONMENT", "local")

	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestParseEnvironment(t *testing.T) {
	env, err := ParseEnvironment("")
	require.NoError(t, err)
	assert.Equal(t, EnvLocal, env)

	env, err = ParseEnvironment("PRODUCTION")
	require.NoError(t, err)
	assert.Equal(t, EnvProduction, env)

	_, err = ParseEnvironment("qa")
	assert.Error(t, err)
}

func TestSettings_Addrs(t *testing.T) {
	app := AppSettings{Host: "0.0.0.0", Port: 8000}
	assert.Equal(t, "0.0.0.0:8000", app.Addr())

	redis := RedisSettings{Host: "::1", Port: 6379}
	assert.Equal(t, "[::1]:6379", redis.Addr())
}

func TestTodoHandlerSettings_Interval(t *testing.T) {
	assert.Equal(t, "30s", TodoHandlerSettings{StoreInterval: 30}.Interval().String())
}

// Environment overrides only bind to keys viper already knows, so every
// Settings field needs a default in config.default.yaml; a default without a
// field is a dead key.
func TestDefaultConfig_EnumeratesEverySettingsKey(t *testing.T) {
	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(defaultConfig, &raw))

	fromFile := map[string]struct{}{}
	flattenYAML("", raw, fromFile)

	fromStruct := map[string]struct{}{}
	flattenFields("", reflect.TypeOf(Settings{}), fromStruct)

	assert.Equal(t, fromStruct, fromFile)
}

func flattenYAML(prefix string, node map[string]any, out map[string]struct{}) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flattenYAML(key, child, out)
			continue
		}
		out[key] = struct{}{}
	}
}

func flattenFields(prefix string, typ reflect.Type, out map[string]struct{}) {
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		key := f.Tag.Get("mapstructure")
		if prefix != "" {
			key = prefix + "." + key
		}
		if f.Type.Kind() == reflect.Struct {
			flattenFields(key, f.Type, out)
			continue
		}
		out[key] = struct{}{}
	}
}
