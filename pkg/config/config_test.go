package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("STAFFREG_TEST_NAME", "registry")
	path := writeFile(t, "name: ${STAFFREG_TEST_NAME}\nport: 9000\n")

	var s sample
	require.NoError(t, Load(path, &s))
	assert.Equal(t, sample{Name: "registry", Port: 9000}, s)
}

func TestLoad_KeepsDefaults(t *testing.T) {
	path := writeFile(t, "name: only-name\n")

	s := sample{Port: 8080}
	require.NoError(t, Load(path, &s))
	assert.Equal(t, 8080, s.Port)
	assert.Equal(t, "only-name", s.Name)
}

func TestLoad_ValidationError(t *testing.T) {
	path := writeFile(t, "port: 0\n")
	var s sample
	err := Load(path, &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeFile(t, "port: [\n")
	var s sample
	assert.Error(t, Load(path, &s))
}

func TestLoadOptional_MissingFile(t *testing.T) {
	s := sample{Port: 1}
	loaded, err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &s)
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.Equal(t, 1, s.Port)

	var bad sample
	_, err = LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &bad)
	assert.Error(t, err, "defaults are still validated")
}

func TestLoadOptional_PresentFile(t *testing.T) {
	path := writeFile(t, "port: 7\n")
	var s sample
	loaded, err := LoadOptional(path, &s)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, 7, s.Port)
}
