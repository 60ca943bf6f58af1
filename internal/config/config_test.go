// Package config provides configuration management for promptlib.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// ConfigSuite is a test suite for config operations.
type ConfigSuite struct {
	suite.Suite
	tempDir     string
	origHomeDir string
	origDataDir string
}

func (s *ConfigSuite) SetupTest() {
	var err error
	s.tempDir, err = os.MkdirTemp("", "config-test-*")
	s.Require().NoError(err)

	// Save and override HOME
	s.origHomeDir = os.Getenv("HOME")
	s.origDataDir = os.Getenv("PROMPTLIB_DATA_DIR")
	os.Setenv("HOME", s.tempDir)
	os.Unsetenv("PROMPTLIB_DATA_DIR")
}

func (s *ConfigSuite) TearDownTest() {
	os.Setenv("HOME", s.origHomeDir)
	if s.origDataDir != "" {
		os.Setenv("PROMPTLIB_DATA_DIR", s.origDataDir)
	}
	os.RemoveAll(s.tempDir)
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

// TestDefault tests default configuration values.
func (s *ConfigSuite) TestDefault() {
	cfg := Default()

	s.Equal(DefaultBridgePort, cfg.BridgePort)
	s.Equal(DefaultDBDriver, cfg.DBDriver)
	s.Equal(DefaultScorer, cfg.Scorer)
	s.Equal(DefaultMigrationPolicy, cfg.MigrationPolicy)
	s.Equal(4, cfg.MaxConns)
	s.Equal(0.3, cfg.SearchThreshold)
	s.Equal(30*time.Second, cfg.SyncTimeout)
	s.Equal(8, cfg.OutboxMaxAttempts)
	s.True(cfg.BridgeEnabled)
	s.False(cfg.RemoteEnabled())
}

// TestDataDir tests data directory path.
func (s *ConfigSuite) TestDataDir() {
	s.Contains(DataDir(), ".promptlib")

	os.Setenv("PROMPTLIB_DATA_DIR", filepath.Join(s.tempDir, "custom"))
	defer os.Unsetenv("PROMPTLIB_DATA_DIR")
	s.Equal(filepath.Join(s.tempDir, "custom"), DataDir())
}

// TestDBPath tests database path.
func (s *ConfigSuite) TestDBPath() {
	s.Contains(DBPath(), "promptlib.db")
}

// TestTemplatesPath tests the user template catalog path.
func (s *ConfigSuite) TestTemplatesPath() {
	s.Equal(filepath.Join(DataDir(), "templates.yaml"), TemplatesPath())
	s.Equal(TemplatesPath(), Default().TemplatesPath)
}

// TestSettingsPath tests settings file path.
func (s *ConfigSuite) TestSettingsPath() {
	s.Contains(SettingsPath(), "settings.json")
}

// TestEnsureAll tests full initialization.
func (s *ConfigSuite) TestEnsureAll() {
	s.NoError(EnsureAll())

	info, err := os.Stat(DataDir())
	s.NoError(err)
	s.True(info.IsDir())

	_, err = os.Stat(SettingsPath())
	s.NoError(err)

	// Second call should not error (file exists)
	s.NoError(EnsureSettings())
}

// TestLoad_TableDriven tests configuration loading with various scenarios.
func (s *ConfigSuite) TestLoad_TableDriven() {
	tests := []struct {
		name            string
		settingsJSON    string
		expectedPort    int
		expectedScorer  string
		expectedTimeout time.Duration
	}{
		{
			name:            "no settings file",
			expectedPort:    DefaultBridgePort,
			expectedScorer:  DefaultScorer,
			expectedTimeout: 30 * time.Second,
		},
		{
			name:            "custom port",
			settingsJSON:    `{"PROMPTLIB_BRIDGE_PORT": 38888}`,
			expectedPort:    38888,
			expectedScorer:  DefaultScorer,
			expectedTimeout: 30 * time.Second,
		},
		{
			name:            "custom scorer and timeout",
			settingsJSON:    `{"PROMPTLIB_SEARCH_SCORER": "subsequence", "PROMPTLIB_SYNC_TIMEOUT_SEC": 5}`,
			expectedPort:    DefaultBridgePort,
			expectedScorer:  "subsequence",
			expectedTimeout: 5 * time.Second,
		},
		{
			name:            "invalid JSON returns defaults",
			settingsJSON:    `{invalid}`,
			expectedPort:    DefaultBridgePort,
			expectedScorer:  DefaultScorer,
			expectedTimeout: 30 * time.Second,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			tempDir, err := os.MkdirTemp("", "config-test-*")
			s.Require().NoError(err)
			defer os.RemoveAll(tempDir)

			os.Setenv("HOME", tempDir)

			err = os.MkdirAll(filepath.Join(tempDir, ".promptlib"), 0750)
			s.Require().NoError(err)

			if tt.settingsJSON != "" {
				writeErr := os.WriteFile(
					filepath.Join(tempDir, ".promptlib", "settings.json"),
					[]byte(tt.settingsJSON),
					0600,
				)
				s.Require().NoError(writeErr)
			}

			cfg, err := Load()
			s.NoError(err)
			s.NotNil(cfg)
			s.Equal(tt.expectedPort, cfg.BridgePort)
			s.Equal(tt.expectedScorer, cfg.Scorer)
			s.Equal(tt.expectedTimeout, cfg.SyncTimeout)
		})
	}
}

// TestLoad_EnvOverride tests that environment variables win over the settings file.
func (s *ConfigSuite) TestLoad_EnvOverride() {
	s.Require().NoError(EnsureDataDir())
	s.Require().NoError(os.WriteFile(SettingsPath(), []byte(`{"PROMPTLIB_BRIDGE_PORT": 1111}`), 0600))

	os.Setenv("PROMPTLIB_BRIDGE_PORT", "2222")
	os.Setenv("PROMPTLIB_SYNC_TIMEOUT", "90s")
	defer os.Unsetenv("PROMPTLIB_BRIDGE_PORT")
	defer os.Unsetenv("PROMPTLIB_SYNC_TIMEOUT")

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal(2222, cfg.BridgePort)
	s.Equal(90*time.Second, cfg.SyncTimeout)
}

// TestLoad_BridgeAccess reads the bridge origin list and token from the environment.
func (s *ConfigSuite) TestLoad_BridgeAccess() {
	os.Setenv("PROMPTLIB_BRIDGE_ORIGINS", "chrome-extension://abc,moz-extension://def")
	os.Setenv("PROMPTLIB_BRIDGE_TOKEN", "secret")
	defer os.Unsetenv("PROMPTLIB_BRIDGE_ORIGINS")
	defer os.Unsetenv("PROMPTLIB_BRIDGE_TOKEN")

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal([]string{"chrome-extension://abc", "moz-extension://def"}, cfg.BridgeOrigins)
	s.Equal("secret", cfg.BridgeToken)
}

func TestNormalize(t *testing.T) {
	cfg := &Config{DBDriver: " Postgres ", SearchThreshold: 4}
	cfg.normalize()

	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 0.3, cfg.SearchThreshold)
	assert.Equal(t, DefaultScorer, cfg.Scorer)
	assert.Equal(t, 4, cfg.MaxConns)
	assert.Equal(t, 1, cfg.OutboxConcurrency)
}

func TestRemoteEnabled(t *testing.T) {
	cfg := Default()
	cfg.SupabaseURL = "https://example.supabase.co"
	assert.False(t, cfg.RemoteEnabled())
	cfg.SupabaseKey = "anon"
	assert.True(t, cfg.RemoteEnabled())
}
