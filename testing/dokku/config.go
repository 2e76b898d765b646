package dokkutesting

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	dokkuApi "github.com/alex-galey/dokku-deployer/internal/dokku-api"
	"github.com/onsi/ginkgo/v2"
)

// TestConfig describes the real Dokku host integration suites run against.
type TestConfig struct {
	DokkuHost      string
	DokkuPort      int
	DokkuUser      string
	SSHKeyPath     string
	LogLevel       slog.Level
	CommandTimeout time.Duration
	BuildTimeout   time.Duration
	TestAppPrefix  string
	KeepTestApps   bool
	VerboseOutput  bool
}

// LoadTestConfig reads DOKKU_DEPLOYER_TEST_* variables. An empty host means
// no Dokku server is available.
func LoadTestConfig() *TestConfig {
	config := &TestConfig{
		DokkuHost:      getEnv("DOKKU_DEPLOYER_TEST_HOST", ""),
		DokkuPort:      getIntEnv("DOKKU_DEPLOYER_TEST_PORT", 22),
		DokkuUser:      getEnv("DOKKU_DEPLOYER_TEST_USER", "dokku"),
		SSHKeyPath:     getEnv("DOKKU_DEPLOYER_TEST_SSH_KEY", ""),
		LogLevel:       parseLogLevel(getEnv("DOKKU_DEPLOYER_TEST_LOG_LEVEL", "warn")),
		CommandTimeout: getDurationEnv("DOKKU_DEPLOYER_TEST_COMMAND_TIMEOUT", 30*time.Second),
		BuildTimeout:   getDurationEnv("DOKKU_DEPLOYER_TEST_BUILD_TIMEOUT", 10*time.Minute),
		TestAppPrefix:  getEnv("DOKKU_DEPLOYER_TEST_APP_PREFIX", "test-deployer"),
		KeepTestApps:   getBoolEnv("DOKKU_DEPLOYER_TEST_KEEP_APPS", false),
		VerboseOutput:  getBoolEnv("DOKKU_DEPLOYER_TEST_VERBOSE", false),
	}

	// CI runners are slower to reach the host.
	if os.Getenv("CI") != "" {
		config.CommandTimeout *= 2
	}
	return config
}

// SkipUnlessConfigured skips the current spec when no Dokku host is set.
func (c *TestConfig) SkipUnlessConfigured() {
	if c.DokkuHost == "" {
		ginkgo.Skip("DOKKU_DEPLOYER_TEST_HOST is not set")
	}
}

func (c *TestConfig) CreateLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     c.LogLevel,
		AddSource: c.VerboseOutput,
	}))
}

// CreateSession builds a real SSH-backed session for the configured host.
func (c *TestConfig) CreateSession() (dokkuApi.Session, error) {
	logger := c.CreateLogger()
	sshConfig, err := dokkuApi.NewSSHConfig(c.DokkuHost, c.DokkuPort, c.DokkuUser, c.SSHKeyPath, c.CommandTimeout)
	if err != nil {
		return nil, err
	}
	manager := dokkuApi.NewSSHConnectionManager(sshConfig, dokkuApi.NewSSHAuthService(logger), logger)

	return dokkuApi.NewSession(dokkuApi.SessionConfig{
		CommandTimeout:    c.CommandTimeout,
		StreamTimeout:     c.BuildTimeout,
		Factory:           manager.CommandFactory(),
		TransientExitCode: 255,
	}, logger, nil), nil
}

// AppName returns a unique name for an app created by a test.
func (c *TestConfig) AppName() string {
	return c.TestAppPrefix + "-" + time.Now().Format("20060102150405")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return i
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return defaultValue
		}
		return duration
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return b
	}
	return defaultValue
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
