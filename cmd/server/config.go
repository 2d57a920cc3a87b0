package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/httpapi"
)

const (
	missingConfigurationMessage = "missing required configuration"
	invalidConfigurationMessage = "invalid configuration"
	consoleConfigReadMessage    = "read console config"
	consoleConfigDecodeMessage  = "decode console config"
	minimumSessionSecretLength  = 32
)

// ErrInvalidConfiguration indicates a configuration value that is present but unusable.
var ErrInvalidConfiguration = errors.New(invalidConfigurationMessage)

// ServerConfig captures configuration needed to run the console.
type ServerConfig struct {
	ApplicationAddress string
	BackendBaseURL     string
	AssetBaseURL       string
	RealtimeURL        string
	SessionSecret      string
	SecureCookie       bool
	DatabaseDriver     string
	DatabaseDSN        string
	AllowedOrigin      string
	JournalRetention   time.Duration
	ConsoleConfigPath  string
}

func (application *ServerApplication) serverConfig() ServerConfig {
	loader := application.configurationLoader
	return ServerConfig{
		ApplicationAddress: strings.TrimSpace(loader.GetString(environmentKeyApplicationAddress)),
		BackendBaseURL:     strings.TrimSpace(loader.GetString(environmentKeyBackendBaseURL)),
		AssetBaseURL:       strings.TrimSpace(loader.GetString(environmentKeyAssetBaseURL)),
		RealtimeURL:        strings.TrimSpace(loader.GetString(environmentKeyRealtimeURL)),
		SessionSecret:      strings.TrimSpace(loader.GetString(environmentKeySessionSecret)),
		SecureCookie:       loader.GetBool(environmentKeySecureCookie),
		DatabaseDriver:     strings.TrimSpace(loader.GetString(environmentKeyDatabaseDriver)),
		DatabaseDSN:        strings.TrimSpace(loader.GetString(environmentKeyDatabaseDSN)),
		AllowedOrigin:      strings.TrimSpace(loader.GetString(environmentKeyAllowedOrigin)),
		JournalRetention:   loader.GetDuration(environmentKeyJournalRetention),
		ConsoleConfigPath:  strings.TrimSpace(loader.GetString(environmentKeyConsoleConfig)),
	}
}

// Validate reports every missing or malformed value at once.
func (configuration ServerConfig) Validate() error {
	var missingParameters []string
	if configuration.BackendBaseURL == "" {
		missingParameters = append(missingParameters, flagNameBackendBaseURL)
	}
	if configuration.SessionSecret == "" {
		missingParameters = append(missingParameters, flagNameSessionSecret)
	}
	if configuration.DatabaseDSN == "" {
		missingParameters = append(missingParameters, flagNameDatabaseDSN)
	}

	var problems []error
	if len(missingParameters) > 0 {
		problems = append(problems, fmt.Errorf("%s: %s", missingConfigurationMessage, strings.Join(missingParameters, ", ")))
	}
	if configuration.SessionSecret != "" && len(configuration.SessionSecret) < minimumSessionSecretLength {
		problems = append(problems, fmt.Errorf("%w: %s must be at least %d bytes", ErrInvalidConfiguration, flagNameSessionSecret, minimumSessionSecretLength))
	}
	if configuration.BackendBaseURL != "" && !isAbsoluteURL(configuration.BackendBaseURL) {
		problems = append(problems, fmt.Errorf("%w: %s %q", ErrInvalidConfiguration, flagNameBackendBaseURL, configuration.BackendBaseURL))
	}
	if configuration.RealtimeURL != "" && !isAbsoluteURL(configuration.RealtimeURL) {
		problems = append(problems, fmt.Errorf("%w: %s %q", ErrInvalidConfiguration, flagNameRealtimeURL, configuration.RealtimeURL))
	}
	if configuration.JournalRetention < 0 {
		problems = append(problems, fmt.Errorf("%w: %s must not be negative", ErrInvalidConfiguration, flagNameJournalRetention))
	}
	return errors.Join(problems...)
}

func isAbsoluteURL(raw string) bool {
	parsed, parseErr := url.Parse(raw)
	return parseErr == nil && parsed.Scheme != "" && parsed.Host != ""
}

// loadConsoleConfig reads the table screens from a YAML file. An empty path or a file without
// tables yields the built-in screens.
func loadConsoleConfig(path string) (httpapi.ConsoleConfig, error) {
	if path == "" {
		return httpapi.DefaultConsoleConfig(), nil
	}
	loader := viper.New()
	loader.SetConfigFile(path)
	if readErr := loader.ReadInConfig(); readErr != nil {
		return httpapi.ConsoleConfig{}, fmt.Errorf("%s: %w", consoleConfigReadMessage, readErr)
	}
	var configuration httpapi.ConsoleConfig
	if decodeErr := loader.Unmarshal(&configuration); decodeErr != nil {
		return httpapi.ConsoleConfig{}, fmt.Errorf("%s: %w", consoleConfigDecodeMessage, decodeErr)
	}
	if len(configuration.Tables) == 0 {
		return httpapi.DefaultConsoleConfig(), nil
	}
	return configuration, nil
}
