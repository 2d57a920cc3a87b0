package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/storage"
)

const (
	commandUseName               = "server"
	commandShortDescription      = "Run the CMS admin console"
	commandLongDescription       = "Serve the CMS admin console in front of the shop backend"
	unexpectedArgumentsMessage   = "unexpected command arguments"
	commandInitializationFailure = "failed to configure command"
	flagNotDefinedMessage        = "flag %s not defined"
	environmentConfigurationErr  = "failed to apply environment configuration"

	flagNameApplicationAddress = "app-addr"
	flagNameBackendBaseURL     = "backend-base-url"
	flagNameAssetBaseURL       = "asset-base-url"
	flagNameRealtimeURL        = "realtime-url"
	flagNameSessionSecret      = "session-secret"
	flagNameSecureCookie       = "secure-cookie"
	flagNameDatabaseDriver     = "db-driver"
	flagNameDatabaseDSN        = "db-dsn"
	flagNameAllowedOrigin      = "allowed-origin"
	flagNameJournalRetention   = "journal-retention"
	flagNameConsoleConfig      = "console-config"

	environmentKeyApplicationAddress = "APP_ADDR"
	environmentKeyBackendBaseURL     = "BACKEND_BASE_URL"
	environmentKeyAssetBaseURL       = "ASSET_BASE_URL"
	environmentKeyRealtimeURL        = "REALTIME_URL"
	environmentKeySessionSecret      = "SESSION_SECRET"
	environmentKeySecureCookie       = "SECURE_COOKIE"
	environmentKeyDatabaseDriver     = "DB_DRIVER"
	environmentKeyDatabaseDSN        = "DB_DSN"
	environmentKeyAllowedOrigin      = "ALLOWED_ORIGIN"
	environmentKeyJournalRetention   = "JOURNAL_RETENTION"
	environmentKeyConsoleConfig      = "CONSOLE_CONFIG"

	defaultApplicationAddress = ":8080"
	defaultDatabaseDriver     = storage.DriverNameSQLite
	defaultDatabaseDSN        = "file:cmsconsole.db?_pragma=busy_timeout(5000)"
	defaultAllowedOrigin      = "http://localhost:8080"
	defaultJournalRetention   = 30 * 24 * time.Hour
)

// DatabaseOpener opens the activity journal database.
type DatabaseOpener func(storage.Config) (*gorm.DB, error)

// ServerApplication constructs and executes the console commands.
type ServerApplication struct {
	configurationLoader *viper.Viper
	databaseOpener      DatabaseOpener
}

type flagBinding struct {
	environmentKey string
	flagName       string
	persistent     bool
}

var flagBindings = []flagBinding{
	{environmentKey: environmentKeyBackendBaseURL, flagName: flagNameBackendBaseURL, persistent: true},
	{environmentKey: environmentKeyAssetBaseURL, flagName: flagNameAssetBaseURL, persistent: true},
	{environmentKey: environmentKeyApplicationAddress, flagName: flagNameApplicationAddress},
	{environmentKey: environmentKeyRealtimeURL, flagName: flagNameRealtimeURL},
	{environmentKey: environmentKeySessionSecret, flagName: flagNameSessionSecret},
	{environmentKey: environmentKeySecureCookie, flagName: flagNameSecureCookie},
	{environmentKey: environmentKeyDatabaseDriver, flagName: flagNameDatabaseDriver},
	{environmentKey: environmentKeyDatabaseDSN, flagName: flagNameDatabaseDSN},
	{environmentKey: environmentKeyAllowedOrigin, flagName: flagNameAllowedOrigin},
	{environmentKey: environmentKeyJournalRetention, flagName: flagNameJournalRetention},
	{environmentKey: environmentKeyConsoleConfig, flagName: flagNameConsoleConfig},
}

// NewServerApplication creates a ServerApplication with default dependencies.
func NewServerApplication() *ServerApplication {
	return &ServerApplication{
		configurationLoader: viper.New(),
		databaseOpener:      storage.OpenDatabase,
	}
}

// WithDatabaseOpener overrides the database opener dependency.
func (application *ServerApplication) WithDatabaseOpener(databaseOpener DatabaseOpener) *ServerApplication {
	application.databaseOpener = databaseOpener
	return application
}

// Command builds the Cobra command tree.
func (application *ServerApplication) Command() (*cobra.Command, error) {
	rootCommand := &cobra.Command{
		Use:   commandUseName,
		Short: commandShortDescription,
		Long:  commandLongDescription,
		RunE:  application.runCommand,
	}

	if configurationErr := application.configureCommand(rootCommand); configurationErr != nil {
		return nil, configurationErr
	}
	rootCommand.AddCommand(application.tablesCommand())

	return rootCommand, nil
}

func (application *ServerApplication) configureCommand(command *cobra.Command) error {
	application.configurationLoader.SetDefault(environmentKeyApplicationAddress, defaultApplicationAddress)
	application.configurationLoader.SetDefault(environmentKeyDatabaseDriver, defaultDatabaseDriver)
	application.configurationLoader.SetDefault(environmentKeyDatabaseDSN, defaultDatabaseDSN)
	application.configurationLoader.SetDefault(environmentKeyAllowedOrigin, defaultAllowedOrigin)
	application.configurationLoader.SetDefault(environmentKeyJournalRetention, defaultJournalRetention)
	application.configurationLoader.AutomaticEnv()

	persistentFlags := command.PersistentFlags()
	persistentFlags.String(flagNameBackendBaseURL, "", "base URL of the shop backend")
	persistentFlags.String(flagNameAssetBaseURL, "", "base URL for uploaded images, videos and documents")

	commandFlags := command.Flags()
	commandFlags.String(flagNameApplicationAddress, defaultApplicationAddress, "address for the HTTP server to listen on")
	commandFlags.String(flagNameRealtimeURL, "", "Socket.IO URL of the backend push channel")
	commandFlags.String(flagNameSessionSecret, "", "key signing the session cookie (at least 32 bytes)")
	commandFlags.Bool(flagNameSecureCookie, false, "mark the session cookie Secure")
	commandFlags.String(flagNameDatabaseDriver, defaultDatabaseDriver, "activity journal driver (sqlite or postgres)")
	commandFlags.String(flagNameDatabaseDSN, defaultDatabaseDSN, "activity journal data source name")
	commandFlags.String(flagNameAllowedOrigin, defaultAllowedOrigin, "origin allowed to call the JSON API with credentials")
	commandFlags.Duration(flagNameJournalRetention, defaultJournalRetention, "how long activity entries are kept")
	commandFlags.String(flagNameConsoleConfig, "", "YAML file describing the table screens and sidebar")

	for _, binding := range flagBindings {
		flagSet := commandFlags
		if binding.persistent {
			flagSet = persistentFlags
		}
		if bindErr := application.bindFlag(flagSet, binding.environmentKey, binding.flagName); bindErr != nil {
			return bindErr
		}
		if environmentErr := application.applyEnvironmentConfiguration(flagSet, binding.environmentKey, binding.flagName); environmentErr != nil {
			return environmentErr
		}
	}

	if markErr := command.MarkPersistentFlagRequired(flagNameBackendBaseURL); markErr != nil {
		return markErr
	}

	if markErr := command.MarkFlagRequired(flagNameSessionSecret); markErr != nil {
		return markErr
	}

	return nil
}

func (application *ServerApplication) bindFlag(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	flag := flagSet.Lookup(flagName)
	if flag == nil {
		return fmt.Errorf(flagNotDefinedMessage, flagName)
	}

	if bindErr := application.configurationLoader.BindPFlag(environmentKey, flag); bindErr != nil {
		return bindErr
	}

	return nil
}

func (application *ServerApplication) applyEnvironmentConfiguration(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	environmentValue, environmentFound := os.LookupEnv(environmentKey)
	if !environmentFound {
		return nil
	}

	if setErr := flagSet.Set(flagName, environmentValue); setErr != nil {
		return fmt.Errorf("%s: %w", environmentConfigurationErr, setErr)
	}

	return nil
}

func (application *ServerApplication) runCommand(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf("%s: %s", unexpectedArgumentsMessage, strings.Join(arguments, " "))
	}

	serverConfig := application.serverConfig()
	if validationErr := serverConfig.Validate(); validationErr != nil {
		return validationErr
	}

	return application.serve(command.Context(), serverConfig)
}

func main() {
	application := NewServerApplication()
	rootCommand, commandErr := application.Command()
	if commandErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", commandInitializationFailure, commandErr)
		os.Exit(1)
	}

	if executeErr := rootCommand.Execute(); executeErr != nil {
		os.Exit(1)
	}
}
