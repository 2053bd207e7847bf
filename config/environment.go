package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	appEnvVar              = "APP_ENV"
	environmentDevelopment = "development"
	environmentProduction  = "production"
	environmentStaging     = "staging"

	apiKeyEnvVar    = "BYBIT_API_KEY"
	apiSecretEnvVar = "BYBIT_API_SECRET"
)

const defaultConfigPath = "config/config.yml"

var envConfigPaths = map[string]string{
	environmentProduction: "config/config.production.yml",
	environmentStaging:    "config/config.staging.yml",
}

var environmentAliases = map[string]string{
	"prod": environmentProduction,
	"stag": environmentStaging,
}

// getAppEnvironment reads the application environment from APP_ENV and
// defaults to development when no value is provided.
func getAppEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(appEnvVar)))
	if env == "" {
		return environmentDevelopment
	}
	if canonical, ok := environmentAliases[env]; ok {
		return canonical
	}
	return env
}

// resolveEnvSpecificPath selects an environment specific configuration file
// when one is available for the current environment.
func resolveEnvSpecificPath(path, defaultPath string, envPaths map[string]string) string {
	if path == "" {
		path = defaultPath
	}

	env := getAppEnvironment()
	if envPath, ok := envPaths[env]; ok {
		if path == defaultPath || path == envPath {
			return envPath
		}
	}

	return path
}

// AppEnvironment exposes the current application environment as configured
// through the APP_ENV environment variable.
func AppEnvironment() string {
	return getAppEnvironment()
}

// Credentials resolves the venue API key pair from the environment. Keys are
// never read from YAML so a checked-in config file cannot leak them.
func Credentials() (key, secret string, err error) {
	key = strings.TrimSpace(os.Getenv(apiKeyEnvVar))
	secret = strings.TrimSpace(os.Getenv(apiSecretEnvVar))
	if key == "" || secret == "" {
		return "", "", fmt.Errorf("%s and %s must be set", apiKeyEnvVar, apiSecretEnvVar)
	}
	return key, secret, nil
}
