package env

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

const ApplicationEnvKey = "ENVIRONMENT"

// Environment is the deployment environment a storefront binary runs in.
type Environment string

const (
	EnvironmentLocal       Environment = "local"
	EnvironmentLocalDocker Environment = "local-docker"
	EnvironmentDevelopment Environment = "development"
	EnvironmentStaging     Environment = "staging"
	EnvironmentProduction  Environment = "production"
)

var supported = []Environment{
	EnvironmentLocal,
	EnvironmentLocalDocker,
	EnvironmentDevelopment,
	EnvironmentStaging,
	EnvironmentProduction,
}

func (e Environment) String() string { return string(e) }

// IsLocal reports whether e is a developer machine, with or without docker compose.
func (e Environment) IsLocal() bool {
	return e == EnvironmentLocal || e == EnvironmentLocalDocker
}

func IsEnvironmentValid(environment string) error {
	if slices.Contains(supported, Environment(environment)) {
		return nil
	}

	names := make([]string, 0, len(supported))
	for _, e := range supported {
		names = append(names, e.String())
	}
	return fmt.Errorf("invalid environment %q: %s must be set to one of %s",
		environment, ApplicationEnvKey, strings.Join(names, ", "))
}

func FromString(environment string) (Environment, error) {
	if err := IsEnvironmentValid(environment); err != nil {
		return "", err
	}
	return Environment(environment), nil
}

// GetApplicationEnv returns the environment if found in env vars and is valid
func GetApplicationEnv() (Environment, error) {
	return FromString(os.Getenv(ApplicationEnvKey))
}

// GetApplicationEnvOrDefault returns the environment if found, else defaults to the specified env
func GetApplicationEnvOrDefault(defaultEnv Environment) Environment {
	e, err := GetApplicationEnv()
	if err != nil {
		return defaultEnv
	}
	return e
}

// GetApplicationEnvSafe returns the environment if found, else defaults to EnvironmentLocal
func GetApplicationEnvSafe() Environment {
	return GetApplicationEnvOrDefault(EnvironmentLocal)
}

func IsLocalApplicationEnv() bool {
	return GetApplicationEnvSafe().IsLocal()
}
