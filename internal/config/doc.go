// Package config defines the application configuration structures and
// loading logic. Configuration is read with viper from environment
// variables (JOBSENTRY_ prefix) and an optional yaml file, then validated
// with go-playground/validator struct tags.
package config
