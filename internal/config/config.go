// Package config provides centralized configuration management for the application.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration parameters for the application. It is built
// once at process start and never mutated afterwards.
type Config struct {
	Jira   JiraConfig
	Server ServerConfig
}

// JiraConfig holds JIRA specific configuration.
type JiraConfig struct {
	// URL is the base address of the JIRA instance
	URL string

	// Token is the Personal Access Token used as a Bearer credential
	Token string

	// RFEProject is the project key holding top-level feature requests
	RFEProject string

	// StratProject is the project key holding strategic initiatives
	StratProject string

	// EngProject is the project key holding epics and tasks
	EngProject string

	// DefaultComponent is the component filter applied when a stream
	// request does not name one
	DefaultComponent string
}

// ServerConfig holds HTTP server specific configuration.
type ServerConfig struct {
	Host        string
	Port        int
	OpenBrowser bool
}

// LoadConfig initializes and loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	// Initialize Viper for environment variables
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Map specific environment variables
	v.BindEnv("jira.url", "JIRA_URL")
	v.BindEnv("jira.pat", "JIRA_PAT")
	v.BindEnv("jira.rfe_project", "JIRA_RFE_PROJECT")
	v.BindEnv("jira.strat_project", "JIRA_STRAT_PROJECT")
	v.BindEnv("jira.eng_project", "JIRA_ENG_PROJECT")
	v.BindEnv("jira.default_component", "DEFAULT_COMPONENT")
	v.BindEnv("server.host", "HOST")
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.open_browser", "OPEN_BROWSER")

	v.SetDefault("jira.url", "https://issues.redhat.com")
	v.SetDefault("jira.rfe_project", "RHAIRFE")
	v.SetDefault("jira.strat_project", "RHAISTRAT")
	v.SetDefault("jira.eng_project", "RHOAIENG")
	v.SetDefault("jira.default_component", "AI Safety")
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.open_browser", false)

	config := &Config{
		Jira: JiraConfig{
			URL:              v.GetString("jira.url"),
			Token:            v.GetString("jira.pat"),
			RFEProject:       v.GetString("jira.rfe_project"),
			StratProject:     v.GetString("jira.strat_project"),
			EngProject:       v.GetString("jira.eng_project"),
			DefaultComponent: v.GetString("jira.default_component"),
		},
		Server: ServerConfig{
			Host:        v.GetString("server.host"),
			Port:        v.GetInt("server.port"),
			OpenBrowser: v.GetBool("server.open_browser"),
		},
	}

	return config, nil
}

// ValidateJiraConfig ensures the JIRA credential and base address are usable.
func ValidateJiraConfig(config *Config) error {
	var missingVars []string

	if config.Jira.URL == "" {
		missingVars = append(missingVars, "JIRA_URL")
	}
	if config.Jira.Token == "" {
		missingVars = append(missingVars, "JIRA_PAT")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return nil
}
