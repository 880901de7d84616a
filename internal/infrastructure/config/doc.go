// Package config handles loading and validating the Tellstick gateway configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading .env files into the environment
//   - Overriding with TELLSTICK_* environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - A JWT secret is mandatory whenever the HTTP API is enabled
//
// Usage:
//
//	_ = config.LoadDotEnv(".env")
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Tellstick.Host)
package config
