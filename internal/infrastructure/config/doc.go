// Package config handles loading and validating authgate configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with AUTHGATE_* environment variables
//   - Validation of required fields, collected into a single error
//   - Default value handling
//
// Security Considerations:
//   - Secrets (JWT key, broker and Redis passwords) should be set via environment variables
//   - The JWT secret is base64 and must decode to at least 256 bits; startup aborts otherwise
//   - Lockout threshold, lockout duration and token lifetimes are validated here,
//     never at request time
//
// Usage:
//
//	cfg, err := config.Load("configs/authgate.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Security.JWT.AccessTokenTTL)
package config
