// Package logging provides structured logging utilities for the mailagent application.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - PII sanitization (email anonymization, token and code masking)
//   - Consistent attribute naming across the codebase
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "oauth.exchange")
//	logger.Info("code exchanged",
//	    logging.Status("success"))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("gmail connected",
//	    logging.UserHash(email))
//
// # Security Considerations
//
// This package is designed with security in mind:
//   - User emails are hashed to prevent PII leakage while allowing correlation
//   - OAuth state tokens and linking codes are never logged directly
package logging
