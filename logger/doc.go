// Package logger provides structured logging for realmauth using zerolog.
//
// It supports JSON and console output, level configuration, and
// component-scoped loggers with map-based structured fields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.NewDefault("realmd").WithComponent("directory")
//	log.Info("roles resolved", logger.Fields("username", name, "count", len(roles)))
package logger
