// Package logger provides structured logging for dbfixture using zerolog.
//
// Session, tracker and sandbox code log through a *Logger tagged with a
// component name. Tests usually pass NewNop() or a logger writing to a buffer.
//
// # Configuration
//
//	logging:
//	  level: "debug"
//	  format: "json"
//
// # Usage
//
//	log := logger.NewDefault("dbfixture").WithComponent("session")
//	log.Debug("flush complete", logger.Fields("new", 3))
package logger
