// Package logger provides component-scoped structured logging for mediamux,
// backed by logrus.
//
// Features:
//   - Multiple log levels (TRACE, DEBUG, INFO, WARN, ERROR)
//   - Component-based filtering
//   - Text, JSON and colored output
//   - Time-rotated log files
//
// Usage:
//
//	log := logger.WithComponent(logger.ComponentFetch)
//	log.Info("Range fetch started", map[string]interface{}{
//		"stream": "video",
//		"size":   1024,
//	})
//
//	config := logger.DefaultConfig()
//	config.Level = logger.DEBUG
//	config.Format = logger.FormatJSON
//	logger.SetGlobalLogger(logger.New(config))
//
// Components:
//   - ComponentApp: Top-level job logs
//   - ComponentFormat: Classification and pairing
//   - ComponentSelect: Ranking and selection
//   - ComponentFetch: Range requests and thumbnails
//   - ComponentMerge: Muxer and producer lifecycle
//   - ComponentExtract: External metadata tool
//   - ComponentClient: HTTP client logs
//   - ComponentFilter: Script filters
package logger
