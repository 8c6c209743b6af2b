// Package logger builds configured slog.Logger instances with a chosen
// level, output format (text or JSON), and static attributes.
//
//	log := logger.New(
//		logger.WithLevel(slog.LevelDebug),
//		logger.WithFormat(logger.FormatJSON),
//		logger.WithAttr(slog.String("service", "entitlements")),
//	)
package logger
