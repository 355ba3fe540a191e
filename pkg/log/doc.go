// Package log provides the logging abstraction used across dualcap.
//
// Components take a Logger and never import zerolog directly. The zerolog
// adapter renders console output on stderr so that the live status line on
// stdout stays intact.
//
// # Usage
//
//	logger := log.NewConsoleAdapter(os.Stderr, zerolog.InfoLevel).
//	    With(log.String("session", id))
//	logger.Info("port opened", log.String("port", "/dev/ttyACM0"), log.Int("baud", 921600))
//
// Tests use log.NewNoopLogger().
package log
