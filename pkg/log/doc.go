/*
Package log provides structured logging for streamsched using zerolog.

A package-level Logger is configured once via Init and shared by every
other package. WithComponent scopes a logger to one daemon component;
WithFields extends any logger with one or more correlation ids, for the
scheduler types that accumulate several over their lifetime.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	compLog := log.WithComponent("registry")
	subLog := log.WithFields(compLog, map[string]string{"stream_id": streamID.String()})
	subLog.Warn().Str("mode", "push_only").Msg("stream admin unreachable, degrading")
*/
package log
