// Package log captures protocol events of the data-server transport.
//
// It is separate from operational logging (slog). Protocol capture records
// every frame, decoded request and response, and connection state change so
// a session can be replayed and filtered afterwards.
//
//	// Console, for development:
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Binary file, read back with `zictl log`:
//	fl, _ := log.NewFileLogger("/var/log/zi/server.zlog")
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// Log files are a stream of CBOR-encoded Events.
package log
