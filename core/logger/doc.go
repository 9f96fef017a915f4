// Package logger provides structured logging helpers built on Go's standard
// slog package. It offers a small set of pre-built attribute constructors for
// the identifiers that recur across the streaming subsystem (client, connection
// and instance ids, broker channels) plus generic error and timing attributes.
//
// Attribute helpers return an empty slog.Attr for zero values, so they can be
// passed unconditionally:
//
//	log.Info("client registered",
//		logger.ClientID(clientID),
//		logger.InstanceID(instanceID),
//		logger.Error(err), // no-op when err is nil
//	)
package logger
