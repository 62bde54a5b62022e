// Package logging wraps zap with context-aware methods for copyvara.
//
// Every method takes a context and appends correlation fields found in it:
// the OpenTelemetry trace, the workspace, the QA session and the HTTP
// request ID. String values are passed through a redacting encoder so API
// keys and bearer tokens never reach stdout. Output can be teed into an
// OpenTelemetry log provider, and everything below error level is sampled.
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithWorkspaceID(ctx, "w1")
//	logger.Info(ctx, "document analyzed", zap.String("document.id", id))
package logging
