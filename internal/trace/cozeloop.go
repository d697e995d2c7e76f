package trace

import (
	"context"
	"log/slog"

	clc "github.com/cloudwego/eino-ext/callbacks/cozeloop"
	"github.com/cloudwego/eino/callbacks"
	"github.com/coze-dev/cozeloop-go"
)

// CloseFn flushes and closes the trace client.
type CloseFn func(ctx context.Context)

func noop(context.Context) {}

// Init registers CozeLoop as a global eino callback handler when both
// workspaceID and apiToken are set. Otherwise tracing stays off and the
// returned CloseFn does nothing.
func Init(workspaceID, apiToken string, logger *slog.Logger) CloseFn {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "trace")

	if workspaceID == "" || apiToken == "" {
		logger.Info("cozeloop not configured, tracing disabled")
		return noop
	}

	client, err := cozeloop.NewClient(
		cozeloop.WithWorkspaceID(workspaceID),
		cozeloop.WithAPIToken(apiToken),
	)
	if err != nil {
		logger.Warn("cozeloop client init failed, tracing disabled", "error", err)
		return noop
	}

	callbacks.AppendGlobalHandlers(clc.NewLoopHandler(client))
	logger.Info("cozeloop tracing enabled", "workspace_id", workspaceID)

	return client.Close
}
