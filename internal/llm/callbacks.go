package llm

import (
	"context"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
)

const runType = "knowdesk"

// withRunInfo attaches run info so globally registered callback handlers
// (tracing) observe provider calls made outside a compose graph.
func withRunInfo(ctx context.Context, name string, component components.Component) context.Context {
	return callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      name,
		Type:      runType,
		Component: component,
	})
}
