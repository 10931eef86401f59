package browser

import (
	"context"

	"github.com/entrhq/browsersteps/pkg/actions"
	"github.com/entrhq/browsersteps/pkg/agent/tools"
)

// actionTool adapts one action descriptor to the tools.Tool interface.
type actionTool struct {
	desc     actions.Descriptor
	registry *ToolRegistry
}

// Name returns the tool name.
func (t *actionTool) Name() string {
	return t.desc.Name
}

// Description returns the tool description.
func (t *actionTool) Description() string {
	return t.desc.Description
}

// Schema returns the tool's JSON schema.
func (t *actionTool) Schema() map[string]interface{} {
	return t.desc.InputSchema
}

// Execute runs the action and returns its envelope as JSON. Metadata
// carries the failure kind (empty on success) and whether the outcome
// should enter the agent's memory.
func (t *actionTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	res := t.run(ctx, argsXML)

	metadata := map[string]interface{}{
		"action":            t.desc.Name,
		"failed":            res.Failed(),
		"include_in_memory": res.IncludeInMemory,
	}
	if res.Failed() {
		metadata["error_kind"] = string(res.Kind)
	}
	if res.Payload != nil {
		metadata["download_path"] = res.Payload.Path
		metadata["size_bytes"] = res.Payload.SizeBytes
	}
	return res.JSON(), metadata, nil
}

func (t *actionTool) run(ctx context.Context, argsXML []byte) actions.Result {
	raw, err := tools.ArgumentsToJSON(argsXML, t.desc.InputSchema)
	if err != nil {
		return actions.Failure(actions.NewError(actions.KindValidation, "invalid arguments for %s: %v", t.desc.Name, err))
	}
	action, err := actions.Parse(t.desc.Name, raw)
	if err != nil {
		return actions.Failure(err)
	}
	return t.registry.executor.Execute(ctx, t.registry.session, action)
}

// UploadFileTool attaches an allow-listed host file to an upload-capable element.
type UploadFileTool struct{ actionTool }

// NewUploadFileTool creates a new upload tool.
func NewUploadFileTool(r *ToolRegistry) *UploadFileTool {
	return &UploadFileTool{newActionTool(r, actions.NameUploadFile)}
}

// ClickAndDownloadTool clicks an element and saves the download it triggers.
type ClickAndDownloadTool struct{ actionTool }

// NewClickAndDownloadTool creates a new click-and-download tool.
func NewClickAndDownloadTool(r *ToolRegistry) *ClickAndDownloadTool {
	return &ClickAndDownloadTool{newActionTool(r, actions.NameClickAndDownload)}
}

// LatestDownloadTool reports the newest file in the target directory.
type LatestDownloadTool struct{ actionTool }

// NewLatestDownloadTool creates a new latest-download tool.
func NewLatestDownloadTool(r *ToolRegistry) *LatestDownloadTool {
	return &LatestDownloadTool{newActionTool(r, actions.NameLatestDownload)}
}

// ForceClickTool dispatches a synthetic click by CSS selector.
type ForceClickTool struct{ actionTool }

// NewForceClickTool creates a new force-click tool.
func NewForceClickTool(r *ToolRegistry) *ForceClickTool {
	return &ForceClickTool{newActionTool(r, actions.NameForceClick)}
}

func newActionTool(r *ToolRegistry, name string) actionTool {
	desc, ok := actions.Lookup(name)
	if !ok {
		panic("browser: no descriptor for action " + name)
	}
	return actionTool{desc: desc, registry: r}
}
