package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/storyboard/internal/config"
	"github.com/hpungsan/storyboard/internal/errors"
	"github.com/hpungsan/storyboard/internal/generate"
	"github.com/hpungsan/storyboard/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	deps *ops.Deps
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps *ops.Deps) *Handlers {
	return &Handlers{deps: deps}
}

// Request types for each tool

// ProjectCreateRequest represents the arguments for project_create.
type ProjectCreateRequest struct {
	Name       string `json:"name"`
	BaseFolder string `json:"base_folder,omitempty"`
}

// ProjectRequest represents the arguments of tools addressing one project.
type ProjectRequest struct {
	Path string `json:"path"`
}

// ProjectListRequest represents the arguments for project_list.
type ProjectListRequest struct {
	BaseFolder string `json:"base_folder,omitempty"`
}

// ProjectRenameRequest represents the arguments for project_rename.
type ProjectRenameRequest struct {
	Path    string `json:"path"`
	NewName string `json:"new_name"`
}

// ProjectExportRequest represents the arguments for project_export.
type ProjectExportRequest struct {
	Path string `json:"path"`
	File string `json:"file,omitempty"`
}

// ProjectImportRequest represents the arguments for project_import.
type ProjectImportRequest struct {
	Path            string `json:"path"`
	File            string `json:"file"`
	Mode            string `json:"mode,omitempty"`
	IncludeMessages bool   `json:"include_messages,omitempty"`
}

// ShotsSaveRequest represents the arguments for shots_save.
type ShotsSaveRequest struct {
	Path        string          `json:"path"`
	Data        json.RawMessage `json:"data,omitempty"`
	Text        string          `json:"text,omitempty"`
	Mode        string          `json:"mode,omitempty"`
	Instruction string          `json:"instruction,omitempty"`
}

// ShotSetImageRequest represents the arguments for shot_set_image.
type ShotSetImageRequest struct {
	Path      string `json:"path"`
	ShotID    string `json:"shot_id"`
	Frame     string `json:"frame"`
	ImagePath string `json:"image_path"`
}

// ShotGenerateImageRequest represents the arguments for shot_generate_image.
type ShotGenerateImageRequest struct {
	Path   string `json:"path"`
	ShotID string `json:"shot_id"`
	Frame  string `json:"frame,omitempty"`
	APIID  string `json:"api_id,omitempty"`
}

// AssetsListRequest represents the arguments for assets_list.
type AssetsListRequest struct {
	Path string `json:"path"`
	Kind string `json:"kind,omitempty"`
}

// MessagesAppendRequest represents the arguments for messages_append.
type MessagesAppendRequest struct {
	Path    string `json:"path"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessagesListRequest represents the arguments for messages_list.
type MessagesListRequest struct {
	Path  string `json:"path"`
	Limit int    `json:"limit,omitempty"`
}

// ChatSendRequest represents the arguments for chat_send.
type ChatSendRequest struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	APIID   string `json:"api_id,omitempty"`
	Mode    string `json:"mode,omitempty"`
}

// StyleSaveRequest represents the arguments for style_save.
type StyleSaveRequest struct {
	Path          string  `json:"path"`
	StylePrompt   *string `json:"style_prompt,omitempty"`
	QualityPrompt *string `json:"quality_prompt,omitempty"`
}

// ConfigSaveRequest represents the arguments for config_save.
type ConfigSaveRequest struct {
	Config *config.Config `json:"config"`
}

// HandleProjectCreate handles the project_create tool call.
func (h *Handlers) HandleProjectCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProjectCreateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.CreateProject(ctx, h.deps, ops.CreateProjectInput{
		Name:       input.Name,
		BaseFolder: input.BaseFolder,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleProjectOpen handles the project_open tool call.
func (h *Handlers) HandleProjectOpen(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProjectRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.OpenProject(ctx, h.deps, ops.OpenProjectInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleProjectList handles the project_list tool call.
func (h *Handlers) HandleProjectList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProjectListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.ListProjects(ctx, h.deps, ops.ListProjectsInput{BaseFolder: input.BaseFolder})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleProjectRename handles the project_rename tool call.
func (h *Handlers) HandleProjectRename(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProjectRenameRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.RenameProject(ctx, h.deps, ops.RenameProjectInput{
		Path:    input.Path,
		NewName: input.NewName,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleProjectExport handles the project_export tool call.
func (h *Handlers) HandleProjectExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProjectExportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.ExportProject(ctx, h.deps, ops.ExportProjectInput{
		Path: input.Path,
		File: input.File,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleProjectImport handles the project_import tool call.
func (h *Handlers) HandleProjectImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProjectImportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.ImportProject(ctx, h.deps, ops.ImportProjectInput{
		Path:            input.Path,
		File:            input.File,
		Mode:            input.Mode,
		IncludeMessages: input.IncludeMessages,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleShotsSave handles the shots_save tool call.
func (h *Handlers) HandleShotsSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ShotsSaveRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	opInput := ops.SaveGeneratedInput{
		Path:        input.Path,
		Text:        input.Text,
		Mode:        input.Mode,
		Instruction: input.Instruction,
	}
	if len(input.Data) > 0 && string(input.Data) != "null" {
		payload, err := generate.DecodePayload(input.Data)
		if err != nil {
			return errorResult(errors.NewValidationFailure(err.Error())), nil
		}
		opInput.Payload = payload
	}

	result, err := ops.SaveGenerated(ctx, h.deps, opInput)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleShotsList handles the shots_list tool call.
func (h *Handlers) HandleShotsList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProjectRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.GetShots(ctx, h.deps, ops.GetShotsInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleShotSetImage handles the shot_set_image tool call.
func (h *Handlers) HandleShotSetImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ShotSetImageRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.SetShotImage(ctx, h.deps, ops.SetShotImageInput{
		Path:      input.Path,
		ShotID:    input.ShotID,
		Frame:     input.Frame,
		ImagePath: input.ImagePath,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleShotGenerateImage handles the shot_generate_image tool call.
func (h *Handlers) HandleShotGenerateImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ShotGenerateImageRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.GenerateShotImage(ctx, h.deps, ops.GenerateShotImageInput{
		Path:   input.Path,
		ShotID: input.ShotID,
		Frame:  input.Frame,
		APIID:  input.APIID,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleAssetsList handles the assets_list tool call.
func (h *Handlers) HandleAssetsList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AssetsListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.GetAssets(ctx, h.deps, ops.GetAssetsInput{Path: input.Path, Kind: input.Kind})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleMessagesAppend handles the messages_append tool call.
func (h *Handlers) HandleMessagesAppend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MessagesAppendRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.AppendMessage(ctx, h.deps, ops.AppendMessageInput{
		Path:    input.Path,
		Role:    input.Role,
		Content: input.Content,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleMessagesList handles the messages_list tool call.
func (h *Handlers) HandleMessagesList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MessagesListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.GetMessages(ctx, h.deps, ops.GetMessagesInput{Path: input.Path, Limit: input.Limit})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleChatSend handles the chat_send tool call.
func (h *Handlers) HandleChatSend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChatSendRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Chat(ctx, h.deps, ops.ChatInput{
		Path:    input.Path,
		Message: input.Message,
		APIID:   input.APIID,
		Mode:    input.Mode,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleStyleGet handles the style_get tool call.
func (h *Handlers) HandleStyleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProjectRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.GetStyle(ctx, h.deps, ops.GetStyleInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleStyleSave handles the style_save tool call.
func (h *Handlers) HandleStyleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StyleSaveRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.SaveStyle(ctx, h.deps, ops.SaveStyleInput{
		Path:          input.Path,
		StylePrompt:   input.StylePrompt,
		QualityPrompt: input.QualityPrompt,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleConfigGet handles the config_get tool call. Keys are always redacted.
func (h *Handlers) HandleConfigGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.GetConfig(h.deps, ops.GetConfigInput{})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleConfigSave handles the config_save tool call.
func (h *Handlers) HandleConfigSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConfigSaveRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.SaveConfig(h.deps, ops.SaveConfigInput{Config: input.Config})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if storyErr, ok := errors.As(err); ok {
		msg := storyErr.Message
		if err != error(storyErr) {
			// keep wrapper context such as "shots[2]: ..."
			msg = err.Error()
		}
		errorObj := map[string]any{
			"code":    storyErr.Code,
			"message": msg,
			"status":  storyErr.Status,
		}
		if storyErr.Code != errors.ErrInternal && storyErr.Details != nil {
			errorObj["details"] = storyErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
