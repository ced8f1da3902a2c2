package mcp

import (
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/storyboard/internal/config"
	"github.com/hpungsan/storyboard/internal/ops"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"project_create": {
		def:     projectCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProjectCreate },
	},
	"project_open": {
		def:     projectOpenToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProjectOpen },
	},
	"project_list": {
		def:     projectListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProjectList },
	},
	"project_rename": {
		def:     projectRenameToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProjectRename },
	},
	"project_export": {
		def:     projectExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProjectExport },
	},
	"project_import": {
		def:     projectImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProjectImport },
	},
	"shots_save": {
		def:     shotsSaveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleShotsSave },
	},
	"shots_list": {
		def:     shotsListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleShotsList },
	},
	"shot_set_image": {
		def:     shotSetImageToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleShotSetImage },
	},
	"shot_generate_image": {
		def:     shotGenerateImageToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleShotGenerateImage },
	},
	"assets_list": {
		def:     assetsListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAssetsList },
	},
	"messages_append": {
		def:     messagesAppendToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMessagesAppend },
	},
	"messages_list": {
		def:     messagesListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMessagesList },
	},
	"chat_send": {
		def:     chatSendToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChatSend },
	},
	"style_get": {
		def:     styleGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStyleGet },
	},
	"style_save": {
		def:     styleSaveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStyleSave },
	},
	"config_get": {
		def:     configGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleConfigGet },
	},
	"config_save": {
		def:     configSaveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleConfigSave },
	},
}

// AllToolNames returns every tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with storyboard tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(deps *ops.Deps, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"storyboard",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(deps)

	disabled := make(map[string]bool, len(cfg.DisabledTools))
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(deps *ops.Deps, cfg *config.Config, version string) error {
	s := NewServer(deps, cfg, version)
	return server.ServeStdio(s)
}
