package mcp

import "github.com/mark3labs/mcp-go/mcp"

const pathDescription = "Absolute path of the project folder"

var projectCreateToolDef = mcp.NewTool("project_create",
	mcp.WithDescription("Create a new storyboard project folder with an empty shot list."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Project name; becomes the folder name")),
	mcp.WithString("base_folder", mcp.Description("Parent folder (default: configured base folder)")),
)

var projectOpenToolDef = mcp.NewTool("project_open",
	mcp.WithDescription("Open an existing project, migrating its database if needed, and return its summary."),
	mcp.WithString("path", mcp.Required(), mcp.Description(pathDescription)),
)

var projectListToolDef = mcp.NewTool("project_list",
	mcp.WithDescription("List projects in the base folder, most recently modified first."),
	mcp.WithString("base_folder", mcp.Description("Folder to scan (default: configured base folder)")),
)

var projectRenameToolDef = mcp.NewTool("project_rename",
	mcp.WithDescription("Rename a project folder. Fails if a sibling project already uses the name (case-insensitive)."),
	mcp.WithString("path", mcp.Required(), mcp.Description(pathDescription)),
	mcp.WithString("new_name", mcp.Required(), mcp.Description("New project name")),
)

var projectExportToolDef = mcp.NewTool("project_export",
	mcp.WithDescription("Export the project's shots, assets, style and conversation to a JSONL file in the exports folder."),
	mcp.WithString("path", mcp.Required(), mcp.Description(pathDescription)),
	mcp.WithString("file", mcp.Description("File name or path directly inside the exports folder (default: <name>-<timestamp>.jsonl)")),
)

var projectImportToolDef = mcp.NewTool("project_import",
	mcp.WithDescription("Load a JSONL export into a project. Any bad line is reported and nothing is changed."),
	mcp.WithString("path", mcp.Required(), mcp.Description(pathDescription)),
	mcp.WithString("file", mcp.Required(), mcp.Description("Export file name or path directly inside the exports folder")),
	mcp.WithString("mode", mcp.Enum("full", "partial"), mcp.Description("Replacement mode (default: full)")),
	mcp.WithBoolean("include_messages", mcp.Description("Append the exported conversation to the project's log")),
)

var shotsSaveToolDef = mcp.NewTool("shots_save",
	mcp.WithDescription("Replace the shot list with a generated batch. "+
		"mode=full also replaces characters, scenes and props; mode=partial keeps existing assets and only adds new names. "+
		"Shot positions are renumbered 1..N in list order."),
	mcp.WithString("path", mcp.Required(), mcp.Description(pathDescription)),
	mcp.WithObject("data", mcp.Description("Batch object with shots, characters, scenes and props arrays")),
	mcp.WithString("text", mcp.Description("Alternative to data: a model reply containing the batch JSON")),
	mcp.WithString("mode", mcp.Enum("full", "partial", "auto"), mcp.Description("Replacement mode (default: partial)")),
	mcp.WithString("instruction", mcp.Description("User request the batch answers; mode=auto detects regenerate requests from it")),
)

var shotsListToolDef = mcp.NewTool("shots_list",
	mcp.WithDescription("Return the shot list in position order."),
	mcp.WithString("path", mcp.Required(), mcp.Description(pathDescription)),
)

var shotSetImageToolDef = mcp.NewTool("shot_set_image",
	mcp.WithDescription("Record an image file as a shot's lead or tail frame."),
	mcp.WithString("path", mcp.Required(), mcp.Description(pathDescription)),
	mcp.WithString("shot_id", mcp.Required(), mcp.Description("Shot identifier")),
	mcp.WithString("frame", mcp.Required(), mcp.Enum("lead", "tail"), mcp.Description("Which frame the image is")),
	mcp.WithString("image_path", mcp.Required(), mcp.Description("Image file path, relative to the project or absolute")),
)

var shotGenerateImageToolDef = mcp.NewTool("shot_generate_image",
	mcp.WithDescription("Generate a shot frame with the image API and record it on the shot."),
	mcp.WithString("path", mcp.Required(), mcp.Description(pathDescription)),
	mcp.WithString("shot_id", mcp.Required(), mcp.Description("Shot identifier")),
	mcp.WithString("frame", mcp.Enum("lead", "tail"), mcp.Description("Which frame to generate (default: lead)")),
	mcp.WithString("api_id", mcp.Description("Image API id (default: the default image API)")),
)

var assetsListToolDef = mcp.NewTool("assets_list",
	mcp.WithDescription("Return characters, scenes and props in insertion order."),
	mcp.WithString("path", mcp.Required(), mcp.Description(pathDescription)),
	mcp.WithString("kind", mcp.Enum("character", "scene", "prop"), mcp.Description("Limit to one kind")),
)

var messagesAppendToolDef = mcp.NewTool("messages_append",
	mcp.WithDescription("Append an entry to the project's conversation log."),
	mcp.WithString("path", mcp.Required(), mcp.Description(pathDescription)),
	mcp.WithString("role", mcp.Required(), mcp.Description("Free-form role tag such as user or assistant")),
	mcp.WithString("content", mcp.Required(), mcp.Description("Message text")),
)

var messagesListToolDef = mcp.NewTool("messages_list",
	mcp.WithDescription("Return the most recent conversation entries, oldest first."),
	mcp.WithString("path", mcp.Required(), mcp.Description(pathDescription)),
	mcp.WithNumber("limit", mcp.Description("Maximum entries (default: 20, max: 500)")),
)

var chatSendToolDef = mcp.NewTool("chat_send",
	mcp.WithDescription("Send a message to the text API. A batch in the reply replaces the shot list; both sides are logged."),
	mcp.WithString("path", mcp.Required(), mcp.Description(pathDescription)),
	mcp.WithString("message", mcp.Required(), mcp.Description("User message")),
	mcp.WithString("api_id", mcp.Description("Text API id (default: the default text API)")),
	mcp.WithString("mode", mcp.Enum("full", "partial", "auto"), mcp.Description("Replacement mode (default: auto)")),
)

var styleGetToolDef = mcp.NewTool("style_get",
	mcp.WithDescription("Return the project's style and quality prompts."),
	mcp.WithString("path", mcp.Required(), mcp.Description(pathDescription)),
)

var styleSaveToolDef = mcp.NewTool("style_save",
	mcp.WithDescription("Replace the project's style and quality prompts. Omitted prompts are cleared."),
	mcp.WithString("path", mcp.Required(), mcp.Description(pathDescription)),
	mcp.WithString("style_prompt", mcp.Description("Prepended to every image prompt")),
	mcp.WithString("quality_prompt", mcp.Description("Appended to every image prompt")),
)

var configGetToolDef = mcp.NewTool("config_get",
	mcp.WithDescription("Return the global configuration. API keys are redacted."),
)

var configSaveToolDef = mcp.NewTool("config_save",
	mcp.WithDescription("Replace the global configuration document. Redacted API keys keep their stored value."),
	mcp.WithObject("config", mcp.Required(), mcp.Description("Configuration with apis, base_folder and last_project")),
)
