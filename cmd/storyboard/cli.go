package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/storyboard/internal/config"
	"github.com/hpungsan/storyboard/internal/errors"
	"github.com/hpungsan/storyboard/internal/ops"
	"github.com/hpungsan/storyboard/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(deps *ops.Deps) *cli.App {
	app := &cli.App{
		Name:    "storyboard",
		Usage:   "Shot-list projects for AI-assisted storyboarding",
		Version: Version,
		Commands: []*cli.Command{
			createCmd(deps),
			openCmd(deps),
			listCmd(deps),
			renameCmd(deps),
			exportCmd(deps),
			importCmd(deps),
			saveCmd(deps),
			shotsCmd(deps),
			assetsCmd(deps),
			setImageCmd(deps),
			generateImageCmd(deps),
			chatCmd(deps),
			styleCmd(deps),
			configCmd(deps),
			uiCmd(deps),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// projectFlag selects the project folder; the last opened project is the default.
func projectFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "project",
		Aliases: []string{"p"},
		Usage:   "Project folder (default: last opened project)",
	}
}

// createCmd creates the create command.
func createCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Create a new project in the base folder",
		ArgsUsage: "<name>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "base", Aliases: []string{"b"}, Usage: "Base folder (default: configured base folder)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.CreateProject(c.Context, deps, ops.CreateProjectInput{
				BaseFolder: c.String("base"),
				Name:       c.Args().First(),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// openCmd creates the open command.
func openCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:      "open",
		Usage:     "Open a project and make it the default for other commands",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("path is required"))
			}
			output, err := ops.OpenProject(c.Context, deps, ops.OpenProjectInput{Path: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// listCmd creates the list command.
func listCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List projects in the base folder",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "base", Aliases: []string{"b"}, Usage: "Base folder (default: configured base folder)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ListProjects(c.Context, deps, ops.ListProjectsInput{BaseFolder: c.String("base")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// renameCmd creates the rename command.
func renameCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:      "rename",
		Usage:     "Rename a project and its folder",
		ArgsUsage: "<new-name>",
		Flags:     []cli.Flag{projectFlag()},
		Action: func(c *cli.Context) error {
			path, err := resolveProject(c, deps)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.RenameProject(c.Context, deps, ops.RenameProjectInput{
				Path:    path,
				NewName: c.Args().First(),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export the project to a JSONL file in the exports folder",
		ArgsUsage: "[file]",
		Flags:     []cli.Flag{projectFlag()},
		Action: func(c *cli.Context) error {
			path, err := resolveProject(c, deps)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.ExportProject(c.Context, deps, ops.ExportProjectInput{
				Path: path,
				File: c.Args().First(),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// importCmd creates the import command.
func importCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Load a JSONL export into the project",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			projectFlag(),
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "full", Usage: "Replace mode: full|partial"},
			&cli.BoolFlag{Name: "messages", Usage: "Also append the exported conversation"},
		},
		Action: func(c *cli.Context) error {
			path, err := resolveProject(c, deps)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.ImportProject(c.Context, deps, ops.ImportProjectInput{
				Path:            path,
				File:            c.Args().First(),
				Mode:            c.String("mode"),
				IncludeMessages: c.Bool("messages"),
			})
			if err != nil {
				return outputError(err)
			}
			if err := outputJSON(c, output); err != nil {
				return err
			}
			if len(output.Errors) > 0 {
				return cli.Exit(fmt.Sprintf("import failed: %d bad lines", len(output.Errors)), 1)
			}
			return nil
		},
	}
}

// saveCmd creates the save command.
func saveCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "save",
		Usage: "Replace the shot list (reads a JSON batch or a generation reply from stdin)",
		Flags: []cli.Flag{
			projectFlag(),
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "partial", Usage: "Replace mode: full|partial|auto"},
			&cli.StringFlag{Name: "instruction", Aliases: []string{"i"}, Usage: "User request the batch answers (used by auto mode)"},
		},
		Action: func(c *cli.Context) error {
			path, err := resolveProject(c, deps)
			if err != nil {
				return outputError(err)
			}
			if !stdinHasData(c) {
				return outputError(errors.NewInvalidRequest("batch must be piped via stdin"))
			}
			text, err := readStdin(c)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}

			output, err := ops.SaveGenerated(c.Context, deps, ops.SaveGeneratedInput{
				Path:        path,
				Text:        text,
				Mode:        c.String("mode"),
				Instruction: c.String("instruction"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// shotsCmd creates the shots command.
func shotsCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "shots",
		Usage: "Print the shot list in order",
		Flags: []cli.Flag{projectFlag()},
		Action: func(c *cli.Context) error {
			path, err := resolveProject(c, deps)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.GetShots(c.Context, deps, ops.GetShotsInput{Path: path})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// assetsCmd creates the assets command.
func assetsCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "assets",
		Usage: "Print characters, scenes and props",
		Flags: []cli.Flag{
			projectFlag(),
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "Only one kind: character|scene|prop"},
		},
		Action: func(c *cli.Context) error {
			path, err := resolveProject(c, deps)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.GetAssets(c.Context, deps, ops.GetAssetsInput{Path: path, Kind: c.String("kind")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// setImageCmd creates the set-image command.
func setImageCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:      "set-image",
		Usage:     "Record an image file as a shot's lead or tail frame",
		ArgsUsage: "<shot-id> <image-path>",
		Flags: []cli.Flag{
			projectFlag(),
			&cli.StringFlag{Name: "frame", Aliases: []string{"f"}, Value: "lead", Usage: "Frame: lead|tail"},
		},
		Action: func(c *cli.Context) error {
			path, err := resolveProject(c, deps)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.SetShotImage(c.Context, deps, ops.SetShotImageInput{
				Path:      path,
				ShotID:    c.Args().Get(0),
				Frame:     c.String("frame"),
				ImagePath: c.Args().Get(1),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// generateImageCmd creates the generate-image command.
func generateImageCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:      "generate-image",
		Usage:     "Generate a shot frame with the image API and record it",
		ArgsUsage: "<shot-id>",
		Flags: []cli.Flag{
			projectFlag(),
			&cli.StringFlag{Name: "frame", Aliases: []string{"f"}, Value: "lead", Usage: "Frame: lead|tail"},
			&cli.StringFlag{Name: "api", Usage: "Image API id (default: the default image API)"},
		},
		Action: func(c *cli.Context) error {
			path, err := resolveProject(c, deps)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.GenerateShotImage(c.Context, deps, ops.GenerateShotImageInput{
				Path:   path,
				ShotID: c.Args().First(),
				Frame:  c.String("frame"),
				APIID:  c.String("api"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// chatCmd creates the chat command group.
func chatCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Conversation log and generation",
		Subcommands: []*cli.Command{
			{
				Name:      "append",
				Usage:     "Append a message to the log (text from args or stdin)",
				ArgsUsage: "[text]",
				Flags: []cli.Flag{
					projectFlag(),
					&cli.StringFlag{Name: "role", Aliases: []string{"r"}, Value: "user", Usage: "Message role"},
				},
				Action: func(c *cli.Context) error {
					path, err := resolveProject(c, deps)
					if err != nil {
						return outputError(err)
					}
					text, err := argsOrStdin(c)
					if err != nil {
						return outputError(err)
					}
					output, err := ops.AppendMessage(c.Context, deps, ops.AppendMessageInput{
						Path:    path,
						Role:    c.String("role"),
						Content: text,
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:  "history",
				Usage: "Print the most recent messages, oldest first",
				Flags: []cli.Flag{
					projectFlag(),
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum messages to return"},
				},
				Action: func(c *cli.Context) error {
					path, err := resolveProject(c, deps)
					if err != nil {
						return outputError(err)
					}
					output, err := ops.GetMessages(c.Context, deps, ops.GetMessagesInput{Path: path, Limit: c.Int("limit")})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:      "send",
				Usage:     "Send a message to the text API and save any generated shot list",
				ArgsUsage: "[text]",
				Flags: []cli.Flag{
					projectFlag(),
					&cli.StringFlag{Name: "api", Usage: "Text API id (default: the default text API)"},
					&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: ops.ModeAuto, Usage: "Replace mode: full|partial|auto"},
				},
				Action: func(c *cli.Context) error {
					path, err := resolveProject(c, deps)
					if err != nil {
						return outputError(err)
					}
					text, err := argsOrStdin(c)
					if err != nil {
						return outputError(err)
					}
					output, err := ops.Chat(c.Context, deps, ops.ChatInput{
						Path:    path,
						Message: text,
						APIID:   c.String("api"),
						Mode:    c.String("mode"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
		},
	}
}

// styleCmd creates the style command group.
func styleCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "style",
		Usage: "Project style and quality prompts",
		Subcommands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Print the style and quality prompts",
				Flags: []cli.Flag{projectFlag()},
				Action: func(c *cli.Context) error {
					path, err := resolveProject(c, deps)
					if err != nil {
						return outputError(err)
					}
					output, err := ops.GetStyle(c.Context, deps, ops.GetStyleInput{Path: path})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:  "set",
				Usage: "Set the style and quality prompts (unset flags keep their value)",
				Flags: []cli.Flag{
					projectFlag(),
					&cli.StringFlag{Name: "style", Aliases: []string{"s"}, Usage: "Style prompt (empty clears)"},
					&cli.StringFlag{Name: "quality", Aliases: []string{"q"}, Usage: "Quality prompt (empty clears)"},
				},
				Action: func(c *cli.Context) error {
					path, err := resolveProject(c, deps)
					if err != nil {
						return outputError(err)
					}
					current, err := ops.GetStyle(c.Context, deps, ops.GetStyleInput{Path: path})
					if err != nil {
						return outputError(err)
					}
					input := ops.SaveStyleInput{
						Path:          path,
						StylePrompt:   current.StylePrompt,
						QualityPrompt: current.QualityPrompt,
					}
					if c.IsSet("style") {
						input.StylePrompt = optionalString(c.String("style"))
					}
					if c.IsSet("quality") {
						input.QualityPrompt = optionalString(c.String("quality"))
					}
					output, err := ops.SaveStyle(c.Context, deps, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
		},
	}
}

// configCmd creates the config command group.
func configCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Global configuration (API endpoints, base folder)",
		Subcommands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Print the configuration with API keys redacted",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "show-secrets", Usage: "Print API keys in full"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.GetConfig(deps, ops.GetConfigInput{ShowSecrets: c.Bool("show-secrets")})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:  "set",
				Usage: "Replace the configuration (reads a JSON document from stdin)",
				Action: func(c *cli.Context) error {
					if !stdinHasData(c) {
						return outputError(errors.NewInvalidRequest("config must be piped via stdin"))
					}
					text, err := readStdin(c)
					if err != nil {
						return outputError(errors.NewInternal(err))
					}
					var cfg config.Config
					if err := json.Unmarshal([]byte(text), &cfg); err != nil {
						return outputError(errors.NewInvalidRequest("invalid config JSON: " + err.Error()))
					}
					output, err := ops.SaveConfig(deps, ops.SaveConfigInput{Config: &cfg})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
		},
	}
}

// uiCmd creates the ui command.
func uiCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "ui",
		Usage: "Start the read-only project viewer",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv, err := web.NewServer(deps, Version, c.String("bind"), c.Int("port"))
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if err := web.Run(srv, deps.Logger); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// resolveProject returns --project, or the last opened project when unset.
func resolveProject(c *cli.Context, deps *ops.Deps) (string, error) {
	if path := strings.TrimSpace(c.String("project")); path != "" {
		return path, nil
	}
	cfg, err := config.Load(deps.ConfigDir)
	if err != nil {
		return "", errors.NewIOFailure(deps.ConfigDir, err)
	}
	if cfg.LastProject == "" {
		return "", errors.NewInvalidRequest("no project selected: pass --project or run 'storyboard open <path>'")
	}
	return cfg.LastProject, nil
}

// outputJSON marshals result to the app's writer as JSON.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if sErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", sErr.Code, sErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if the app's reader has piped data (not a terminal).
func stdinHasData(c *cli.Context) bool {
	f, ok := c.App.Reader.(*os.File)
	if !ok {
		return c.App.Reader != nil
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from the app's reader.
func readStdin(c *cli.Context) (string, error) {
	data, err := io.ReadAll(c.App.Reader)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// argsOrStdin joins the positional arguments, or reads stdin when there are none.
func argsOrStdin(c *cli.Context) (string, error) {
	if c.NArg() > 0 {
		return strings.Join(c.Args().Slice(), " "), nil
	}
	if !stdinHasData(c) {
		return "", errors.NewInvalidRequest("message text is required")
	}
	text, err := readStdin(c)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return text, nil
}

// optionalString maps "" to nil.
func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
