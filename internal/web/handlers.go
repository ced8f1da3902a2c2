package web

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hpungsan/storyboard/internal/db"
	"github.com/hpungsan/storyboard/internal/errors"
	"github.com/hpungsan/storyboard/internal/ops"
)

// Handlers contains HTTP route handlers for the project viewer.
type Handlers struct {
	deps     *ops.Deps
	renderer *Renderer
}

// HandleProjects handles GET /projects: lists projects in the base folder.
func (h *Handlers) HandleProjects(w http.ResponseWriter, r *http.Request) {
	result, err := ops.ListProjects(r.Context(), h.deps, ops.ListProjectsInput{
		BaseFolder: r.URL.Query().Get("base_folder"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, "projects", ProjectsPageData{
		PageData: PageData{
			Title:   "Projects",
			Version: h.renderer.version,
		},
		BaseFolder: result.BaseFolder,
		Projects:   result.Projects,
	})
}

// projectView is the JSON shape of GET /projects/view.
type projectView struct {
	Project  *ops.ProjectInfo            `json:"project"`
	Style    *db.Style                   `json:"style"`
	Shots    []db.Shot                   `json:"shots"`
	Assets   map[db.AssetKind][]db.Asset `json:"assets"`
	Messages []db.Message                `json:"messages"`
}

// HandleProject handles GET /projects/view?path=: one project's shots,
// assets and conversation.
func (h *Handlers) HandleProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	path := r.URL.Query().Get("path")
	if strings.TrimSpace(path) == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("path is required"))
		return
	}

	// Viewing must not create a project
	if !ops.IsValidProject(path) {
		h.renderer.renderError(w, r, errors.NewNotFound("project", path))
		return
	}

	info, err := ops.OpenProject(ctx, h.deps, ops.OpenProjectInput{Path: path, SkipRecent: true})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	style, err := ops.GetStyle(ctx, h.deps, ops.GetStyleInput{Path: info.Path})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	shots, err := ops.GetShots(ctx, h.deps, ops.GetShotsInput{Path: info.Path})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	assets, err := ops.GetAssets(ctx, h.deps, ops.GetAssetsInput{Path: info.Path})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	msgs, err := ops.GetMessages(ctx, h.deps, ops.GetMessagesInput{
		Path:  info.Path,
		Limit: parseIntParam(r, "limit", db.DefaultMessageLimit),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, projectView{
			Project:  info,
			Style:    style,
			Shots:    shots.Shots,
			Assets:   assets.Assets,
			Messages: msgs.Messages,
		})
		return
	}

	groups := make([]AssetGroup, 0, len(db.AssetKinds))
	for _, kind := range db.AssetKinds {
		groups = append(groups, AssetGroup{Kind: kind, Assets: assets.Assets[kind]})
	}
	h.renderer.renderPage(w, "project", ProjectPageData{
		PageData: PageData{
			Title:   info.Name,
			Version: h.renderer.version,
		},
		Project:  info,
		Style:    style,
		Shots:    shots.Shots,
		Assets:   groups,
		Messages: msgs.Messages,
	})
}

// HandleImage handles GET /projects/image?path=&file=: serves a shot image
// stored inside the project folder.
func (h *Handlers) HandleImage(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	file := r.URL.Query().Get("file")
	if strings.TrimSpace(path) == "" || strings.TrimSpace(file) == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("path and file are required"))
		return
	}
	if !ops.IsValidProject(path) {
		h.renderer.renderError(w, r, errors.NewNotFound("project", path))
		return
	}

	root, err := filepath.Abs(path)
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid path"))
		return
	}
	target, err := resolveImage(root, file)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	http.ServeFile(w, r, target)
}

// imageExts are the file types the image route serves.
var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".gif":  true,
}

// resolveImage maps file to an image inside root. Symlinks are followed and
// the resolved file must still be an image inside root.
func resolveImage(root, file string) (string, error) {
	target, ok := withinRoot(root, file)
	if !ok {
		return "", errors.NewInvalidRequest("file is outside the project")
	}
	if !imageExts[strings.ToLower(filepath.Ext(target))] {
		return "", errors.NewInvalidRequest("file is not an image")
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", errors.NewNotFound("project", root)
	}
	realTarget, err := filepath.EvalSymlinks(target)
	if os.IsNotExist(err) {
		return "", errors.NewNotFound("image", file)
	}
	if err != nil {
		return "", errors.NewInvalidRequest("invalid file")
	}
	if _, ok := withinRoot(realRoot, realTarget); !ok {
		return "", errors.NewInvalidRequest("file is outside the project")
	}
	if !imageExts[strings.ToLower(filepath.Ext(realTarget))] {
		return "", errors.NewInvalidRequest("file is not an image")
	}
	return realTarget, nil
}

// withinRoot resolves file against root and reports whether the result
// stays inside root and outside the database directory.
func withinRoot(root, file string) (string, bool) {
	target := filepath.FromSlash(file)
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if rel == db.DirName || strings.HasPrefix(rel, db.DirName+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
