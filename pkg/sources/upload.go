package sources

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/facette/natsort"
	"github.com/kerbaras/mdbulk/pkg/data"
	"github.com/kerbaras/mdbulk/pkg/utils"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
)

// ErrNoUploadSession is returned by page and commit calls outside an active
// session.
var ErrNoUploadSession = errors.New("no active upload session")

type UploadState int

const (
	NoSession UploadState = iota
	Active
	Committed
	Deleted
)

func (s UploadState) String() string {
	switch s {
	case Active:
		return "active"
	case Committed:
		return "committed"
	case Deleted:
		return "deleted"
	default:
		return "none"
	}
}

var pageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// UploadSession drives the server-side draft a chapter is assembled in. The
// server allows one draft per user, so Start always clears any leftover one.
type UploadSession struct {
	api    *utils.API
	logger *zap.Logger

	id    string
	state UploadState
}

func NewUploadSession(api *utils.API, logger *zap.Logger) *UploadSession {
	return &UploadSession{api: api, logger: logger.Named("upload")}
}

func (u *UploadSession) ID() string {
	return u.id
}

func (u *UploadSession) State() UploadState {
	return u.state
}

// Current asks the server for the user's open upload session. It returns ""
// when there is none.
func (u *UploadSession) Current(ctx context.Context) (string, error) {
	var resp struct {
		Result string `json:"result"`
		Data   struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	err := u.api.Do(ctx, utils.Request{
		Method:  http.MethodGet,
		Path:    "upload",
		Auth:    true,
		OnError: utils.IgnoreErrors,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Data.ID, nil
}

// Start opens a new session for mangaID, deleting whatever session the user
// still has open.
func (u *UploadSession) Start(ctx context.Context, mangaID string, groups []string) error {
	existing, err := u.Current(ctx)
	if err != nil {
		return fmt.Errorf("failed to look up upload session: %w", err)
	}
	if existing != "" {
		u.logger.Info("deleting stale upload session", zap.String("session", existing))
		if err := u.delete(ctx, existing); err != nil {
			return fmt.Errorf("failed to delete stale upload session: %w", err)
		}
	}
	if u.state == Active {
		u.state = Deleted
	}

	if groups == nil {
		groups = []string{}
	}
	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	err = u.api.Do(ctx, utils.Request{
		Method: http.MethodPost,
		Path:   "upload/begin",
		Auth:   true,
		JSON:   map[string]any{"manga": mangaID, "groups": groups},
	}, &resp)
	if err != nil {
		return fmt.Errorf("failed to begin upload session: %w", err)
	}
	if resp.Data.ID == "" {
		return errors.New("upload session response carried no id")
	}

	u.id = resp.Data.ID
	u.state = Active
	return nil
}

// AddPage uploads one page and returns its id.
func (u *UploadSession) AddPage(ctx context.Context, name string, page io.Reader) (string, error) {
	if u.state != Active {
		return "", ErrNoUploadSession
	}

	var resp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	err := u.api.Do(ctx, utils.Request{
		Method: http.MethodPost,
		Path:   "upload/" + u.id,
		Auth:   true,
		File:   &utils.FilePart{Field: "page", Name: name, Content: page},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("failed to upload page %s: %w", name, err)
	}
	if len(resp.Data) == 0 || resp.Data[0].ID == "" {
		return "", fmt.Errorf("page %s: response carried no page id", name)
	}
	return resp.Data[0].ID, nil
}

// Commit turns the session into a chapter and returns the chapter id.
func (u *UploadSession) Commit(ctx context.Context, draft data.ChapterDraft, pageOrder []string) (string, error) {
	if u.state != Active {
		return "", ErrNoUploadSession
	}
	if pageOrder == nil {
		pageOrder = []string{}
	}

	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	err := u.api.Do(ctx, utils.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("upload/%s/commit", u.id),
		Auth:   true,
		JSON:   map[string]any{"chapterDraft": draft, "pageOrder": pageOrder},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("failed to commit upload session: %w", err)
	}
	u.state = Committed
	return resp.Data.ID, nil
}

// Discard deletes the active session.
func (u *UploadSession) Discard(ctx context.Context) error {
	if u.state != Active {
		return ErrNoUploadSession
	}
	if err := u.delete(ctx, u.id); err != nil {
		return err
	}
	u.state = Deleted
	return nil
}

func (u *UploadSession) delete(ctx context.Context, id string) error {
	return u.api.Do(ctx, utils.Request{
		Method: http.MethodDelete,
		Path:   "upload/" + id,
		Auth:   true,
	}, nil)
}

// UploadChapter runs a whole upload: start, one call per page, commit.
// Chapters without a file are committed with no pages.
func (u *UploadSession) UploadChapter(ctx context.Context, chapter data.Chapter) (string, error) {
	if err := u.Start(ctx, chapter.MangaID, chapter.Groups); err != nil {
		return "", err
	}

	pageOrder, err := u.uploadArchive(ctx, chapter.File)
	if err == nil {
		var id string
		id, err = u.Commit(ctx, chapter.Draft(), pageOrder)
		if err == nil {
			return id, nil
		}
	}

	if discardErr := u.Discard(ctx); discardErr != nil && !errors.Is(discardErr, ErrNoUploadSession) {
		u.logger.Warn("failed to discard upload session", zap.String("session", u.id), zap.Error(discardErr))
	}
	return "", err
}

func (u *UploadSession) uploadArchive(ctx context.Context, file string) ([]string, error) {
	if file == "" {
		return nil, nil
	}

	archive, err := zip.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	pages := ArchivePages(archive.File)
	if len(pages) == 0 {
		return nil, fmt.Errorf("archive %s contains no pages", file)
	}

	pageOrder := make([]string, 0, len(pages))
	for _, page := range pages {
		content, err := readPage(page)
		if err != nil {
			return nil, err
		}
		id, err := u.AddPage(ctx, path.Base(page.Name), bytes.NewReader(content))
		if err != nil {
			return nil, err
		}
		pageOrder = append(pageOrder, id)
	}
	u.logger.Debug("uploaded pages", zap.String("archive", file), zap.Int("pages", len(pageOrder)))
	return pageOrder, nil
}

// ArchivePages returns the image entries of an archive in natural order
// ("2.png" before "10.png").
func ArchivePages(files []*zip.File) []*zip.File {
	byName := make(map[string]*zip.File)
	names := make([]string, 0, len(files))
	for _, f := range files {
		if f.FileInfo().IsDir() || !isPage(f.Name) {
			continue
		}
		byName[f.Name] = f
		names = append(names, f.Name)
	}
	natsort.Sort(names)

	pages := make([]*zip.File, len(names))
	for i, name := range names {
		pages[i] = byName[name]
	}
	return pages
}

func isPage(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, allowed := range pageExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// readPage loads an entry and makes sure its header decodes as an image.
func readPage(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open page %s: %w", f.Name, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read page %s: %w", f.Name, err)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("page %s is not a readable image: %w", f.Name, err)
	}
	return content, nil
}
