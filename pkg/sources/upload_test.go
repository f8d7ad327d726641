package sources

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/kerbaras/mdbulk/pkg/data"
	"github.com/kerbaras/mdbulk/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// uploadServer mimics the upload endpoints and keeps at most the sessions
// it was told about.
type uploadServer struct {
	mu       sync.Mutex
	open     map[string]bool
	next     int
	pages    []string
	commits  []map[string]any
	deleted  []string
	failPage string
}

func (u *uploadServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	defer u.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodGet && path == "upload":
		for id := range u.open {
			fmt.Fprintf(w, `{"result":"ok","data":{"id":%q}}`, id)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"result":"error","errors":[{"title":"No upload session"}]}`))
	case r.Method == http.MethodPost && path == "upload/begin":
		u.next++
		id := fmt.Sprintf("session-%d", u.next)
		u.open[id] = true
		fmt.Fprintf(w, `{"result":"ok","data":{"id":%q}}`, id)
	case r.Method == http.MethodDelete && strings.HasPrefix(path, "upload/"):
		id := strings.TrimPrefix(path, "upload/")
		delete(u.open, id)
		u.deleted = append(u.deleted, id)
		w.Write([]byte(`{"result":"ok"}`))
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/commit"):
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		u.commits = append(u.commits, body)
		delete(u.open, strings.TrimSuffix(strings.TrimPrefix(path, "upload/"), "/commit"))
		w.Write([]byte(`{"result":"ok","data":{"id":"chapter-1"}}`))
	case r.Method == http.MethodPost && strings.HasPrefix(path, "upload/"):
		file, header, err := r.FormFile("page")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		io.Copy(io.Discard, file)
		file.Close()
		if header.Filename == u.failPage {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"result":"error","errors":[{"title":"Bad page"}]}`))
			return
		}
		u.pages = append(u.pages, header.Filename)
		fmt.Fprintf(w, `{"result":"ok","data":[{"id":"page-%s"}]}`, header.Filename)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestUpload(t *testing.T) (*UploadSession, *uploadServer) {
	t.Helper()
	backend := &uploadServer{open: map[string]bool{}}
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	api := utils.NewAPI(server.URL)
	api.SetAuthorizer(fixedToken("tok"))
	return NewUploadSession(api, zap.NewNop()), backend
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func writeArchive(t *testing.T, entries map[string][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chapter.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range entries {
		part, err := w.Create(name)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return path
}

func TestUploadSession_StartDeletesStaleSession(t *testing.T) {
	u, backend := newTestUpload(t)
	backend.open["leftover"] = true
	ctx := context.Background()

	require.NoError(t, u.Start(ctx, "m1", nil))
	assert.Equal(t, Active, u.State())
	assert.Equal(t, []string{"leftover"}, backend.deleted)

	first := u.ID()
	require.NoError(t, u.Start(ctx, "m1", []string{"g1"}))
	assert.Equal(t, []string{"leftover", first}, backend.deleted)
	assert.Len(t, backend.open, 1, "only one session may stay open")
	assert.True(t, backend.open[u.ID()])
}

func TestUploadSession_OutsideActiveSession(t *testing.T) {
	u, _ := newTestUpload(t)
	ctx := context.Background()

	_, err := u.AddPage(ctx, "1.png", bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrNoUploadSession)
	_, err = u.Commit(ctx, data.ChapterDraft{}, nil)
	assert.ErrorIs(t, err, ErrNoUploadSession)
	assert.ErrorIs(t, u.Discard(ctx), ErrNoUploadSession)
}

func TestUploadSession_CommitIsTerminal(t *testing.T) {
	u, _ := newTestUpload(t)
	ctx := context.Background()
	require.NoError(t, u.Start(ctx, "m1", nil))

	id, err := u.Commit(ctx, data.ChapterDraft{Chapter: data.Ptr("1")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "chapter-1", id)
	assert.Equal(t, Committed, u.State())

	_, err = u.AddPage(ctx, "1.png", bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrNoUploadSession)
}

func TestUploadSession_UploadChapterNaturalOrder(t *testing.T) {
	u, backend := newTestUpload(t)
	page := pngBytes(t)
	archive := writeArchive(t, map[string][]byte{
		"10.png":    page,
		"2.png":     page,
		"1.png":     page,
		"notes.txt": []byte("credits"),
	})

	chapter := data.Chapter{
		MangaID:  "m1",
		Groups:   []string{"g1"},
		Number:   data.Ptr("3"),
		Language: data.Ptr("en"),
		File:     archive,
	}
	id, err := u.UploadChapter(context.Background(), chapter)

	require.NoError(t, err)
	assert.Equal(t, "chapter-1", id)
	assert.Equal(t, []string{"1.png", "2.png", "10.png"}, backend.pages)
	require.Len(t, backend.commits, 1)
	assert.Equal(t, []any{"page-1.png", "page-2.png", "page-10.png"}, backend.commits[0]["pageOrder"])
	draft := backend.commits[0]["chapterDraft"].(map[string]any)
	assert.Equal(t, "3", draft["chapter"])
	assert.Equal(t, "en", draft["translatedLanguage"])
	assert.Nil(t, draft["volume"])
}

func TestUploadSession_ExternalChapterHasNoPages(t *testing.T) {
	u, backend := newTestUpload(t)

	_, err := u.UploadChapter(context.Background(), data.Chapter{
		MangaID:     "m1",
		Language:    data.Ptr("en"),
		ExternalURL: data.Ptr("https://example.org/read/1"),
	})

	require.NoError(t, err)
	assert.Empty(t, backend.pages)
	require.Len(t, backend.commits, 1)
	assert.Equal(t, []any{}, backend.commits[0]["pageOrder"])
}

func TestUploadSession_FailedPageDiscardsSession(t *testing.T) {
	u, backend := newTestUpload(t)
	backend.failPage = "2.png"
	page := pngBytes(t)
	archive := writeArchive(t, map[string][]byte{"1.png": page, "2.png": page, "3.png": page})

	_, err := u.UploadChapter(context.Background(), data.Chapter{MangaID: "m1", File: archive})

	var apiErr *utils.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, Deleted, u.State())
	assert.Empty(t, backend.open)
	assert.Empty(t, backend.commits)
}

func TestUploadSession_RejectsUnreadableImage(t *testing.T) {
	u, backend := newTestUpload(t)
	archive := writeArchive(t, map[string][]byte{"1.png": []byte("not an image")})

	_, err := u.UploadChapter(context.Background(), data.Chapter{MangaID: "m1", File: archive})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a readable image")
	assert.Empty(t, backend.pages)
	assert.Empty(t, backend.open)
}

func TestUploadSession_ArchiveWithoutPagesFails(t *testing.T) {
	u, backend := newTestUpload(t)
	archive := writeArchive(t, map[string][]byte{"notes.txt": []byte("credits")})

	_, err := u.UploadChapter(context.Background(), data.Chapter{MangaID: "m1", File: archive})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "contains no pages")
	assert.Equal(t, Deleted, u.State())
	assert.Empty(t, backend.commits)
	assert.Empty(t, backend.open)
}

func TestArchivePages(t *testing.T) {
	archive := writeArchive(t, map[string][]byte{
		"chapter/page12.JPG": nil,
		"chapter/page2.webp": nil,
		"chapter/cover.gif":  nil,
		"chapter/info.json":  nil,
		"chapter/page1.jpeg": nil,
	})
	r, err := zip.OpenReader(archive)
	require.NoError(t, err)
	defer r.Close()

	var names []string
	for _, f := range ArchivePages(r.File) {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"chapter/cover.gif", "chapter/page1.jpeg", "chapter/page2.webp", "chapter/page12.JPG"}, names)
}
