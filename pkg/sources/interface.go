package sources

import (
	"context"

	"github.com/kerbaras/mdbulk/pkg/data"
)

// Source lists and mutates existing chapters.
type Source interface {
	ListChapters(ctx context.Context, sel data.Selection) ([]data.Chapter, error)
	ListUnavailable(ctx context.Context, sel data.Selection) ([]data.Chapter, error)
	ChaptersByID(ctx context.Context, ids []string) ([]data.Chapter, error)

	EditChapter(ctx context.Context, chapter data.Chapter) error
	MoveChapterManga(ctx context.Context, id, mangaID string) error
	MoveChapterUploader(ctx context.Context, id, uploaderID string, version int) error
	DeleteChapter(ctx context.Context, id string) error
	DeactivateChapter(ctx context.Context, id string) error
	ReactivateChapter(ctx context.Context, id string) error
	RestoreChapter(ctx context.Context, id string) error
}

// Uploader creates new chapters.
type Uploader interface {
	UploadChapter(ctx context.Context, chapter data.Chapter) (string, error)
}

var (
	_ Source   = (*MangaDex)(nil)
	_ Uploader = (*UploadSession)(nil)
)
