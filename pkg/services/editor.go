package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/kerbaras/mdbulk/pkg/data"
	"github.com/kerbaras/mdbulk/pkg/logging"
	"github.com/kerbaras/mdbulk/pkg/metrics"
	"github.com/kerbaras/mdbulk/pkg/sources"
	"go.uber.org/zap"
)

// ErrMisaligned is returned when the old and new record lists differ in
// length.
var ErrMisaligned = errors.New("old and new chapter lists differ in length")

const (
	ActionEdit       = "edit"
	ActionUpload     = "upload"
	ActionDelete     = "delete"
	ActionDeactivate = "deactivate"
	ActionReactivate = "reactivate"
	ActionRestore    = "restore"
)

// SnapshotStore keeps the {old, new} pair of every edit batch.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot data.Snapshot) error
}

// Editor applies bulk operations one chapter at a time. A failing chapter
// is recorded and the batch moves on.
type Editor struct {
	source    sources.Source
	uploader  sources.Uploader
	snapshots SnapshotStore
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewEditor(source sources.Source, uploader sources.Uploader, snapshots SnapshotStore, m *metrics.Metrics, logger *zap.Logger) *Editor {
	return &Editor{
		source:    source,
		uploader:  uploader,
		snapshots: snapshots,
		metrics:   m,
		logger:    logger.Named("editor"),
		now:       time.Now,
	}
}

// CommitEdits brings every chapter from its old state to its new one with
// the fewest calls: a manga move, an uploader move and a metadata edit, each
// only when needed. The returned records carry the versions the server ended
// up with.
//
// The snapshot is written before the first call; if that fails nothing is
// sent. Cancellation is checked between chapters only.
func (e *Editor) CommitEdits(ctx context.Context, old, edited []data.Chapter) (data.Tally, []data.Chapter, error) {
	if len(old) != len(edited) {
		return data.Tally{}, nil, fmt.Errorf("%w: %d old, %d new", ErrMisaligned, len(old), len(edited))
	}

	updated := make([]data.Chapter, len(edited))
	for i, c := range edited {
		updated[i] = c.Clone()
	}
	if len(old) > 0 {
		snapshot := data.Snapshot{ID: uuid.NewString(), CreatedAt: e.now().UTC(), Old: old, New: edited}
		if err := e.snapshots.SaveSnapshot(ctx, snapshot); err != nil {
			return data.Tally{}, nil, fmt.Errorf("failed to save snapshot: %w", err)
		}
		e.logger.Info("saved edit snapshot", zap.String("snapshot", snapshot.ID))
	}

	var tally data.Tally
	total := len(old)
	for i := range old {
		if ctx.Err() != nil {
			tally.Cancelled = true
			break
		}
		item := logging.Counter(i, total)
		id := edited[i].ID

		calls, err := e.commitOne(context.WithoutCancel(ctx), old[i].Clone(), &updated[i])
		outcome := OutcomeDone
		switch {
		case err != nil:
			outcome = OutcomeErrored
			tally.Errored = append(tally.Errored, id)
			e.logger.Error("failed to edit chapter", zap.String("item", item), zap.String("chapter", id), zap.Error(err))
		case calls == 0:
			outcome = OutcomeSkipped
			tally.Skipped = append(tally.Skipped, id)
			e.logger.Info("skipping unchanged chapter", zap.String("item", item), zap.String("chapter", id))
		default:
			tally.Done = append(tally.Done, id)
			e.logger.Info("edited chapter", zap.String("item", item), zap.String("chapter", id), zap.Int("calls", calls))
		}
		e.metrics.Item(ActionEdit, string(outcome))
		reportProgress(ctx, Progress{Action: ActionEdit, Index: i, Total: total, ChapterID: id, Outcome: outcome, Error: err})
	}

	e.logSummary(ActionEdit, tally)
	return tally, updated, nil
}

// commitOne returns how many calls succeeded. Every successful call bumps
// the version on both sides so the next call is not rejected as stale.
func (e *Editor) commitOne(ctx context.Context, old data.Chapter, next *data.Chapter) (int, error) {
	if next.ID == "" {
		if old.SameContent(*next) && old.MangaID == next.MangaID && old.UploaderID == next.UploaderID {
			return 0, nil
		}
		return 0, errors.New("chapter has no id")
	}

	calls := 0
	if next.MangaID != old.MangaID {
		if err := e.source.MoveChapterManga(ctx, next.ID, next.MangaID); err != nil {
			return calls, fmt.Errorf("failed to move chapter to manga %s: %w", next.MangaID, err)
		}
		calls++
		next.Version++
		old.Version = next.Version
		old.MangaID = next.MangaID
	}

	if next.UploaderID != old.UploaderID {
		if err := e.source.MoveChapterUploader(ctx, next.ID, next.UploaderID, next.Version); err != nil {
			return calls, fmt.Errorf("failed to move chapter to uploader %s: %w", next.UploaderID, err)
		}
		calls++
		next.Version++
		old.Version = next.Version
		old.UploaderID = next.UploaderID
	}

	if !old.SameContent(*next) {
		if err := e.source.EditChapter(ctx, *next); err != nil {
			return calls, fmt.Errorf("failed to edit chapter: %w", err)
		}
		calls++
		next.Version++
	}
	return calls, nil
}

// UploadAll uploads the drafts in order. Done holds the new chapter ids.
func (e *Editor) UploadAll(ctx context.Context, records []data.Chapter) data.Tally {
	var tally data.Tally
	total := len(records)
	for i, record := range records {
		if ctx.Err() != nil {
			tally.Cancelled = true
			break
		}
		item := logging.Counter(i, total)
		label := uploadLabel(i, record)

		e.logger.Info("uploading chapter", zap.String("item", item), zap.String("chapter", label))
		id, err := e.uploader.UploadChapter(context.WithoutCancel(ctx), record)
		outcome := OutcomeDone
		if err != nil {
			outcome = OutcomeErrored
			tally.Errored = append(tally.Errored, label)
			e.logger.Error("failed to upload chapter", zap.String("item", item), zap.String("chapter", label), zap.Error(err))
		} else {
			tally.Done = append(tally.Done, id)
			e.logger.Info("uploaded chapter", zap.String("item", item), zap.String("chapter", id))
		}
		e.metrics.Item(ActionUpload, string(outcome))
		reportProgress(ctx, Progress{Action: ActionUpload, Index: i, Total: total, ChapterID: id, Outcome: outcome, Error: err})
	}

	e.logSummary(ActionUpload, tally)
	return tally
}

func uploadLabel(i int, c data.Chapter) string {
	if c.File != "" {
		return filepath.Base(c.File)
	}
	return fmt.Sprintf("#%d", i+1)
}

func (e *Editor) Delete(ctx context.Context, records []data.Chapter) data.Tally {
	return e.each(ctx, ActionDelete, records, e.source.DeleteChapter)
}

func (e *Editor) Deactivate(ctx context.Context, records []data.Chapter) data.Tally {
	return e.each(ctx, ActionDeactivate, records, e.source.DeactivateChapter)
}

func (e *Editor) Reactivate(ctx context.Context, records []data.Chapter) data.Tally {
	return e.each(ctx, ActionReactivate, records, e.source.ReactivateChapter)
}

func (e *Editor) Restore(ctx context.Context, records []data.Chapter) data.Tally {
	return e.each(ctx, ActionRestore, records, e.source.RestoreChapter)
}

// each makes one call per chapter. Chapters without an id are skipped.
func (e *Editor) each(ctx context.Context, action string, records []data.Chapter, call func(context.Context, string) error) data.Tally {
	var tally data.Tally
	total := len(records)
	for i, record := range records {
		if ctx.Err() != nil {
			tally.Cancelled = true
			break
		}
		item := logging.Counter(i, total)

		var err error
		outcome := OutcomeDone
		switch {
		case record.ID == "":
			outcome = OutcomeSkipped
			tally.Skipped = append(tally.Skipped, fmt.Sprintf("#%d", i+1))
			e.logger.Warn("skipping chapter without id", zap.String("item", item), zap.String("action", action))
		default:
			err = call(context.WithoutCancel(ctx), record.ID)
			if err != nil {
				outcome = OutcomeErrored
				tally.Errored = append(tally.Errored, record.ID)
				e.logger.Error("chapter action failed", zap.String("item", item), zap.String("action", action),
					zap.String("chapter", record.ID), zap.Error(err))
			} else {
				tally.Done = append(tally.Done, record.ID)
				e.logger.Info("chapter action done", zap.String("item", item), zap.String("action", action),
					zap.String("chapter", record.ID))
			}
		}
		e.metrics.Item(action, string(outcome))
		reportProgress(ctx, Progress{Action: action, Index: i, Total: total, ChapterID: record.ID, Outcome: outcome, Error: err})
	}

	e.logSummary(action, tally)
	return tally
}

// PrepareRestore pairs the chapters of a snapshot's old state with their
// current state. restored holds the old values at the current version, so
// CommitEdits(current, restored) undoes the batch. Chapters the API no
// longer returns are left out.
func (e *Editor) PrepareRestore(ctx context.Context, snapshot *data.Snapshot) (current, restored []data.Chapter, err error) {
	ids := make([]string, 0, len(snapshot.Old))
	for _, c := range snapshot.Old {
		if c.ID != "" {
			ids = append(ids, c.ID)
		}
	}

	fetched, err := e.source.ChaptersByID(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch snapshot chapters: %w", err)
	}
	byID := make(map[string]data.Chapter, len(fetched))
	for _, c := range fetched {
		byID[c.ID] = c
	}

	for _, old := range snapshot.Old {
		cur, ok := byID[old.ID]
		if !ok {
			e.logger.Warn("chapter from snapshot is no longer available", zap.String("chapter", old.ID))
			continue
		}
		target := old.Clone()
		target.Version = cur.Version
		current = append(current, cur)
		restored = append(restored, target)
	}
	return current, restored, nil
}

func (e *Editor) logSummary(action string, tally data.Tally) {
	e.logger.Info("finished",
		zap.String("action", action),
		zap.Int("done", len(tally.Done)),
		zap.Int("skipped", len(tally.Skipped)),
		zap.Int("errored", len(tally.Errored)),
		zap.Bool("cancelled", tally.Cancelled),
	)
}
