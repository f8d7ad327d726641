package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/kerbaras/mdbulk/pkg/data"
	"github.com/kerbaras/mdbulk/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// Mock implementations for testing

type mockSource struct {
	mu    sync.Mutex
	calls []string

	listChaptersFunc        func(sel data.Selection) ([]data.Chapter, error)
	listUnavailableFunc     func(sel data.Selection) ([]data.Chapter, error)
	chaptersByIDFunc        func(ids []string) ([]data.Chapter, error)
	editChapterFunc         func(chapter data.Chapter) error
	moveChapterMangaFunc    func(id, mangaID string) error
	moveChapterUploaderFunc func(id, uploaderID string, version int) error
	actionFunc              func(action, id string) error
}

func (m *mockSource) record(format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
}

func (m *mockSource) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockSource) ListChapters(_ context.Context, sel data.Selection) ([]data.Chapter, error) {
	if m.listChaptersFunc != nil {
		return m.listChaptersFunc(sel)
	}
	return nil, nil
}

func (m *mockSource) ListUnavailable(_ context.Context, sel data.Selection) ([]data.Chapter, error) {
	if m.listUnavailableFunc != nil {
		return m.listUnavailableFunc(sel)
	}
	return nil, nil
}

func (m *mockSource) ChaptersByID(_ context.Context, ids []string) ([]data.Chapter, error) {
	if m.chaptersByIDFunc != nil {
		return m.chaptersByIDFunc(ids)
	}
	return nil, nil
}

func (m *mockSource) EditChapter(_ context.Context, chapter data.Chapter) error {
	m.record("edit %s v%d", chapter.ID, chapter.Version)
	if m.editChapterFunc != nil {
		return m.editChapterFunc(chapter)
	}
	return nil
}

func (m *mockSource) MoveChapterManga(_ context.Context, id, mangaID string) error {
	m.record("move %s manga=%s", id, mangaID)
	if m.moveChapterMangaFunc != nil {
		return m.moveChapterMangaFunc(id, mangaID)
	}
	return nil
}

func (m *mockSource) MoveChapterUploader(_ context.Context, id, uploaderID string, version int) error {
	m.record("move %s uploader=%s v%d", id, uploaderID, version)
	if m.moveChapterUploaderFunc != nil {
		return m.moveChapterUploaderFunc(id, uploaderID, version)
	}
	return nil
}

func (m *mockSource) action(name, id string) error {
	m.record("%s %s", name, id)
	if m.actionFunc != nil {
		return m.actionFunc(name, id)
	}
	return nil
}

func (m *mockSource) DeleteChapter(_ context.Context, id string) error {
	return m.action(ActionDelete, id)
}

func (m *mockSource) DeactivateChapter(_ context.Context, id string) error {
	return m.action(ActionDeactivate, id)
}

func (m *mockSource) ReactivateChapter(_ context.Context, id string) error {
	return m.action(ActionReactivate, id)
}

func (m *mockSource) RestoreChapter(_ context.Context, id string) error {
	return m.action(ActionRestore, id)
}

type mockUploader struct {
	uploadFunc func(chapter data.Chapter) (string, error)
}

func (m *mockUploader) UploadChapter(_ context.Context, chapter data.Chapter) (string, error) {
	if m.uploadFunc != nil {
		return m.uploadFunc(chapter)
	}
	return "new-" + data.Value(chapter.Number), nil
}

type mockSnapshots struct {
	saved []data.Snapshot
	err   error
}

func (m *mockSnapshots) SaveSnapshot(_ context.Context, snapshot data.Snapshot) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, snapshot)
	return nil
}

func newTestEditor(source *mockSource) (*Editor, *mockSnapshots, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	snapshots := &mockSnapshots{}
	return NewEditor(source, &mockUploader{}, snapshots, nil, zap.New(core)), snapshots, logs
}

func chapter(id string, version int) data.Chapter {
	return data.Chapter{
		ID:         id,
		Version:    version,
		MangaID:    "m1",
		Groups:     []string{"g1"},
		Volume:     data.Ptr("1"),
		Number:     data.Ptr("1"),
		Language:   data.Ptr("en"),
		UploaderID: "u1",
	}
}

func TestEditor_CommitEditsSkipsUnchanged(t *testing.T) {
	source := &mockSource{}
	editor, snapshots, _ := newTestEditor(source)
	old := []data.Chapter{chapter("a", 1)}

	tally, updated, err := editor.CommitEdits(context.Background(), old, []data.Chapter{old[0].Clone()})

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, tally.Skipped)
	assert.Empty(t, tally.Done)
	assert.Empty(t, source.Calls())
	assert.Equal(t, 1, updated[0].Version)
	assert.Len(t, snapshots.saved, 1)
}

func TestEditor_CommitEditsMoveOnly(t *testing.T) {
	source := &mockSource{}
	editor, _, _ := newTestEditor(source)
	old := []data.Chapter{chapter("a", 4)}
	edited := old[0].Clone()
	edited.MangaID = "m2"

	tally, updated, err := editor.CommitEdits(context.Background(), old, []data.Chapter{edited})

	require.NoError(t, err)
	assert.Equal(t, []string{"move a manga=m2"}, source.Calls())
	assert.Equal(t, []string{"a"}, tally.Done)
	assert.Equal(t, 5, updated[0].Version)
	assert.Equal(t, "m2", updated[0].MangaID)
}

func TestEditor_CommitEditsBumpsVersionPerCall(t *testing.T) {
	source := &mockSource{}
	editor, _, _ := newTestEditor(source)
	old := []data.Chapter{chapter("a", 4)}
	edited := old[0].Clone()
	edited.MangaID = "m2"
	edited.UploaderID = "u2"
	edited.Title = data.Ptr("Renamed")

	tally, updated, err := editor.CommitEdits(context.Background(), old, []data.Chapter{edited})

	require.NoError(t, err)
	assert.Equal(t, []string{
		"move a manga=m2",
		"move a uploader=u2 v5",
		"edit a v6",
	}, source.Calls())
	assert.Equal(t, []string{"a"}, tally.Done)
	assert.Equal(t, 7, updated[0].Version)
}

func TestEditor_CommitEditsIsolatesFailures(t *testing.T) {
	source := &mockSource{
		editChapterFunc: func(c data.Chapter) error {
			if c.ID == "b" {
				return errors.New("version mismatch")
			}
			return nil
		},
	}
	editor, _, logs := newTestEditor(source)

	old := []data.Chapter{chapter("a", 1), chapter("b", 1), chapter("c", 1)}
	edited := make([]data.Chapter, len(old))
	for i, c := range old {
		edited[i] = c.Clone()
		edited[i].Title = data.Ptr("New")
	}
	edited[2].Title = old[2].Title

	tally, updated, err := editor.CommitEdits(context.Background(), old, edited)

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, tally.Done)
	assert.Equal(t, []string{"b"}, tally.Errored)
	assert.Equal(t, []string{"c"}, tally.Skipped)
	assert.Equal(t, 2, updated[0].Version)
	assert.Equal(t, 1, updated[1].Version)

	failures := logs.FilterMessage("failed to edit chapter").All()
	require.Len(t, failures, 1)
	assert.Equal(t, "   2/3   ", failures[0].ContextMap()["item"])
	summary := logs.FilterMessage("finished").All()
	require.Len(t, summary, 1)
	assert.Equal(t, int64(1), summary[0].ContextMap()["errored"])
}

func TestEditor_CommitEditsKeepsPartialVersion(t *testing.T) {
	source := &mockSource{
		editChapterFunc: func(data.Chapter) error { return errors.New("boom") },
	}
	editor, _, _ := newTestEditor(source)
	old := []data.Chapter{chapter("a", 1)}
	edited := old[0].Clone()
	edited.MangaID = "m2"
	edited.Title = data.Ptr("New")

	tally, updated, err := editor.CommitEdits(context.Background(), old, []data.Chapter{edited})

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, tally.Errored)
	assert.Equal(t, 2, updated[0].Version, "the move went through")
}

func TestEditor_CommitEditsMisaligned(t *testing.T) {
	source := &mockSource{}
	editor, snapshots, _ := newTestEditor(source)

	_, _, err := editor.CommitEdits(context.Background(), []data.Chapter{chapter("a", 1)}, nil)

	assert.ErrorIs(t, err, ErrMisaligned)
	assert.Empty(t, snapshots.saved)
}

func TestEditor_CommitEditsSnapshotFailureSendsNothing(t *testing.T) {
	source := &mockSource{}
	editor, snapshots, _ := newTestEditor(source)
	snapshots.err = errors.New("disk full")
	old := []data.Chapter{chapter("a", 1)}
	edited := old[0].Clone()
	edited.Title = data.Ptr("x")

	_, _, err := editor.CommitEdits(context.Background(), old, []data.Chapter{edited})

	require.Error(t, err)
	assert.Empty(t, source.Calls())
}

func TestEditor_CommitEditsDoesNotTouchInput(t *testing.T) {
	editor, snapshots, _ := newTestEditor(&mockSource{})
	old := []data.Chapter{chapter("a", 1)}
	edited := []data.Chapter{old[0].Clone()}
	edited[0].Title = data.Ptr("x")

	_, _, err := editor.CommitEdits(context.Background(), old, edited)

	require.NoError(t, err)
	assert.Equal(t, 1, old[0].Version)
	assert.Equal(t, 1, edited[0].Version)
	assert.Equal(t, "x", data.Value(snapshots.saved[0].New[0].Title))
}

func TestEditor_CommitEditsCancelledBetweenItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	source := &mockSource{
		editChapterFunc: func(c data.Chapter) error {
			if c.ID == "a" {
				cancel()
			}
			return nil
		},
	}
	editor, _, _ := newTestEditor(source)
	old := []data.Chapter{chapter("a", 1), chapter("b", 1)}
	edited := []data.Chapter{old[0].Clone(), old[1].Clone()}
	edited[0].Title = data.Ptr("x")
	edited[1].Title = data.Ptr("y")

	tally, _, err := editor.CommitEdits(ctx, old, edited)

	require.NoError(t, err)
	assert.True(t, tally.Cancelled)
	assert.Equal(t, []string{"a"}, tally.Done)
	assert.Equal(t, []string{"edit a v1"}, source.Calls())
}

func TestEditor_SingleCallActions(t *testing.T) {
	source := &mockSource{
		actionFunc: func(action, id string) error {
			if id == "b" {
				return errors.New("forbidden")
			}
			return nil
		},
	}
	editor, _, _ := newTestEditor(source)
	records := []data.Chapter{chapter("a", 1), chapter("b", 1), {}}

	tests := []struct {
		action string
		run    func(context.Context, []data.Chapter) data.Tally
	}{
		{ActionDelete, editor.Delete},
		{ActionDeactivate, editor.Deactivate},
		{ActionReactivate, editor.Reactivate},
		{ActionRestore, editor.Restore},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			before := len(source.Calls())
			tally := tt.run(context.Background(), records)

			assert.Equal(t, []string{"a"}, tally.Done)
			assert.Equal(t, []string{"b"}, tally.Errored)
			assert.Equal(t, []string{"#3"}, tally.Skipped)
			assert.Equal(t, []string{tt.action + " a", tt.action + " b"}, source.Calls()[before:])
		})
	}
}

func TestEditor_UploadAll(t *testing.T) {
	uploader := &mockUploader{
		uploadFunc: func(c data.Chapter) (string, error) {
			if data.Value(c.Number) == "2" {
				return "", errors.New("bad archive")
			}
			return "id-" + data.Value(c.Number), nil
		},
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	editor := NewEditor(&mockSource{}, uploader, &mockSnapshots{}, m, zap.NewNop())

	records := []data.Chapter{
		{Number: data.Ptr("1"), File: "/tmp/ch1.zip"},
		{Number: data.Ptr("2"), File: "/tmp/ch2.zip"},
		{Number: data.Ptr("3")},
	}
	tally := editor.UploadAll(context.Background(), records)

	assert.Equal(t, []string{"id-1", "id-3"}, tally.Done)
	assert.Equal(t, []string{"ch2.zip"}, tally.Errored)

	expected := `
# HELP mdbulk_bulk_items_total Bulk operation items by action and outcome.
# TYPE mdbulk_bulk_items_total counter
mdbulk_bulk_items_total{action="upload",outcome="done"} 2
mdbulk_bulk_items_total{action="upload",outcome="errored"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "mdbulk_bulk_items_total"))
}

func TestEditor_PrepareRestore(t *testing.T) {
	source := &mockSource{
		chaptersByIDFunc: func(ids []string) ([]data.Chapter, error) {
			assert.Equal(t, []string{"a", "b"}, ids)
			current := chapter("a", 9)
			current.Title = data.Ptr("Edited")
			return []data.Chapter{current}, nil
		},
	}
	editor, _, logs := newTestEditor(source)
	original := chapter("a", 3)
	original.Title = data.Ptr("Original")
	snapshot := &data.Snapshot{Old: []data.Chapter{original, chapter("b", 1)}}

	current, restored, err := editor.PrepareRestore(context.Background(), snapshot)

	require.NoError(t, err)
	require.Len(t, current, 1)
	require.Len(t, restored, 1)
	assert.Equal(t, "Edited", data.Value(current[0].Title))
	assert.Equal(t, "Original", data.Value(restored[0].Title))
	assert.Equal(t, 9, restored[0].Version)
	assert.Equal(t, 1, logs.FilterMessage("chapter from snapshot is no longer available").Len())

	tally, _, err := editor.CommitEdits(context.Background(), current, restored)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, tally.Done)
	assert.Equal(t, []string{"edit a v9"}, source.Calls())
}
