package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kerbaras/mdbulk/pkg/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_WaitReturnsResult(t *testing.T) {
	job := StartJob(context.Background(), "edit", func(ctx context.Context) (data.Tally, error) {
		reportProgress(ctx, Progress{Action: ActionEdit, Index: 0, Total: 1, ChapterID: "a", Outcome: OutcomeDone})
		return data.Tally{Done: []string{"a"}}, nil
	})

	tally, err := job.Wait()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, tally.Done)
	assert.NotEmpty(t, job.ID())
	assert.Equal(t, "edit", job.Name())

	var updates []Progress
	for p := range job.Progress() {
		updates = append(updates, p)
	}
	require.Len(t, updates, 1)
	assert.Equal(t, "a", updates[0].ChapterID)
}

func TestJob_Cancel(t *testing.T) {
	started := make(chan struct{})
	job := StartJob(context.Background(), "delete", func(ctx context.Context) (data.Tally, error) {
		close(started)
		<-ctx.Done()
		return data.Tally{Cancelled: true}, ctx.Err()
	})

	<-started
	job.Cancel()

	select {
	case <-job.Done():
	case <-time.After(time.Second):
		t.Fatal("job did not stop after Cancel")
	}
	tally, err := job.Wait()
	assert.True(t, tally.Cancelled)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestJob_ProgressNeverBlocks(t *testing.T) {
	job := StartJob(context.Background(), "upload", func(ctx context.Context) (data.Tally, error) {
		for i := 0; i < 1000; i++ {
			reportProgress(ctx, Progress{Index: i, Total: 1000})
		}
		return data.Tally{}, nil
	})

	select {
	case <-job.Done():
	case <-time.After(time.Second):
		t.Fatal("job blocked on an unread progress channel")
	}
}

func TestReportProgressWithoutJob(t *testing.T) {
	assert.NotPanics(t, func() {
		reportProgress(context.Background(), Progress{})
	})
}
