package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/kerbaras/mdbulk/pkg/config"
	"github.com/kerbaras/mdbulk/pkg/data"
	"github.com/kerbaras/mdbulk/pkg/input"
	"github.com/kerbaras/mdbulk/pkg/metrics"
	"github.com/kerbaras/mdbulk/pkg/sources"
	"github.com/kerbaras/mdbulk/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultLogin = "default"

// LoginStore remembers a login between runs.
type LoginStore interface {
	SaveLogin(ctx context.Context, login data.SavedLogin) error
	GetLogin(ctx context.Context, name string) (*data.SavedLogin, error)
	DeleteLogin(ctx context.Context, name string) error
}

// Controller is what the CLI talks to. It owns the session and allows one
// mutation job at a time; fetches may run alongside a job.
type Controller struct {
	session  *sources.Session
	source   sources.Source
	editor   *Editor
	repo     *data.Repository
	logins   LoginStore
	logger   *zap.Logger
	remember bool

	mu  sync.Mutex
	job *Job
}

// NewController wires the API client, the session and the stores from cfg.
func NewController(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*Controller, error) {
	opts := []utils.Option{
		utils.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		utils.WithMetrics(m),
		utils.WithLogger(logger.Named("api")),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, utils.WithLimiter(rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)))
	}
	api := utils.NewAPI(cfg.APIURL, opts...)
	session := sources.NewSession(api, cfg.AuthURL, cfg.RefreshMargin, logger)
	api.SetAuthorizer(session)

	repo, err := data.NewDuckDBRepository(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var snapshots SnapshotStore = data.NewFileSnapshots(cfg.SnapshotDir())
	if cfg.SnapshotStore == config.SnapshotStoreDuckDB {
		snapshots = repo
	}

	source := sources.NewMangaDex(api, logger)
	uploader := sources.NewUploadSession(api, logger)
	return &Controller{
		session: session,
		source:  source,
		editor:  NewEditor(source, uploader, snapshots, m, logger),
		repo:    repo,
		logins:  repo,
		logger:  logger,
	}, nil
}

// Login signs in with a password. With remember set the refresh token is
// stored so later runs can Resume.
func (c *Controller) Login(ctx context.Context, creds sources.Credentials, remember bool) error {
	if _, err := c.session.Login(ctx, creds); err != nil {
		return err
	}
	if !remember {
		return nil
	}
	c.remember = true
	return c.saveLogin(ctx)
}

// Resume continues the remembered login.
func (c *Controller) Resume(ctx context.Context) error {
	saved, err := c.logins.GetLogin(ctx, defaultLogin)
	if err != nil {
		return fmt.Errorf("failed to load saved login: %w", err)
	}
	if saved == nil {
		return sources.ErrNotLoggedIn
	}
	if err := c.session.Resume(ctx, *saved); err != nil {
		return err
	}
	c.remember = true
	return c.saveLogin(ctx)
}

func (c *Controller) saveLogin(ctx context.Context) error {
	login := c.session.Saved()
	login.Name = defaultLogin
	if err := c.logins.SaveLogin(ctx, login); err != nil {
		return fmt.Errorf("failed to save login: %w", err)
	}
	return nil
}

// Logout revokes the session and forgets the remembered login.
func (c *Controller) Logout(ctx context.Context) error {
	c.session.Logout(ctx)
	c.remember = false
	return c.logins.DeleteLogin(ctx, defaultLogin)
}

func (c *Controller) LoggedIn() bool {
	return c.session != nil && c.session.LoggedIn()
}

func (c *Controller) ParseUploadInput(fields map[input.Field]string, files []string) []data.Chapter {
	return input.ParseUpload(fields, files)
}

func (c *Controller) ParseEditFilters(fields map[input.Field]string) data.Selection {
	return input.ParseSelection(fields)
}

func (c *Controller) ParseEdits(records []data.Chapter, fields, conditionals map[input.Field]string) []data.Chapter {
	return input.ParseEdits(records, fields, conditionals)
}

// FetchChapters lists the selected chapters. Failures are logged and yield
// an empty list.
func (c *Controller) FetchChapters(ctx context.Context, sel data.Selection) []data.Chapter {
	chapters, err := c.source.ListChapters(ctx, sel)
	if err != nil {
		c.logger.Error("could not get chapters from the API", zap.Error(err))
		return []data.Chapter{}
	}
	return chapters
}

// FetchUnavailable lists deactivated or deleted chapters. Failures are
// logged and yield an empty list.
func (c *Controller) FetchUnavailable(ctx context.Context, sel data.Selection) []data.Chapter {
	chapters, err := c.source.ListUnavailable(ctx, sel)
	if err != nil {
		c.logger.Error("could not get unavailable chapters from the API", zap.Error(err))
		return []data.Chapter{}
	}
	return chapters
}

// StartJob runs fn unless another job is still running.
func (c *Controller) StartJob(ctx context.Context, name string, fn JobFunc) (*Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job != nil {
		select {
		case <-c.job.Done():
		default:
			return nil, fmt.Errorf("%w: %s", ErrJobRunning, c.job.Name())
		}
	}
	c.job = StartJob(ctx, name, fn)
	return c.job, nil
}

func (c *Controller) CommitEdits(ctx context.Context, old, edited []data.Chapter) (*Job, error) {
	return c.StartJob(ctx, ActionEdit, func(ctx context.Context) (data.Tally, error) {
		tally, _, err := c.editor.CommitEdits(ctx, old, edited)
		return tally, err
	})
}

func (c *Controller) UploadAll(ctx context.Context, records []data.Chapter) (*Job, error) {
	return c.StartJob(ctx, ActionUpload, func(ctx context.Context) (data.Tally, error) {
		return c.editor.UploadAll(ctx, records), nil
	})
}

func (c *Controller) Delete(ctx context.Context, records []data.Chapter) (*Job, error) {
	return c.action(ctx, ActionDelete, records, c.editor.Delete)
}

func (c *Controller) Deactivate(ctx context.Context, records []data.Chapter) (*Job, error) {
	return c.action(ctx, ActionDeactivate, records, c.editor.Deactivate)
}

func (c *Controller) Reactivate(ctx context.Context, records []data.Chapter) (*Job, error) {
	return c.action(ctx, ActionReactivate, records, c.editor.Reactivate)
}

func (c *Controller) Restore(ctx context.Context, records []data.Chapter) (*Job, error) {
	return c.action(ctx, ActionRestore, records, c.editor.Restore)
}

func (c *Controller) action(ctx context.Context, name string, records []data.Chapter, run func(context.Context, []data.Chapter) data.Tally) (*Job, error) {
	return c.StartJob(ctx, name, func(ctx context.Context) (data.Tally, error) {
		return run(ctx, records), nil
	})
}

func (c *Controller) PrepareRestore(ctx context.Context, snapshot *data.Snapshot) (current, restored []data.Chapter, err error) {
	return c.editor.PrepareRestore(ctx, snapshot)
}

// LoadSnapshot reads a snapshot from a file path or, failing that, looks
// the reference up as a snapshot id in the database.
func (c *Controller) LoadSnapshot(ctx context.Context, ref string) (*data.Snapshot, error) {
	if _, err := os.Stat(ref); err == nil {
		return data.LoadSnapshot(ref)
	}
	if c.repo == nil {
		return nil, fmt.Errorf("snapshot %s not found", ref)
	}
	snapshot, err := c.repo.GetSnapshot(ctx, ref)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, fmt.Errorf("snapshot %s not found", ref)
	}
	return snapshot, nil
}

func (c *Controller) ListSnapshots(ctx context.Context) ([]*data.Snapshot, error) {
	if c.repo == nil {
		return nil, nil
	}
	return c.repo.ListSnapshots(ctx)
}

// Close stores the latest refresh token of a remembered login and closes
// the database.
func (c *Controller) Close() error {
	var errs []error
	if c.remember && c.LoggedIn() {
		errs = append(errs, c.saveLogin(context.Background()))
	}
	if c.repo != nil {
		errs = append(errs, c.repo.Close())
	}
	return errors.Join(errs...)
}
