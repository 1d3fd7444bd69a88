package watcher

import (
	"context"
	"fmt"
	"time"

	"flatwatch/internal/logger"
	"flatwatch/internal/model"
	"flatwatch/internal/notify"
	"flatwatch/internal/report"
	"flatwatch/internal/snapshot"

	"go.uber.org/multierr"
)

// errorReportTimeout bounds delivery of the error report, which is sent even
// when the run context was cancelled or timed out.
const errorReportTimeout = 30 * time.Second

// Fetcher produces the current snapshot of the listings site.
type Fetcher interface {
	FetchAll(ctx context.Context) (model.Snapshot, error)
}

// State is the input of one cycle: the cached snapshot and the freshly fetched one.
type State struct {
	Old model.Snapshot
	New model.Snapshot
}

// Outcome is what a cycle produced: the diff and the rendered report.
type Outcome struct {
	Diff    snapshot.Result
	Subject string
	Body    string
}

// Watcher runs one fetch, diff, persist and notify cycle.
type Watcher struct {
	fetcher  Fetcher
	store    snapshot.Store
	renderer *report.Renderer
	notifier notify.Notifier
	logger   logger.Logger
}

func New(fetcher Fetcher, store snapshot.Store, renderer *report.Renderer, notifier notify.Notifier, logger logger.Logger) *Watcher {
	return &Watcher{
		fetcher:  fetcher,
		store:    store,
		renderer: renderer,
		notifier: notifier,
		logger:   logger,
	}
}

// Load reads the previous snapshot and then fetches the current one.
func (w *Watcher) Load(ctx context.Context) (*State, error) {
	old, err := w.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cached snapshot: %w", err)
	}
	w.logger.Debugf("Loaded %d cached listings", len(old))

	fresh, err := w.fetcher.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch listings: %w", err)
	}
	w.logger.Infof("Fetched %d listings", len(fresh))

	return &State{Old: old, New: fresh}, nil
}

// Process diffs the state and renders the report. It has no side effects.
func (w *Watcher) Process(state *State) Outcome {
	d := snapshot.Diff(state.Old, state.New)
	return Outcome{
		Diff:    d,
		Subject: w.renderer.Subject(d),
		Body:    w.renderer.Render(d.Added, d.Removed, state.New),
	}
}

// Run executes a full cycle. The new snapshot is saved only after a
// successful fetch and render, and before anything is sent. On failure an
// error report is sent instead and the failure is returned.
func (w *Watcher) Run(ctx context.Context) error {
	out, err := w.prepare(ctx)
	if err != nil {
		w.logger.Errorf("Run failed (%s): %v", model.ErrorKind(err), err)
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), errorReportTimeout)
		defer cancel()
		if nerr := w.notifier.Notify(notifyCtx, w.renderer.ErrorSubject(), w.renderer.RenderError(err)); nerr != nil {
			w.logger.Errorf("Failed to send error report: %v", nerr)
			err = multierr.Append(err, fmt.Errorf("notify: %w", nerr))
		}
		return err
	}

	if err := w.notifier.Notify(ctx, out.Subject, out.Body); err != nil {
		w.logger.Errorf("Failed to send report: %v", err)
		return fmt.Errorf("notify: %w", err)
	}

	w.logger.Infof("Report sent: %s", out.Subject)
	return nil
}

func (w *Watcher) prepare(ctx context.Context) (Outcome, error) {
	state, err := w.Load(ctx)
	if err != nil {
		return Outcome{}, err
	}

	out := w.Process(state)
	w.logger.Infof("%d new, %d removed", len(out.Diff.Added), len(out.Diff.Removed))

	if err := w.store.Save(ctx, state.New); err != nil {
		return Outcome{}, fmt.Errorf("save snapshot: %w", err)
	}
	return out, nil
}
