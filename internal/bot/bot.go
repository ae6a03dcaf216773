package bot

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"clipbot/internal/asset"
	"clipbot/internal/config"
	"clipbot/internal/engine"
	"clipbot/internal/job"
	"clipbot/internal/logging"
	"clipbot/internal/metrics"
	"clipbot/internal/progress"
	"clipbot/internal/session"
	"clipbot/internal/transport"
)

// actorQueueSize bounds how many events a single user may have queued.
// Beyond it events are dropped rather than stalling other users.
const actorQueueSize = 32

// Transcoder is the transform surface the orchestrator drives.
// Satisfied by *engine.Engine.
type Transcoder interface {
	Watermark(ctx context.Context, inputPath, origName string, p engine.WatermarkParams) (string, error)
	Trim(ctx context.Context, inputPath string, startSec, endSec float64) (string, error)
	Merge(ctx context.Context, first, second *asset.MediaAsset) (string, error)
	ReplaceAudio(ctx context.Context, videoPath, audioPath, baseName string) (string, error)
}

// Bot interprets inbound chat events against per-user session state and
// drives transform jobs. Events for one user are processed in arrival
// order by a dedicated actor goroutine; different users run
// concurrently, with total job concurrency capped by a semaphore.
type Bot struct {
	cfg        *config.Config
	store      *session.Store
	engine     Transcoder
	messenger  transport.Messenger
	downloader transport.Downloader

	jobSlots chan struct{}

	mu     sync.Mutex
	actors map[int64]chan transport.Event
	wg     sync.WaitGroup
}

// New creates a Bot wired to its collaborators.
func New(cfg *config.Config, store *session.Store, eng Transcoder, messenger transport.Messenger, downloader transport.Downloader) *Bot {
	return &Bot{
		cfg:        cfg,
		store:      store,
		engine:     eng,
		messenger:  messenger,
		downloader: downloader,
		jobSlots:   make(chan struct{}, cfg.MaxActiveJobs),
		actors:     make(map[int64]chan transport.Event),
	}
}

// Run consumes events until ctx is canceled or the channel closes, then
// waits for all per-user actors to drain.
func (b *Bot) Run(ctx context.Context, events <-chan transport.Event) {
	for {
		select {
		case <-ctx.Done():
			b.shutdown()
			return
		case ev, ok := <-events:
			if !ok {
				b.shutdown()
				return
			}
			b.dispatch(ctx, ev)
		}
	}
}

// dispatch routes an event to its user's actor, creating the actor on
// first contact. A full queue drops the event instead of blocking the
// dispatch loop.
func (b *Bot) dispatch(ctx context.Context, ev transport.Event) {
	b.mu.Lock()
	ch, ok := b.actors[ev.UserID]
	if !ok {
		ch = make(chan transport.Event, actorQueueSize)
		b.actors[ev.UserID] = ch
		b.wg.Add(1)
		go b.actor(ctx, ch)
	}
	b.mu.Unlock()

	select {
	case ch <- ev:
	default:
		// The user still deserves a reply for the swallowed message.
		logging.Warn("Dropping event for user %d: actor queue full", ev.UserID)
		go func() {
			if err := b.messenger.SendText(ctx, ev.ChatID, msgBusy); err != nil {
				logging.Debug("Busy reply failed for chat %d: %v", ev.ChatID, err)
			}
		}()
	}
}

func (b *Bot) actor(ctx context.Context, events <-chan transport.Event) {
	defer b.wg.Done()
	for ev := range events {
		b.handleEvent(ctx, ev)
	}
}

func (b *Bot) shutdown() {
	b.mu.Lock()
	for _, ch := range b.actors {
		close(ch)
	}
	b.actors = make(map[int64]chan transport.Event)
	b.mu.Unlock()
	b.wg.Wait()
}

// handleEvent runs one event through the state machine and converts any
// error into a single user-visible reply.
func (b *Bot) handleEvent(ctx context.Context, ev transport.Event) {
	metrics.EventsTotal.WithLabelValues(ev.Kind.String()).Inc()
	logging.Debug("Event from user %d: kind=%s command=%q payload=%q", ev.UserID, ev.Kind, ev.Command, ev.Payload)

	var err error
	switch ev.Kind {
	case transport.EventCommand:
		err = b.handleCommand(ctx, ev)
	case transport.EventText:
		err = b.handleText(ctx, ev)
	case transport.EventMedia:
		err = b.handleMedia(ctx, ev)
	case transport.EventButton:
		err = b.handleButton(ctx, ev)
	default:
		logging.Warn("Unhandled event kind %s from user %d", ev.Kind, ev.UserID)
		return
	}
	if err == nil {
		return
	}

	// Bad state and bad input are routine user traffic, not failures.
	var serr *StateError
	var verr *ValidationError
	if errors.As(err, &serr) || errors.As(err, &verr) {
		metrics.StateRejectionsTotal.Inc()
		logging.Info("Rejected event for user %d: %v", ev.UserID, err)
	} else {
		logging.Error("Flow failed for user %d: %v", ev.UserID, err)
	}

	if sendErr := b.messenger.SendText(ctx, ev.ChatID, userMessage(err)); sendErr != nil {
		logging.Error("Failed to send error reply to chat %d: %v", ev.ChatID, sendErr)
	}
}

// runJob executes one transform job: acquire a slot, run produce under
// the job deadline, deliver the output. Every owned file is released on
// every exit path, including delivery failure.
func (b *Bot) runJob(ctx context.Context, chatID int64, j *job.Job, caption string, produce func(context.Context) (string, error)) error {
	defer j.Cleanup()

	select {
	case b.jobSlots <- struct{}{}:
	case <-ctx.Done():
		j.Status = job.Failed
		metrics.JobsTotal.WithLabelValues(j.Kind.String(), j.Status.String()).Inc()
		return ctx.Err()
	}
	defer func() { <-b.jobSlots }()

	// Once dispatched a job runs to completion or its deadline; shutdown
	// stops event intake but never kills a transcode mid-flight.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.JobTimeout)
	defer cancel()

	j.Status = job.Running
	metrics.JobsInProgress.Inc()
	logging.Info("Job %s (%s) started for user %d", j.ID, j.Kind, j.UserID)
	start := time.Now()

	out, err := produce(ctx)

	metrics.JobsInProgress.Dec()
	metrics.JobDuration.WithLabelValues(j.Kind.String()).Observe(time.Since(start).Seconds())

	if err != nil {
		j.Status = job.Failed
		metrics.JobsTotal.WithLabelValues(j.Kind.String(), j.Status.String()).Inc()
		logging.Error("Job %s (%s) failed: %v", j.ID, j.Kind, err)
		return err
	}

	j.Status = job.Succeeded
	j.OutputPath = out
	if dir := filepath.Dir(out); dir != filepath.Clean(b.cfg.WorkDir) {
		j.OutputDir = dir
	}
	metrics.JobsTotal.WithLabelValues(j.Kind.String(), j.Status.String()).Inc()
	logging.Info("Job %s (%s) finished in %s", j.ID, j.Kind, time.Since(start).Round(time.Millisecond))

	return b.deliver(ctx, chatID, out, caption)
}

// download materializes an uploaded file under the work dir, surfacing
// throttled progress edits while the transfer runs.
func (b *Bot) download(ctx context.Context, chatID int64, ref *transport.MediaRef) (*asset.MediaAsset, error) {
	progressCh, wait := b.startReporter(ctx, chatID, "Downloading")

	path, err := b.downloader.Download(ctx, ref, b.cfg.WorkDir, progressCh)
	wait()
	if err != nil {
		return nil, err
	}
	return asset.New(path, ref.FileID, ref.FileName), nil
}

// deliver uploads the finished output back to the chat.
func (b *Bot) deliver(ctx context.Context, chatID int64, path, caption string) error {
	progressCh, wait := b.startReporter(ctx, chatID, "Uploading")

	err := b.messenger.SendVideo(ctx, chatID, path, filepath.Base(path), caption, progressCh)
	wait()
	return err
}

// startReporter sends a status message and spawns a progress reporter
// editing it. Progress is best effort: if the status message cannot be
// sent the transfer simply runs without visible progress.
func (b *Bot) startReporter(ctx context.Context, chatID int64, label string) (chan transport.Progress, func()) {
	statusID, err := b.messenger.SendStatus(ctx, chatID, label+"...")
	if err != nil {
		logging.Debug("Status message failed: %v", err)
		return nil, func() {}
	}

	progressCh := make(chan transport.Progress, 16)
	reporter := progress.NewReporter(b.messenger, chatID, statusID, label, b.cfg.ProgressInterval)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reporter.Consume(ctx, progressCh)
	}()
	return progressCh, wg.Wait
}
