package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/drewmudry/remixengine-api/internal/blob"
	"github.com/drewmudry/remixengine-api/internal/events"
	"github.com/drewmudry/remixengine-api/models"
	"github.com/drewmudry/remixengine-api/processing"
	"github.com/drewmudry/remixengine-api/progress"
	"github.com/drewmudry/remixengine-api/queue"
	"github.com/drewmudry/remixengine-api/scraper"
	"github.com/drewmudry/remixengine-api/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/drewmudry/remixengine-api/worker")

// errJobCancelled aborts a handler whose job was cancelled while it ran.
var errJobCancelled = errors.New("job cancelled")

// Generator is the set of remix adapters the processor dispatches to.
type Generator interface {
	GenerateTitles(ctx context.Context, params processing.TitleParams) ([]processing.TitleVariation, error)
	GenerateThumbnail(ctx context.Context, params processing.ThumbnailParams, onStatus func(string)) (*processing.GeneratedThumbnail, error)
	GenerateScript(ctx context.Context, params processing.ScriptParams) (*processing.RemixedScript, error)
}

// Deps wires a Processor. Events, Progress and the scrape collaborators are optional.
type Deps struct {
	Store       *store.Store
	Generator   Generator
	Blobs       blob.Store
	Progress    *progress.Hub
	Events      events.Publisher
	Supervisor  *Supervisor
	Logger      *zap.Logger
	HTTP        *http.Client
	StorageRoot string

	Metadata         scraper.MetadataFetcher
	Subtitles        scraper.SubtitleExtractor
	MaxVideoDuration time.Duration
	DownloadTimeout  time.Duration
}

// Processor executes queued jobs: it runs the matching adapter, persists
// the result and keeps the job row and the video's stage status current.
type Processor struct {
	store     *store.Store
	generator Generator
	blobs     blob.Store
	hub       *progress.Hub
	events    events.Publisher
	sup       *Supervisor
	logger    *zap.Logger
	http      *http.Client
	root      string

	metadata        scraper.MetadataFetcher
	subtitles       scraper.SubtitleExtractor
	maxDuration     time.Duration
	downloadTimeout time.Duration
}

func NewProcessor(d Deps) *Processor {
	p := &Processor{
		store:           d.Store,
		generator:       d.Generator,
		blobs:           d.Blobs,
		hub:             d.Progress,
		events:          d.Events,
		sup:             d.Supervisor,
		logger:          d.Logger,
		http:            d.HTTP,
		root:            d.StorageRoot,
		metadata:        d.Metadata,
		subtitles:       d.Subtitles,
		maxDuration:     d.MaxVideoDuration,
		downloadTimeout: d.DownloadTimeout,
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.events == nil {
		p.events = events.Noop{}
	}
	if p.sup == nil {
		p.sup = NewSupervisor(16, 10*time.Second, p.logger)
	}
	if p.http == nil {
		p.http = &http.Client{}
	}
	if p.root == "" {
		p.root = "remix-engine"
	}
	if p.maxDuration <= 0 {
		p.maxDuration = 20 * time.Minute
	}
	if p.downloadTimeout <= 0 {
		p.downloadTimeout = time.Minute
	}
	return p
}

// Wait blocks until all pending bookkeeping writes have finished.
func (p *Processor) Wait() {
	p.sup.Wait()
}

// run describes one job execution as seen by the bookkeeping helpers.
type run struct {
	task      *queue.Task
	jobID     string
	videoID   string
	projectID string
	jobType   models.JobType
	stage     models.Stage
	tracked   bool
	log       *zap.Logger
}

func jobKey(id string) string   { return "job:" + id }
func videoKey(id string) string { return "video:" + id }

// begin reports whether the job should run. Jobs that were deleted, cancelled
// or already finished are acknowledged without doing anything.
func (p *Processor) begin(ctx context.Context, r *run) (bool, error) {
	job, err := p.store.GetJob(ctx, r.jobID)
	if store.IsNotFound(err) {
		r.log.Warn("job row missing, dropping task")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load job: %w", err)
	}
	if job.Status.Terminal() {
		r.log.Info("job already finished, skipping", zap.String("status", string(job.Status)))
		return false, nil
	}

	p.sup.Go(jobKey(r.jobID), "mark_job_processing", func(ctx context.Context) error {
		if err := p.store.MarkJobProcessing(ctx, r.jobID, r.task.Attempt); err != nil {
			return err
		}
		return p.publish(ctx, r.jobID)
	})
	if r.tracked {
		p.sup.Go(videoKey(r.videoID), "stage_processing", func(ctx context.Context) error {
			return p.store.SetStageStatus(ctx, r.videoID, r.stage, models.StageProcessing, "")
		})
	}
	p.progress(r, 10)
	return true, nil
}

// progress records a checkpoint and pushes it to subscribers.
func (p *Processor) progress(r *run, pct int) {
	p.sup.Go(jobKey(r.jobID), "job_progress", func(ctx context.Context) error {
		if err := p.store.UpdateJobProgress(ctx, r.jobID, pct); err != nil {
			return err
		}
		return p.publish(ctx, r.jobID)
	})
}

func (p *Processor) publish(ctx context.Context, jobID string) error {
	if p.hub == nil {
		return nil
	}
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	return p.hub.Publish(ctx, job)
}

// ensureActive is checked before every persistence write.
func (p *Processor) ensureActive(ctx context.Context, r *run) error {
	cancelled, err := p.store.IsJobCancelled(ctx, r.jobID)
	if err != nil {
		return fmt.Errorf("check cancellation: %w", err)
	}
	if cancelled {
		return errJobCancelled
	}
	if _, err := p.store.GetVideo(ctx, r.videoID); err != nil {
		if store.IsNotFound(err) {
			return queue.Permanent(fmt.Errorf("video %s was deleted", r.videoID))
		}
		return fmt.Errorf("load video: %w", err)
	}
	return nil
}

// finish writes the terminal bookkeeping for one attempt and returns the
// error the queue should see.
func (p *Processor) finish(ctx context.Context, r *run, result map[string]any, cause error) error {
	for _, key := range []string{jobKey(r.jobID), videoKey(r.videoID)} {
		if err := p.sup.Flush(ctx, key); err != nil {
			r.log.Warn("bookkeeping flush interrupted", zap.Error(err))
		}
	}

	if errors.Is(cause, errJobCancelled) {
		r.log.Info("job cancelled, results discarded")
		return nil
	}

	if cause == nil {
		err := p.ensureActive(ctx, r)
		if errors.Is(err, errJobCancelled) {
			r.log.Info("job cancelled, results discarded")
			return nil
		}
		if err != nil {
			// Video gone or unreadable: record it like any other failure.
			return p.fail(ctx, r, err)
		}
		if err := p.store.CompleteJob(ctx, r.jobID, result); err != nil {
			return fmt.Errorf("complete job: %w", err)
		}
		if r.tracked {
			if err := p.store.SetStageStatus(ctx, r.videoID, r.stage, models.StageComplete, ""); err != nil {
				r.log.Warn("stage complete write failed", zap.Error(err))
			}
		}
		r.log.Info("job complete")
		p.terminal(r, models.JobComplete, "")
		return nil
	}
	return p.fail(ctx, r, cause)
}

// fail records a failed attempt on the job row and the tracked stage.
func (p *Processor) fail(ctx context.Context, r *run, cause error) error {
	if processing.IsContractViolation(cause) {
		cause = queue.Permanent(cause)
	}
	var scrapeErr *scraper.ScrapeError
	if errors.As(cause, &scrapeErr) && !scrapeErr.Code.Retryable() {
		cause = queue.Permanent(cause)
	}

	final := r.task.Final(cause)
	msg := failureMessage(cause)

	cancelled, err := p.store.IsJobCancelled(ctx, r.jobID)
	if err != nil {
		r.log.Warn("cancellation check failed", zap.Error(err))
	}
	if cancelled {
		r.log.Info("job cancelled, failure not recorded", zap.Error(cause))
		return nil
	}

	if err := p.store.FailJob(ctx, r.jobID, msg, !final); err != nil {
		r.log.Error("recording job failure failed", zap.Error(err), zap.NamedError("cause", cause))
	}
	if r.tracked {
		if err := p.store.SetStageStatus(ctx, r.videoID, r.stage, models.StageError, msg); err != nil {
			r.log.Warn("stage error write failed", zap.Error(err))
		}
	}

	r.log.Warn("job failed", zap.Error(cause), zap.Bool("final", final))
	if final {
		p.terminal(r, models.JobError, msg)
	} else if err := p.publish(ctx, r.jobID); err != nil {
		r.log.Warn("publish progress failed", zap.Error(err))
	}
	return cause
}

// terminal publishes the final row and emits the lifecycle event.
func (p *Processor) terminal(r *run, status models.JobStatus, msg string) {
	p.sup.Go(jobKey(r.jobID), "publish_terminal", func(ctx context.Context) error {
		return p.publish(ctx, r.jobID)
	})

	event := events.JobEvent{
		JobID:        r.jobID,
		Type:         string(r.jobType),
		Status:       string(status),
		VideoID:      r.videoID,
		ProjectID:    r.projectID,
		ErrorMessage: msg,
		OccurredAt:   time.Now().UTC(),
	}
	p.sup.Go("events", "publish_job_event", func(ctx context.Context) error {
		return p.events.PublishJobEvent(ctx, event)
	})
}

// failureMessage is what the job row and the video show to the user.
func failureMessage(err error) string {
	var scrapeErr *scraper.ScrapeError
	if errors.As(err, &scrapeErr) {
		return scrapeErr.Code.UserMessage()
	}
	return err.Error()
}

func startSpan(ctx context.Context, name string, task *queue.Task) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("task.type", task.Type),
		attribute.Int("task.attempt", task.Attempt),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
