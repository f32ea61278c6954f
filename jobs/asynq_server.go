package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    *slog.Logger
	Handlers  []TaskHandler
	Cron      []CronRegistration
}

// NewMux registers the handlers that carry a type and a function.
func NewMux(handlers []TaskHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for _, h := range handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}
	return mux
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 2,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: NewMux(cfg.Handlers), scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// Enqueue submits an on-demand run of a consistency scan.
func (c *Client) Enqueue(ctx context.Context, taskType string, repair bool) (*asynq.TaskInfo, error) {
	var (
		task *asynq.Task
		err  error
	)
	switch taskType {
	case TaskInventoryReconcile:
		task, err = NewInventoryReconcileTask(time.Now().UTC(), repair)
	case TaskLedgerIntegrity:
		task, err = NewLedgerIntegrityTask(time.Now().UTC())
	default:
		return nil, shared.Validation("unknown task %q", taskType)
	}
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

type enqueuer interface {
	Enqueue(ctx context.Context, taskType string, repair bool) (*asynq.TaskInfo, error)
}

type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector queueInspector
	client    enqueuer
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints. Either dependency
// may be nil when Redis is not configured.
func NewHandler(inspector *asynq.Inspector, client *Client, logger *slog.Logger) *Handler {
	h := &Handler{logger: logger}
	if inspector != nil {
		h.inspector = inspector
	}
	if client != nil {
		h.client = client
	}
	return h
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Post("/{task}", h.enqueue)
}

type queueResponse struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, queueResponse{Queue: QueueDefault})
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable), "")
		return
	}
	resp := queueResponse{Queue: QueueDefault}
	if info != nil {
		resp.Queue = info.Queue
		resp.Pending = info.Pending
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type enqueueResponse struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Queue string `json:"queue"`
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request) {
	if h.client == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable), "job queue not configured")
		return
	}
	taskType := chi.URLParam(r, "task")
	info, err := h.client.Enqueue(r.Context(), taskType, r.URL.Query().Get("repair") == "1")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("job enqueued", slog.String("type", info.Type), slog.String("id", info.ID))
	httpx.JSON(w, http.StatusAccepted, enqueueResponse{ID: info.ID, Type: info.Type, Queue: info.Queue})
}
