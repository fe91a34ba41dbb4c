// Package orchestrator owns the capture task state machine: it drives the
// login, enumeration, and fetch pipeline phases of each started task and
// keeps the durable record and the task registry current while doing so.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kingotools/capture/internal/capture"
	"github.com/kingotools/capture/internal/kingo"
	"github.com/kingotools/capture/internal/metrics"
	"github.com/kingotools/capture/internal/pipeline"
	"github.com/kingotools/capture/internal/registry"
	"github.com/kingotools/capture/internal/transport"
)

// Task stage report strings persisted into the durable record.
const (
	reportCreated     = "task_created"
	reportInitialing  = "task_initialing"
	reportLogin       = "login_to_kingo"
	reportDownloading = "downloading"
	reportStopped     = "stopped"
	reportHasStopped  = "task_has_been_stopped"
	reportResumed     = "task_resumed"
)

// Authenticator yields a session-bearing client for a credential bundle.
type Authenticator interface {
	Login(ctx context.Context, settings capture.Settings, profile transport.Profile) (*transport.Client, error)
}

// Enumerator produces the work item list for a term.
type Enumerator interface {
	WorkItems(ctx context.Context, client *transport.Client, termCode string) ([]capture.WorkItem, error)
}

// ProfileFunc builds the per-job transport profile from operator settings.
type ProfileFunc func(settings capture.Settings) transport.Profile

// CourseParser converts one course query result page into a Course record.
type CourseParser func(text string) (*capture.Course, error)

// Config bundles the collaborators of a Service.
type Config struct {
	Store       capture.TaskStore
	Artifacts   capture.ArtifactStore
	Registry    capture.Registry
	Counters    *registry.Counters
	Terms       capture.TermSource
	Auth        Authenticator
	Enumerator  Enumerator
	Site        kingo.Site
	Profile     ProfileFunc
	ParseCourse CourseParser
	Publisher   capture.Publisher
	Topic       string
	Clock       capture.Clock
	IDs         capture.IDGenerator
	BaseContext context.Context
	Logger      *zap.Logger
}

// Service is the capture orchestrator.
type Service struct {
	cfg    Config
	logger *zap.Logger
}

// New constructs a Service.
func New(cfg Config) *Service {
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:    cfg,
		logger: logger,
	}
}

// Create allocates a new task for a term in stage NONE. The term code must
// resolve against the term reference map.
func (s *Service) Create(ctx context.Context, termCode string) (capture.Task, error) {
	terms, err := s.cfg.Terms.Terms(ctx)
	if err != nil {
		return capture.Task{}, fmt.Errorf("resolve term list: %w", err)
	}
	termName, ok := terms[termCode]
	if !ok {
		return capture.Task{}, capture.ErrTermNotFound
	}

	id, err := s.cfg.IDs.NewID()
	if err != nil {
		return capture.Task{}, fmt.Errorf("generate task id: %w", err)
	}
	task := capture.Task{
		ID:          id,
		TermCode:    termCode,
		TermName:    termName,
		Stage:       capture.StageNone,
		StageReport: reportCreated,
		CreatedAt:   s.cfg.Clock.Now(),
	}
	if err := s.cfg.Store.Save(ctx, task); err != nil {
		return capture.Task{}, fmt.Errorf("save task: %w", err)
	}
	return task, nil
}

// Start launches a task's capture execution asynchronously and returns
// immediately. A task with a registered runtime cannot be started again.
func (s *Service) Start(ctx context.Context, taskID string, settings capture.Settings) (capture.TaskDetails, error) {
	task, err := s.cfg.Store.FindByID(ctx, taskID)
	if err != nil {
		return capture.TaskDetails{}, err
	}
	if _, exists := s.cfg.Registry.Lookup(taskID); exists {
		return capture.TaskDetails{}, capture.ErrTaskRuntimeExists
	}

	s.changeStatus(ctx, &task, capture.StageInitialize, reportInitialing)
	s.cfg.Counters.IncCapturing()

	go s.runCapture(task, settings)

	return s.details(task), nil
}

// runCapture is the single asynchronous execution unit for one started task.
// The capturing counter is decremented on every exit path, and unexpected
// faults are caught here rather than crashing the process. Item errors arrive
// from concurrent pool workers, so every mutation of the shared record is
// funneled through setStatus under one mutex.
func (s *Service) runCapture(task capture.Task, settings capture.Settings) {
	ctx := s.cfg.BaseContext

	var mu sync.Mutex
	setStatus := func(stage capture.Stage, report string) {
		mu.Lock()
		defer mu.Unlock()
		s.changeStatus(ctx, &task, stage, report)
	}
	fail := func(err error) {
		setStatus("", "failed:"+err.Error())
		metrics.ObserveTask("failed")
		s.logger.Warn("capture task failed",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
	}

	defer s.cfg.Counters.DecCapturing()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("capture task panicked",
				zap.String("task_id", task.ID),
				zap.Any("panic", r),
			)
			fail(fmt.Errorf("%v", r))
		}
	}()

	setStatus("", reportLogin)

	client, err := s.cfg.Auth.Login(ctx, settings, s.cfg.Profile(settings))
	if err != nil {
		fail(err)
		return
	}

	artifacts, err := s.cfg.Artifacts.ContextOf(task.ID)
	if err != nil {
		fail(err)
		return
	}
	if !artifacts.Exists() {
		if err := artifacts.MkdirAll(); err != nil {
			s.logger.Error("artifact directory creation failed",
				zap.String("task_id", task.ID),
				zap.Error(err),
			)
			fail(capture.ErrDirectoryCreation)
			return
		}
	}

	items, err := s.cfg.Enumerator.WorkItems(ctx, client, task.TermCode)
	if err != nil {
		fail(err)
		return
	}

	requests := s.buildRequests(task.TermCode, items)
	pool := pipeline.New(pipeline.Config{
		TaskID:      task.ID,
		Threads:     settings.Threads,
		BaseContext: ctx,
		OnComplete: func() {
			s.finish(ctx, &task, setStatus)
		},
		OnItemError: func(_ capture.WorkItem, err error) {
			setStatus("", "failed:"+err.Error())
		},
	}, client, requests, s.persistHandler(&task, artifacts), s.logger)

	if err := s.cfg.Registry.Register(task.ID, pool); err != nil {
		fail(err)
		return
	}

	setStatus(capture.StageCapture, reportDownloading)
	pool.Run(ctx)
}

// Stop cooperatively stops a task's runtime: queued items are abandoned,
// in-flight fetches run to completion.
func (s *Service) Stop(ctx context.Context, taskID string) (capture.TaskDetails, error) {
	task, err := s.cfg.Store.FindByID(ctx, taskID)
	if err != nil {
		return capture.TaskDetails{}, err
	}
	rt, ok := s.cfg.Registry.Lookup(taskID)
	if !ok {
		return capture.TaskDetails{}, capture.ErrTaskNotInitialized
	}
	rt.Stop()

	s.changeStatus(ctx, &task, "", reportHasStopped)
	return s.details(task), nil
}

// Resume restarts a stopped runtime over its remaining queue. Enumeration is
// not re-run; the existing worker pool is reused.
func (s *Service) Resume(ctx context.Context, taskID string) (capture.TaskDetails, error) {
	task, err := s.cfg.Store.FindByID(ctx, taskID)
	if err != nil {
		return capture.TaskDetails{}, err
	}
	rt, ok := s.cfg.Registry.Lookup(taskID)
	if !ok {
		return capture.TaskDetails{}, capture.ErrTaskNotInitialized
	}
	if rt.State() == capture.RuntimeRunning {
		return capture.TaskDetails{}, capture.ErrRuntimeRunning
	}
	if err := rt.Start(); err != nil {
		return capture.TaskDetails{}, err
	}

	s.changeStatus(ctx, &task, "", reportResumed)
	return s.details(task), nil
}

// Delete removes a task and its registry entry. A task whose runtime is
// still Running cannot be deleted.
func (s *Service) Delete(ctx context.Context, taskID string) error {
	if rt, ok := s.cfg.Registry.Lookup(taskID); ok {
		if rt.State() == capture.RuntimeRunning {
			return capture.ErrRuntimeRunning
		}
		s.cfg.Registry.Remove(taskID)
	}
	return s.cfg.Store.DeleteByID(ctx, taskID)
}

// Query composes the durable record with the registry lookup.
func (s *Service) Query(ctx context.Context, taskID string) (capture.TaskDetails, error) {
	task, err := s.cfg.Store.FindByID(ctx, taskID)
	if err != nil {
		return capture.TaskDetails{}, err
	}
	return s.details(task), nil
}

// List returns one page of task details.
func (s *Service) List(ctx context.Context, page capture.PageRequest) (capture.TaskPage, error) {
	tasks, total, err := s.cfg.Store.FindAll(ctx, page)
	if err != nil {
		return capture.TaskPage{}, err
	}
	items := make([]capture.TaskDetails, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, s.details(t))
	}
	return capture.TaskPage{
		Items: items,
		Total: total,
		Page:  page.Page,
		Size:  page.Size,
	}, nil
}

// ValidateSettings performs a dry-run login to verify a credential bundle.
func (s *Service) ValidateSettings(ctx context.Context, settings capture.Settings) error {
	_, err := s.cfg.Auth.Login(ctx, settings, s.cfg.Profile(settings))
	return err
}

// Terms returns the cached term reference map.
func (s *Service) Terms(ctx context.Context) (map[string]string, error) {
	return s.cfg.Terms.Terms(ctx)
}

// ReloadTerms bypasses the cache and refetches the term reference map.
func (s *Service) ReloadTerms(ctx context.Context) (map[string]string, error) {
	return s.cfg.Terms.Reload(ctx)
}

// Counts reports the monitor counters for status endpoints.
func (s *Service) Counts() (capturing, importing int64) {
	return s.cfg.Counters.Capturing(), s.cfg.Counters.Importing()
}

// changeStatus updates only the fields given (empty = leave unchanged) and
// persists the record. Every transition goes through here so durable state
// stays current during async execution.
func (s *Service) changeStatus(ctx context.Context, task *capture.Task, stage capture.Stage, report string) {
	if stage != "" {
		task.Stage = stage
	}
	if report != "" {
		task.StageReport = report
	}
	if err := s.cfg.Store.Save(ctx, *task); err != nil {
		s.logger.Error("persist task status failed",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
	}
}

// finish marks a task terminal after its queue fully drained and publishes
// the completion event. Mutations go through the caller's serialized setter.
func (s *Service) finish(ctx context.Context, task *capture.Task, set func(capture.Stage, string)) {
	set(capture.StageStopped, reportStopped)
	metrics.ObserveTask("succeeded")
	s.logger.Info("capture task finished", zap.String("task_id", task.ID))

	if s.cfg.Publisher == nil || s.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"task_id":   task.ID,
		"term_code": task.TermCode,
		"stage":     capture.StageStopped,
		"timestamp": s.cfg.Clock.Now().UTC(),
	}
	if _, err := s.cfg.Publisher.Publish(ctx, s.cfg.Topic, payload); err != nil {
		s.logger.Warn("publish completion event failed",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
	}
}

func (s *Service) buildRequests(termCode string, items []capture.WorkItem) []pipeline.Request {
	requests := make([]pipeline.Request, 0, len(items))
	for _, item := range items {
		requests = append(requests, pipeline.Request{
			Item: item,
			URL:  s.cfg.Site.CourseQueryPage(),
			Form: kingo.CourseQueryForm(termCode, item.Code),
			Headers: map[string]string{
				"Referer": s.cfg.Site.ClassQueryPage(),
			},
		})
	}
	return requests
}

// persistHandler parses each fetched course page and writes one JSON
// artifact per course code into the task's artifact context.
func (s *Service) persistHandler(task *capture.Task, artifacts capture.ArtifactContext) pipeline.Handler {
	return func(ctx context.Context, item capture.WorkItem, resp *transport.Response) error {
		course, err := s.cfg.ParseCourse(resp.Text)
		if err != nil {
			return fmt.Errorf("parse course %s: %w", item.Code, err)
		}
		course.Term = task.TermCode
		data, err := json.Marshal(course)
		if err != nil {
			return fmt.Errorf("marshal course %s: %w", item.Code, err)
		}
		if err := artifacts.Put(ctx, course.Code, data); err != nil {
			return fmt.Errorf("persist course %s: %w", item.Code, err)
		}
		return nil
	}
}

func (s *Service) details(task capture.Task) capture.TaskDetails {
	details := capture.TaskDetails{Task: task}
	if rt, ok := s.cfg.Registry.Lookup(task.ID); ok {
		details.Runtime = rt
	}
	return details
}
