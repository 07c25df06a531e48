package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/prohmpiriya/booking-rush-reservation/internal/metrics"
	"github.com/prohmpiriya/booking-rush-reservation/internal/repository"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/logger"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// TaskFunc executes the payload of one task
type TaskFunc func(ctx context.Context, data json.RawMessage) error

// TaskFunctions maps every task name to its handler
type TaskFunctions map[domain.TaskName]TaskFunc

// NewTaskFunctions builds the handler registry over the reservation side effects
func NewTaskFunctions(reserveService ReserveService) TaskFunctions {
	return TaskFunctions{
		domain.TaskNameConfirmReservation: func(ctx context.Context, data json.RawMessage) error {
			var payload domain.ConfirmReservationTaskData
			if err := json.Unmarshal(data, &payload); err != nil {
				return fmt.Errorf("failed to decode task data: %w", err)
			}
			return reserveService.ConfirmReservation(ctx, payload.ActionAttributes)
		},
		domain.TaskNameCancelPendingReservation: func(ctx context.Context, data json.RawMessage) error {
			var payload domain.CancelReservationTaskData
			if err := json.Unmarshal(data, &payload); err != nil {
				return fmt.Errorf("failed to decode task data: %w", err)
			}
			return reserveService.CancelPendingReservation(ctx, payload.ActionAttributes)
		},
		domain.TaskNameCancelReservation: func(ctx context.Context, data json.RawMessage) error {
			var payload domain.CancelReservationTaskData
			if err := json.Unmarshal(data, &payload); err != nil {
				return fmt.Errorf("failed to decode task data: %w", err)
			}
			return reserveService.CancelReservation(ctx, payload.ActionAttributes)
		},
	}
}

// TaskService runs tasks from the queue
type TaskService interface {
	// ExecuteByName claims one due task of the given name and executes it; nil when none is due
	ExecuteByName(ctx context.Context, name domain.TaskName) (*domain.Task, error)

	// Execute runs a claimed task and records the outcome. Handler errors are recorded, not returned.
	Execute(ctx context.Context, task *domain.Task) error

	// Retry returns tasks running longer than interval with tries left to Ready
	Retry(ctx context.Context, interval time.Duration) (int64, error)

	// Abort aborts one task running longer than interval with no tries left; nil when none
	Abort(ctx context.Context, interval time.Duration) (*domain.Task, error)
}

type taskService struct {
	taskRepo  repository.TaskRepository
	functions TaskFunctions
	reporter  AbortReporter
	now       func() time.Time
}

// NewTaskService creates a task service; every task name must have a handler
func NewTaskService(taskRepo repository.TaskRepository, functions TaskFunctions, reporter AbortReporter) (TaskService, error) {
	for _, name := range domain.TaskNames() {
		if functions[name] == nil {
			return nil, fmt.Errorf("no task function registered for %s", name)
		}
	}
	if reporter == nil {
		reporter = NewLogAbortReporter()
	}
	return &taskService{
		taskRepo:  taskRepo,
		functions: functions,
		reporter:  reporter,
		now:       time.Now,
	}, nil
}

// ExecuteByName rejects unknown names before touching the queue
func (s *taskService) ExecuteByName(ctx context.Context, name domain.TaskName) (task *domain.Task, err error) {
	if s.functions[name] == nil {
		return nil, domain.NewNotImplementedError(fmt.Sprintf("task %s not implemented", name))
	}

	task, err = s.taskRepo.Claim(ctx, name, s.now())
	if err != nil || task == nil {
		return nil, err
	}

	if err := s.Execute(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Execute dispatches through the registry. A failed task stays Running until the retry or abort sweep.
func (s *taskService) Execute(ctx context.Context, task *domain.Task) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.task.execute")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(
		attribute.String("task_id", task.ID),
		attribute.String("task_name", task.Name.String()),
		attribute.Int("remaining_number_of_tries", task.RemainingNumberOfTries),
	)

	start := s.now()
	var handlerErr error
	if fn := s.functions[task.Name]; fn != nil {
		handlerErr = fn(ctx, task.Data)
	} else {
		handlerErr = domain.NewNotImplementedError(fmt.Sprintf("task %s not implemented", task.Name))
	}

	result := domain.TaskExecutionResult{ExecutedAt: s.now()}
	if handlerErr != nil {
		result.Error = handlerErr.Error()
		span.SetAttributes(attribute.String("task_error", result.Error))
		logger.Get().WarnContext(ctx, "task execution failed",
			zap.String("task_id", task.ID),
			zap.String("task_name", task.Name.String()),
			zap.Int("remaining_number_of_tries", task.RemainingNumberOfTries),
			zap.Error(handlerErr),
		)
	}

	metrics.RecordTaskExecution(ctx, task.Name.String(), result.ExecutedAt.Sub(start).Seconds(), handlerErr != nil)

	executed := handlerErr == nil
	if err := s.taskRepo.PushExecutionResult(ctx, task.ID, result, executed); err != nil {
		return err
	}

	task.ExecutionResults = append(task.ExecutionResults, result)
	if executed {
		task.Status = domain.TaskStatusExecuted
	}
	return nil
}

// Retry requeues stale running tasks
func (s *taskService) Retry(ctx context.Context, interval time.Duration) (n int64, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.task.retry")
	defer func() { telemetry.EndSpan(span, err) }()

	n, err = s.taskRepo.Retry(ctx, s.now().Add(-interval))
	if err != nil {
		return 0, err
	}

	metrics.RecordTasksRetried(ctx, n)
	return n, nil
}

// Abort aborts one exhausted task and reports it; a failed report does not undo the abort
func (s *taskService) Abort(ctx context.Context, interval time.Duration) (task *domain.Task, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.task.abort")
	defer func() { telemetry.EndSpan(span, err) }()

	task, err = s.taskRepo.AbortOne(ctx, s.now().Add(-interval))
	if err != nil || task == nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("task_id", task.ID))
	metrics.RecordTaskAborted(ctx, task.Name.String())

	if err := s.reporter.ReportAborted(ctx, task); err != nil {
		logger.Get().ErrorContext(ctx, "failed to report aborted task",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
	}
	return task, nil
}
