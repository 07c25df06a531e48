package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/logger"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/retry"
	"go.uber.org/zap"
)

// AbortReporter notifies operators of tasks that exhausted their tries
type AbortReporter interface {
	ReportAborted(ctx context.Context, task *domain.Task) error
}

// JSONProducer publishes JSON messages; implemented by *kafka.Producer
type JSONProducer interface {
	ProduceJSON(ctx context.Context, topic, key string, value interface{}, headers map[string]string) error
}

// AbortedTaskMessage is the payload published for an aborted task
type AbortedTaskMessage struct {
	TaskID           string                       `json:"task_id"`
	Name             domain.TaskName              `json:"name"`
	NumberOfTried    int                          `json:"number_of_tried"`
	LastTriedAt      *time.Time                   `json:"last_tried_at,omitempty"`
	LastError        string                       `json:"last_error,omitempty"`
	ExecutionResults []domain.TaskExecutionResult `json:"execution_results"`
	AbortedAt        time.Time                    `json:"aborted_at"`
}

// KafkaAbortReporter publishes aborted tasks to a topic with retries
type KafkaAbortReporter struct {
	producer    JSONProducer
	topic       string
	serviceName string
	retrier     *retry.Retrier
}

// KafkaAbortReporterConfig contains configuration for the Kafka abort reporter
type KafkaAbortReporterConfig struct {
	Topic       string
	ServiceName string
	Retry       *retry.Config
}

// NewKafkaAbortReporter creates a new Kafka abort reporter
func NewKafkaAbortReporter(producer JSONProducer, cfg *KafkaAbortReporterConfig) *KafkaAbortReporter {
	topic := "task.aborted"
	serviceName := "reservation-task-worker"
	var retryCfg *retry.Config
	if cfg != nil {
		if cfg.Topic != "" {
			topic = cfg.Topic
		}
		if cfg.ServiceName != "" {
			serviceName = cfg.ServiceName
		}
		retryCfg = cfg.Retry
	}
	return &KafkaAbortReporter{
		producer:    producer,
		topic:       topic,
		serviceName: serviceName,
		retrier:     retry.New(retryCfg),
	}
}

// ReportAborted publishes the task keyed by its id
func (r *KafkaAbortReporter) ReportAborted(ctx context.Context, task *domain.Task) error {
	msg := newAbortedTaskMessage(task)
	headers := map[string]string{
		"event_type":   "task.aborted",
		"task_name":    task.Name.String(),
		"source":       r.serviceName,
		"content_type": "application/json",
	}

	result := r.retrier.DoWithCallback(ctx, func(ctx context.Context) error {
		return r.producer.ProduceJSON(ctx, r.topic, task.ID, msg, headers)
	}, func(attempt int, err error, next time.Duration) {
		logger.Get().Warn(fmt.Sprintf("Retrying aborted task report (attempt %d, next in %s)", attempt, next),
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
	})
	if result.Err != nil {
		return fmt.Errorf("failed to publish aborted task %s after %d attempts: %w: %v",
			task.ID, result.Attempts, result.Err, result.LastError)
	}
	return nil
}

// LogAbortReporter reports aborted tasks to the log only
type LogAbortReporter struct{}

// NewLogAbortReporter creates a new log abort reporter
func NewLogAbortReporter() *LogAbortReporter {
	return &LogAbortReporter{}
}

// ReportAborted logs the task at error level
func (r *LogAbortReporter) ReportAborted(ctx context.Context, task *domain.Task) error {
	msg := newAbortedTaskMessage(task)
	logger.Get().ErrorContext(ctx, "task aborted",
		zap.String("task_id", msg.TaskID),
		zap.String("task_name", msg.Name.String()),
		zap.Int("number_of_tried", msg.NumberOfTried),
		zap.String("last_error", msg.LastError),
	)
	return nil
}

func newAbortedTaskMessage(task *domain.Task) *AbortedTaskMessage {
	msg := &AbortedTaskMessage{
		TaskID:           task.ID,
		Name:             task.Name,
		NumberOfTried:    task.NumberOfTried,
		LastTriedAt:      task.LastTriedAt,
		ExecutionResults: task.ExecutionResults,
		AbortedAt:        time.Now(),
	}
	if n := len(task.ExecutionResults); n > 0 {
		msg.LastError = task.ExecutionResults[n-1].Error
	}
	return msg
}
