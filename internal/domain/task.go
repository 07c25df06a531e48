package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskName selects the handler that executes a task
type TaskName string

const (
	TaskNameConfirmReservation       TaskName = "confirmReservation"
	TaskNameCancelReservation        TaskName = "cancelReservation"
	TaskNameCancelPendingReservation TaskName = "cancelPendingReservation"
)

// TaskNames lists every task name a runner must handle
func TaskNames() []TaskName {
	return []TaskName{
		TaskNameConfirmReservation,
		TaskNameCancelReservation,
		TaskNameCancelPendingReservation,
	}
}

// String returns the string representation of TaskName
func (n TaskName) String() string {
	return string(n)
}

// TaskStatus represents the status of a task
type TaskStatus string

const (
	TaskStatusReady    TaskStatus = "Ready"
	TaskStatusRunning  TaskStatus = "Running"
	TaskStatusExecuted TaskStatus = "Executed"
	TaskStatusAborted  TaskStatus = "Aborted"
)

// String returns the string representation of TaskStatus
func (s TaskStatus) String() string {
	return string(s)
}

// DefaultRemainingNumberOfTries is used when a task is exported without an explicit try count
const DefaultRemainingNumberOfTries = 10

// TaskExecutionResult is one entry of a task's execution log
type TaskExecutionResult struct {
	ExecutedAt time.Time `json:"executedAt"`
	Error      string    `json:"error,omitempty"`
}

// Task is a durable, retriable unit of asynchronous work
type Task struct {
	ID                     string                `json:"id"`
	Name                   TaskName              `json:"name"`
	Status                 TaskStatus            `json:"status"`
	RunsAt                 time.Time             `json:"runsAt"`
	RemainingNumberOfTries int                   `json:"remainingNumberOfTries"`
	NumberOfTried          int                   `json:"numberOfTried"`
	LastTriedAt            *time.Time            `json:"lastTriedAt,omitempty"`
	ExecutionResults       []TaskExecutionResult `json:"executionResults"`
	Data                   json.RawMessage       `json:"data"`
}

// ConfirmReservationTaskData is the payload of a confirmReservation task
type ConfirmReservationTaskData struct {
	ActionAttributes []ReserveActionAttributes `json:"actionAttributes"`
}

// CancelReservationTaskData is the payload of cancelReservation and cancelPendingReservation tasks
type CancelReservationTaskData struct {
	ActionAttributes []CancelActionAttributes `json:"actionAttributes"`
}

// NewTask builds a Ready task with the given payload
func NewTask(id string, name TaskName, data interface{}, runsAt time.Time, remainingNumberOfTries int) (*Task, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s task data: %w", name, err)
	}
	if remainingNumberOfTries <= 0 {
		remainingNumberOfTries = DefaultRemainingNumberOfTries
	}
	return &Task{
		ID:                     id,
		Name:                   name,
		Status:                 TaskStatusReady,
		RunsAt:                 runsAt,
		RemainingNumberOfTries: remainingNumberOfTries,
		ExecutionResults:       []TaskExecutionResult{},
		Data:                   raw,
	}, nil
}
