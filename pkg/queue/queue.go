// Package queue provides a durable task queue and a worker consuming it.
//
// Tasks are processed roughly in submission order. A worker retries failed tasks with an exponential backoff,
// and moves to a dead letter list the tasks which keep failing.
package queue

import (
	"context"
	"time"

	"github.com/oneconcern/datapush/pkg/errors"
	"github.com/oneconcern/datapush/pkg/model"
	"github.com/segmentio/ksuid"
)

// TaskKind tells what a task is about
type TaskKind string

const (
	// TaskRebuild asks for the derived assets of a dataset to be rebuilt
	TaskRebuild TaskKind = "rebuild"
)

var (
	// ErrTaskNotFound indicates that a task is not pending
	ErrTaskNotFound = errors.New("task not found")

	// ErrClosed indicates that the queue has been closed
	ErrClosed = errors.New("queue is closed")
)

// Task is a unit of work
type Task struct {
	ID          string           `json:"id"`
	Kind        TaskKind         `json:"kind"`
	Dataset     model.DatasetRef `json:"dataset"`
	SubmittedAt time.Time        `json:"submittedAt"`
	Attempts    int              `json:"attempts"`
	LastError   string           `json:"lastError,omitempty"`
	_           struct{}
}

// NewRebuildTask builds a task to rebuild a dataset
func NewRebuildTask(ref model.DatasetRef) Task {
	return Task{Kind: TaskRebuild, Dataset: ref}
}

// Queue accepts tasks for asynchronous processing
type Queue interface {
	Submit(context.Context, Task) (Task, error)
}

// Backend persists tasks
type Backend interface {
	Queue

	// Pending lists the tasks waiting to be processed, oldest first
	Pending(context.Context) ([]Task, error)

	// Ack removes a processed task
	Ack(context.Context, string) error

	// Fail records a failed attempt. After maxAttempts, the task is moved to the dead letters.
	Fail(context.Context, Task, error, int) (bool, error)

	// DeadLetters lists the tasks which could not be processed
	DeadLetters(context.Context) ([]Task, error)

	// Notify signals newly submitted tasks
	Notify() <-chan struct{}

	Close() error
}

// Prepare assigns an ID and a submission time to a new task.
//
// KSUIDs sort by time, so IDs order tasks by submission, at a one second resolution.
func Prepare(task Task) Task {
	if task.ID == "" {
		task.ID = ksuid.New().String()
	}
	if task.SubmittedAt.IsZero() {
		task.SubmittedAt = time.Now().UTC()
	}
	return task
}

// RecordFailure updates a task after a failed attempt, and tells if it has exhausted its attempts
func RecordFailure(task Task, err error, maxAttempts int) (Task, bool) {
	task.Attempts++
	if err != nil {
		task.LastError = err.Error()
	}
	return task, maxAttempts > 0 && task.Attempts >= maxAttempts
}
