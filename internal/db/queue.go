package db

import (
	"database/sql"
	"errors"
	"time"
)

// Task is a unit of work executed on the queue worker.
type Task func(*sql.DB) (interface{}, error)

type taskRequest struct {
	exec Task
	resp chan taskResult
}

type taskResult struct {
	data interface{}
	err  error
}

// DBQueue serializes all database access through a single worker so that
// sqlite never sees concurrent writers. Failed tasks are retried with a
// linear backoff; sql.ErrNoRows is returned immediately.
type DBQueue struct {
	tasks      chan taskRequest
	db         *sql.DB
	maxRetry   int
	retryDelay time.Duration
	backoff    bool
}

type QueueOption func(*DBQueue)

func WithRetry(attempts int, delay time.Duration) QueueOption {
	return func(q *DBQueue) {
		if attempts > 0 {
			q.maxRetry = attempts
		}
		q.retryDelay = delay
	}
}

func NewDBQueue(db *sql.DB, opts ...QueueOption) *DBQueue {
	q := &DBQueue{
		tasks:      make(chan taskRequest, 100),
		db:         db,
		maxRetry:   3,
		retryDelay: 100 * time.Millisecond,
		backoff:    true,
	}
	for _, opt := range opts {
		opt(q)
	}
	go q.worker()
	return q
}

// NewDBQueueForTest uses a fixed minimal retry delay.
func NewDBQueueForTest(db *sql.DB) *DBQueue {
	q := NewDBQueue(db, WithRetry(3, time.Millisecond))
	q.backoff = false
	return q
}

func (q *DBQueue) Execute(task Task) (interface{}, error) {
	resp := make(chan taskResult, 1)
	q.tasks <- taskRequest{exec: task, resp: resp}
	result := <-resp
	return result.data, result.err
}

func (q *DBQueue) worker() {
	for task := range q.tasks {
		task.resp <- q.executeWithRetry(task.exec)
	}
}

func (q *DBQueue) executeWithRetry(task Task) taskResult {
	var lastErr error
	for attempt := 0; attempt < q.maxRetry; attempt++ {
		data, err := task(q.db)
		if err == nil {
			return taskResult{data: data}
		}
		if errors.Is(err, sql.ErrNoRows) {
			return taskResult{err: err}
		}
		lastErr = err
		if attempt < q.maxRetry-1 {
			delay := q.retryDelay
			if q.backoff {
				delay *= time.Duration(attempt + 1)
			}
			time.Sleep(delay)
		}
	}
	return taskResult{err: lastErr}
}

// Ping checks the connection through the queue, used by the readiness check.
func (q *DBQueue) Ping() error {
	_, err := q.Execute(func(db *sql.DB) (interface{}, error) {
		return nil, db.Ping()
	})
	return err
}

func (q *DBQueue) Close() {
	close(q.tasks)
}

func (q *DBQueue) DB() *sql.DB {
	return q.db
}
