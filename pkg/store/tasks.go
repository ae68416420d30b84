package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/flagkit/flagkit/pkg/queue"
)

// Queue collections owned by the pipeline.
const (
	DefaultTasksCollection    = "queuetasks"
	DefaultTasksDLQCollection = "queuetasksdlq"
)

// TaskStore is the MongoDB task repository. One instance satisfies the
// enqueuer, worker and scheduler repository interfaces of the queue package
// with the same claim ordering and dedup semantics as the in-memory storage.
type TaskStore struct {
	tasks *mongo.Collection
	dlq   *mongo.Collection
}

// NewTaskStore creates a task store over the default queue collections.
func NewTaskStore(db *mongo.Database) *TaskStore {
	return &TaskStore{
		tasks: db.Collection(DefaultTasksCollection),
		dlq:   db.Collection(DefaultTasksDLQCollection),
	}
}

// taskDocument is the stored form of queue.Task. UUIDs are kept as strings
// so documents stay readable in shell sessions and logs.
type taskDocument struct {
	ID            string           `bson:"_id"`
	Queue         string           `bson:"queue"`
	TaskType      queue.TaskType   `bson:"taskType"`
	TaskName      string           `bson:"taskName"`
	DedupKey      string           `bson:"dedupKey,omitempty"`
	Payload       []byte           `bson:"payload,omitempty"`
	Status        queue.TaskStatus `bson:"status"`
	Priority      int              `bson:"priority"`
	RetryCount    int              `bson:"retryCount"`
	MaxRetries    int              `bson:"maxRetries"`
	RetrySchedule []int64          `bson:"retrySchedule,omitempty"`
	ScheduledAt   time.Time        `bson:"scheduledAt"`
	LockedUntil   *time.Time       `bson:"lockedUntil,omitempty"`
	LockedBy      string           `bson:"lockedBy,omitempty"`
	ProcessedAt   *time.Time       `bson:"processedAt,omitempty"`
	Error         string           `bson:"error,omitempty"`
	CreatedAt     time.Time        `bson:"createdAt"`
}

type dlqDocument struct {
	ID         string         `bson:"_id"`
	TaskID     string         `bson:"taskId"`
	Queue      string         `bson:"queue"`
	TaskType   queue.TaskType `bson:"taskType"`
	TaskName   string         `bson:"taskName"`
	Payload    []byte         `bson:"payload,omitempty"`
	Priority   int            `bson:"priority"`
	Error      string         `bson:"error,omitempty"`
	RetryCount int            `bson:"retryCount"`
	FailedAt   time.Time      `bson:"failedAt"`
	CreatedAt  time.Time      `bson:"createdAt"`
}

func docFromTask(task *queue.Task) taskDocument {
	doc := taskDocument{
		ID:          task.ID.String(),
		Queue:       task.Queue,
		TaskType:    task.TaskType,
		TaskName:    task.TaskName,
		DedupKey:    task.DedupKey,
		Payload:     task.Payload,
		Status:      task.Status,
		Priority:    int(task.Priority),
		RetryCount:  int(task.RetryCount),
		MaxRetries:  int(task.MaxRetries),
		ScheduledAt: task.ScheduledAt,
		LockedUntil: task.LockedUntil,
		ProcessedAt: task.ProcessedAt,
		CreatedAt:   task.CreatedAt,
	}
	for _, d := range task.RetrySchedule {
		doc.RetrySchedule = append(doc.RetrySchedule, int64(d))
	}
	if task.LockedBy != nil {
		doc.LockedBy = task.LockedBy.String()
	}
	if task.Error != nil {
		doc.Error = *task.Error
	}
	return doc
}

func taskFromDoc(doc taskDocument) (*queue.Task, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("parse task id %q: %w", doc.ID, err)
	}
	task := &queue.Task{
		ID:          id,
		Queue:       doc.Queue,
		TaskType:    doc.TaskType,
		TaskName:    doc.TaskName,
		DedupKey:    doc.DedupKey,
		Payload:     doc.Payload,
		Status:      doc.Status,
		Priority:    queue.Priority(doc.Priority),
		RetryCount:  int8(doc.RetryCount),
		MaxRetries:  int8(doc.MaxRetries),
		ScheduledAt: doc.ScheduledAt,
		LockedUntil: doc.LockedUntil,
		ProcessedAt: doc.ProcessedAt,
		CreatedAt:   doc.CreatedAt,
	}
	for _, d := range doc.RetrySchedule {
		task.RetrySchedule = append(task.RetrySchedule, time.Duration(d))
	}
	if doc.LockedBy != "" {
		workerID, err := uuid.Parse(doc.LockedBy)
		if err != nil {
			return nil, fmt.Errorf("parse worker id %q: %w", doc.LockedBy, err)
		}
		task.LockedBy = &workerID
	}
	if doc.Error != "" {
		errMsg := doc.Error
		task.Error = &errMsg
	}
	return task, nil
}

// EnsureIndexes creates the indexes the store relies on. The partial unique
// index on (queue, dedupKey) enforces at most one live task per dedup key
// even under concurrent enqueues.
func (s *TaskStore) EnsureIndexes(ctx context.Context) error {
	liveStatuses := bson.A{queue.TaskStatusPending, queue.TaskStatusProcessing}
	_, err := s.tasks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "queue", Value: 1},
				{Key: "dedupKey", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"dedupKey": bson.M{"$exists": true},
					"status":   bson.M{"$in": liveStatuses},
				}),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "queue", Value: 1},
				{Key: "priority", Value: -1},
				{Key: "scheduledAt", Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: "taskName", Value: 1},
				{Key: "status", Value: 1},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create task indexes: %w", err)
	}
	return nil
}

// CreateTask inserts a task. A live task with the same dedup key in the same
// queue yields queue.ErrDuplicateTask.
func (s *TaskStore) CreateTask(ctx context.Context, task *queue.Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	if task.DedupKey != "" {
		filter := bson.M{
			"queue":    task.Queue,
			"dedupKey": task.DedupKey,
			"status":   bson.M{"$in": bson.A{queue.TaskStatusPending, queue.TaskStatusProcessing}},
		}
		err := s.tasks.FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
		if err == nil {
			return fmt.Errorf("%w: %s", queue.ErrDuplicateTask, task.DedupKey)
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("check dedup key: %w", err)
		}
	}

	if _, err := s.tasks.InsertOne(ctx, docFromTask(task)); err != nil {
		// The partial unique index catches races the pre-check missed.
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", queue.ErrDuplicateTask, task.DedupKey)
		}
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// ClaimTask atomically claims the next due pending task, preferring higher
// priority and earlier scheduled time.
func (s *TaskStore) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*queue.Task, error) {
	now := time.Now()
	lockUntil := now.Add(lockDuration)

	filter := bson.M{
		"status":      queue.TaskStatusPending,
		"queue":       bson.M{"$in": queues},
		"scheduledAt": bson.M{"$lte": now},
	}
	update := bson.M{"$set": bson.M{
		"status":      queue.TaskStatusProcessing,
		"lockedUntil": lockUntil,
		"lockedBy":    workerID.String(),
	}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{
			{Key: "priority", Value: -1},
			{Key: "scheduledAt", Value: 1},
		}).
		SetReturnDocument(options.After)

	var doc taskDocument
	err := s.tasks.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, queue.ErrNoTaskToClaim
		}
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return taskFromDoc(doc)
}

// CompleteTask marks a processing task completed and releases its lock.
func (s *TaskStore) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	now := time.Now()
	res, err := s.tasks.UpdateOne(ctx,
		bson.M{"_id": taskID.String(), "status": queue.TaskStatusProcessing},
		bson.M{
			"$set":   bson.M{"status": queue.TaskStatusCompleted, "processedAt": now},
			"$unset": bson.M{"lockedUntil": "", "lockedBy": ""},
		})
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("task %s is not in processing state", taskID)
	}
	return nil
}

// FailTask records a failed attempt. The task is rescheduled per its retry
// schedule until retries are exhausted, then marked failed.
func (s *TaskStore) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	var doc taskDocument
	err := s.tasks.FindOne(ctx, bson.M{"_id": taskID.String(), "status": queue.TaskStatusProcessing}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("task %s is not in processing state", taskID)
		}
		return fmt.Errorf("load task: %w", err)
	}
	task, err := taskFromDoc(doc)
	if err != nil {
		return err
	}

	task.RetryCount++
	set := bson.M{
		"retryCount": int(task.RetryCount),
		"error":      errorMsg,
	}
	if task.RetryCount >= task.MaxRetries {
		set["status"] = queue.TaskStatusFailed
	} else {
		set["status"] = queue.TaskStatusPending
		set["scheduledAt"] = time.Now().Add(task.RetryDelay(task.RetryCount))
	}

	res, err := s.tasks.UpdateOne(ctx,
		bson.M{"_id": taskID.String(), "status": queue.TaskStatusProcessing},
		bson.M{"$set": set, "$unset": bson.M{"lockedUntil": "", "lockedBy": ""}})
	if err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("task %s is not in processing state", taskID)
	}
	return nil
}

// MoveToDLQ copies a task into the dead letter collection and removes it
// from the queue.
func (s *TaskStore) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	var doc taskDocument
	err := s.tasks.FindOne(ctx, bson.M{"_id": taskID.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("task %s not found", taskID)
		}
		return fmt.Errorf("load task: %w", err)
	}

	now := time.Now()
	entry := dlqDocument{
		ID:         uuid.New().String(),
		TaskID:     doc.ID,
		Queue:      doc.Queue,
		TaskType:   doc.TaskType,
		TaskName:   doc.TaskName,
		Payload:    doc.Payload,
		Priority:   doc.Priority,
		Error:      doc.Error,
		RetryCount: doc.RetryCount,
		FailedAt:   now,
		CreatedAt:  now,
	}
	if _, err := s.dlq.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("insert dlq entry: %w", err)
	}
	if _, err := s.tasks.DeleteOne(ctx, bson.M{"_id": doc.ID}); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// ExtendLock pushes out the lock expiry of a processing task.
func (s *TaskStore) ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error {
	res, err := s.tasks.UpdateOne(ctx,
		bson.M{"_id": taskID.String(), "status": queue.TaskStatusProcessing},
		bson.M{"$set": bson.M{"lockedUntil": time.Now().Add(duration)}})
	if err != nil {
		return fmt.Errorf("extend lock: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("task %s is not in processing state", taskID)
	}
	return nil
}

// GetPendingTaskByName returns a pending task with the given name, or nil
// when none exists.
func (s *TaskStore) GetPendingTaskByName(ctx context.Context, taskName string) (*queue.Task, error) {
	var doc taskDocument
	err := s.tasks.FindOne(ctx, bson.M{"taskName": taskName, "status": queue.TaskStatusPending}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get pending task: %w", err)
	}
	return taskFromDoc(doc)
}

// ReleaseExpiredLocks returns tasks whose worker lock has lapsed back to
// pending so another worker can claim them. Intended to be run periodically.
func (s *TaskStore) ReleaseExpiredLocks(ctx context.Context) (int64, error) {
	res, err := s.tasks.UpdateMany(ctx,
		bson.M{
			"status":      queue.TaskStatusProcessing,
			"lockedUntil": bson.M{"$lte": time.Now()},
		},
		bson.M{
			"$set":   bson.M{"status": queue.TaskStatusPending},
			"$unset": bson.M{"lockedUntil": "", "lockedBy": ""},
		})
	if err != nil {
		return 0, fmt.Errorf("release expired locks: %w", err)
	}
	return res.ModifiedCount, nil
}
