package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// ExtractDocumentTask is scheduled each time a document is uploaded.
	ExtractDocumentTask = "document:extract"
)

// ExtractPayload is serialized into the task payload so the worker knows which
// object to read and how to interpret it.
type ExtractPayload struct {
	DocumentID string `json:"document_id"`
	ObjectKey  string `json:"object_key"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
}

// NewExtractTask builds the asynq task for payload.
func NewExtractTask(payload ExtractPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ExtractDocumentTask, data, asynq.MaxRetry(5)), nil
}

// DecodeExtract reads the payload back out of a task.
func DecodeExtract(task *asynq.Task) (ExtractPayload, error) {
	var payload ExtractPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}

// Client enqueues extraction jobs on Redis.
type Client struct {
	client *asynq.Client
}

// NewClient wraps an asynq client.
func NewClient(client *asynq.Client) *Client {
	return &Client{client: client}
}

// Enqueue schedules text extraction for one document.
func (c *Client) Enqueue(ctx context.Context, payload ExtractPayload) error {
	task, err := NewExtractTask(payload)
	if err != nil {
		return err
	}
	if _, err := c.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue extract task: %w", err)
	}
	return nil
}
