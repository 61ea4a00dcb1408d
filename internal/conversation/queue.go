package conversation

import "context"

// Queue abstracts the message queue carrying conversation jobs, so the
// dispatcher can run against an in-memory channel in development and SQS in
// production.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type QueueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type jobType string

const jobTypeMessage jobType = "message"

type queuePayload struct {
	ID      string         `json:"id"`
	Kind    jobType        `json:"kind"`
	Message MessageRequest `json:"message"`
}
