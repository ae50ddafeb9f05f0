package channel

import (
	"errors"
	"fmt"
)

var (
	ErrQueueFull          = errors.New("queue is full")
	ErrChannelNotFound    = errors.New("channel not found")
	ErrInvalidMessage     = errors.New("invalid message")
	ErrUnknownChannelType = errors.New("unknown channel type")
	ErrDuplicateChannel   = errors.New("duplicate channel name")

	// ErrNoSession means a provider session was used after Close.
	// It is a programming error and terminates the worker.
	ErrNoSession = errors.New("delivery session is not open")

	ErrAlreadyRunning = errors.New("channel worker already running")
)

// QueueFullError carries the configured capacity.
type QueueFullError struct {
	MaxSize int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("Queue is full. Max size is %d", e.MaxSize)
}

func (e *QueueFullError) Is(target error) bool { return target == ErrQueueFull }

type ChannelNotFoundError struct {
	Name string
}

func (e *ChannelNotFoundError) Error() string {
	return fmt.Sprintf("Channel %q not found", e.Name)
}

func (e *ChannelNotFoundError) Is(target error) bool { return target == ErrChannelNotFound }

// FieldError reports an invalid inbound message field.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

func (e *FieldError) Is(target error) bool { return target == ErrInvalidMessage }
