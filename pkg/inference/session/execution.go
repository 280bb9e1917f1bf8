package session

import (
	"context"
	"errors"
	"sync"
)

var ErrExecutionHandleNil = errors.New("execution handle is nil")

// ExecutionHandle represents a single streamed answer.
//
// It is cancelable and waitable. The stream is always stopped through
// context cancellation.
type ExecutionHandle struct {
	ConversationID string
	InferenceID    string

	done chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	status Status
	err    error
}

func newExecutionHandle(conversationID, inferenceID string, cancel context.CancelFunc) *ExecutionHandle {
	return &ExecutionHandle{
		ConversationID: conversationID,
		InferenceID:    inferenceID,
		done:           make(chan struct{}),
		cancel:         cancel,
		status:         StatusInProgress,
	}
}

func (h *ExecutionHandle) setResult(status Status, err error) {
	h.mu.Lock()
	cancel := h.cancel
	h.status = status
	h.err = err
	h.cancel = nil
	close(h.done)
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Cancel stops the stream. It is safe to call multiple times.
func (h *ExecutionHandle) Cancel() {
	if h == nil {
		return
	}
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the stream has ended and its last state was pushed to
// the store. It returns the terminal status and, for StatusErrored, the error.
func (h *ExecutionHandle) Wait() (Status, error) {
	if h == nil {
		return StatusIdle, ErrExecutionHandleNil
	}
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status, h.err
}

// Done is closed once the stream has ended.
func (h *ExecutionHandle) Done() <-chan struct{} {
	return h.done
}

func (h *ExecutionHandle) Status() Status {
	if h == nil {
		return StatusIdle
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// IsRunning reports whether the stream appears to still be running.
func (h *ExecutionHandle) IsRunning() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}
