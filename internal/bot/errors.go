package bot

import (
	"context"
	"errors"

	"clipbot/internal/engine"
	"clipbot/internal/probe"
	"clipbot/internal/transport"
)

// ValidationError reports a malformed or missing user-supplied
// parameter. It is always raised before any download or tool run.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// StateError reports an event that does not match the session's current
// state. The session state is left unchanged.
type StateError struct {
	Message string
}

func (e *StateError) Error() string { return e.Message }

// userMessage maps any flow error onto the single message the user
// sees. Error classification happens only here, at the flow boundary;
// handlers and collaborators just return their typed errors.
func userMessage(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	var serr *StateError
	if errors.As(err, &serr) {
		return serr.Message
	}
	var perr *probe.Error
	if errors.As(err, &perr) {
		return "I couldn't read that file's video stream. Please try a different file."
	}
	var tcerr *engine.TranscodeError
	if errors.As(err, &tcerr) {
		return "Processing failed, sorry. Please try again with a different file."
	}
	var xerr *transport.TransferError
	if errors.As(err, &xerr) {
		if xerr.Direction == "upload" {
			return "I couldn't send the result back. Please try again."
		}
		return "The file transfer failed. Please try again."
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "That took too long and was aborted. Please try a shorter video."
	}
	return "Something went wrong. Please try again."
}
