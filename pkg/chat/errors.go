package chat

import (
	"github.com/mahaj/dupahar-chat/pkg/model"
	"github.com/pkg/errors"
)

// Every error returned by Service wraps exactly one of these.
var (
	// ErrValidation is a malformed or unauthorized request. Nothing was
	// persisted or broadcast.
	ErrValidation = errors.New("invalid request")
	ErrNotFound   = errors.New("not found")
	// ErrPersistence means the store failed; the event was dropped.
	ErrPersistence = errors.New("store unavailable")
	// ErrTransport is a send to a connection that can no longer take it.
	ErrTransport = errors.New("connection unreachable")
)

const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeNotFound        = "NOT_FOUND"
	CodeUnavailable     = "UNAVAILABLE"
	CodeInternal        = "INTERNAL"
)

// Code maps err to the code reported in error frames.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, model.ErrMalformed):
		return CodeInvalidArgument
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrPersistence), errors.Is(err, ErrTransport):
		return CodeUnavailable
	}
	return CodeInternal
}

func invalid(err error) error {
	return errors.Wrap(ErrValidation, err.Error())
}

func invalidf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrValidation, format, args...)
}
