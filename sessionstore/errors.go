package sessionstore

import (
	"errors"
	"fmt"
)

// Sentinel errors for session store operations. Typed errors below match
// them with errors.Is.
var (
	ErrInvalidConfig      = errors.New("invalid session store configuration")
	ErrMissingArchive     = errors.New("local session archive not found")
	ErrTransfer           = errors.New("session archive transfer failed")
	ErrInvalidSessionID   = errors.New("invalid session id")
	ErrInvalidDestination = errors.New("invalid destination path")
)

// Configuration failure reasons, checked in this order by New.
const (
	ReasonMissingParameters = "missing parameters"
	ReasonMissingClient     = "missing backend client"
	ReasonMissingBucket     = "missing bucket name"
	ReasonInvalidBasePath   = "invalid base path format"
)

// ConfigError is returned by New when the configuration is unusable.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "sessionstore: " + e.Reason }

func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }

// MissingArchiveError is returned by Save when the staging archive for the
// session has not been written yet.
type MissingArchiveError struct {
	SessionID string
	Path      string
}

func (e *MissingArchiveError) Error() string {
	return fmt.Sprintf("sessionstore: no local archive for session %q at %s", e.SessionID, e.Path)
}

func (e *MissingArchiveError) Is(target error) bool { return target == ErrMissingArchive }

// Op names the store operation that failed.
type Op string

const (
	OpExists  Op = "exists"
	OpSave    Op = "save"
	OpExtract Op = "extract"
	OpDelete  Op = "delete"
)

// TransferError wraps a backend or local filesystem failure.
type TransferError struct {
	Op        Op
	SessionID string
	Key       string
	Err       error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("sessionstore: %s session %q (object %s): %v", e.Op, e.SessionID, e.Key, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

func (e *TransferError) Is(target error) bool { return target == ErrTransfer }
