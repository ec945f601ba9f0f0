package service

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyRunning = errors.New("server already running")
	ErrNotRunning     = errors.New("server not running")
	ErrEmptyCommand   = errors.New("command is empty")
)

type LaunchReason int

const (
	LaunchOther LaunchReason = iota
	LaunchArtifactNotFound
)

// LaunchError reports why the child could not be spawned.
type LaunchError struct {
	Reason LaunchReason
	Path   string
	Err    error
}

func (e *LaunchError) Error() string {
	if e.Reason == LaunchArtifactNotFound {
		return fmt.Sprintf("artifact %s not found", e.Path)
	}
	return fmt.Sprintf("launching server: %v", e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// WriteError wraps a failed write to the child's stdin.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return fmt.Sprintf("writing to server stdin: %v", e.Err) }

func (e *WriteError) Unwrap() error { return e.Err }
