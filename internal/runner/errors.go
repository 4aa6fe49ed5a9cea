package runner

import "errors"

var (
	// ErrEmptyCommand is returned when Run is given a blank command line.
	ErrEmptyCommand = errors.New("empty command")
	// ErrInvalidWorkingDirectory is returned when the requested working
	// directory does not exist or is not a directory. No process is spawned.
	ErrInvalidWorkingDirectory = errors.New("invalid working directory")
	// ErrSpawnFailed is returned when the child process could not be started.
	ErrSpawnFailed = errors.New("spawn failed")
	// ErrWaitInterrupted is returned when a synchronous wait is abandoned
	// because its context was cancelled.
	ErrWaitInterrupted = errors.New("wait interrupted")
	// ErrStreamReadFailed marks a drainer that stopped before end-of-stream.
	ErrStreamReadFailed = errors.New("stream read failed")
	// ErrNotFinished is returned by exit code accessors while the child is running.
	ErrNotFinished = errors.New("process has not finished")
	// ErrNoProcess is returned by accessors when no command has been started.
	ErrNoProcess = errors.New("no process")
)
