package cli

import (
	"context"
	"errors"

	"github.com/tbckr/posture/internal/apperr"
	"github.com/tbckr/posture/internal/config"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitInterrupted = 130
)

// ExitCode maps an error returned by the command tree to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, apperr.ErrInvalidInput), errors.Is(err, config.ErrUnknownKey):
		return ExitUsage
	default:
		return ExitFailure
	}
}
