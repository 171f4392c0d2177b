package dispatch

import (
	"context"

	"github.com/cuemby/streamsched/pkg/types"
)

// ProgramDispatcher launches a program run and returns without awaiting
// its completion; execution outcome is owned by the dispatcher, not the
// caller (spec §4.3, §6). A failure wraps types.ErrDispatch, or
// types.ErrDispatchRefire when the failure asks the Task to retry the
// dispatch immediately without advancing its watermark.
type ProgramDispatcher interface {
	Run(ctx context.Context, program types.ProgramRef, args types.DispatchArgs) error
}
