// SPDX-License-Identifier: MPL-2.0

package persist

import (
	"context"

	"ledserver/internal/protocol"
	"ledserver/pkg/types"

	"github.com/charmbracelet/log"
)

type (
	// Starter restarts an animation from its snapshot.
	Starter interface {
		Start(ctx context.Context, params protocol.AnimationToRunParams) (protocol.RunningAnimationParams, error)
	}

	// ReplayResult summarizes a Replay.
	ReplayResult struct {
		Started []types.AnimationID
		Failed  map[types.AnimationID]error
		Skipped int
	}
)

// Replay starts every snapshot in s. Nothing here is fatal: failures are
// logged and collected in the result so the server can carry on.
func Replay(ctx context.Context, s *Store, starter Starter, logger *log.Logger) ReplayResult {
	res := ReplayResult{Failed: make(map[types.AnimationID]error)}

	snapshots, errs := s.Load()
	res.Skipped = len(errs)

	for _, params := range snapshots {
		if ctx.Err() != nil {
			break
		}
		running, err := starter.Start(ctx, params)
		if err != nil {
			logger.Warn("could not resume animation", "id", params.ID, "animation", params.Animation, "err", err)
			res.Failed[params.ID] = err
			continue
		}
		logger.Info("resumed animation", "id", running.ID, "animation", running.Animation)
		res.Started = append(res.Started, running.ID)
	}
	return res
}
