// SPDX-License-Identifier: MPL-2.0

package server

import (
	"context"
	"errors"

	"ledserver/internal/animation"
	"ledserver/internal/connection"
	"ledserver/internal/protocol"
)

// HandleMessage implements connection.Handler. Failures are reported back to
// the sending client as a Message and never end the session.
func (s *Server) HandleMessage(ctx context.Context, c *connection.Connection, d protocol.SendableData) {
	switch v := d.(type) {
	case protocol.AnimationToRunParams:
		if _, err := s.manager.Start(ctx, v); err != nil {
			s.logger.Warn("start rejected", "port", c.Port(), "animation", v.Animation, "id", v.ID, "err", err)
			c.Reply(protocol.Errorf("could not start %s: %v", v.Animation, err))
		}

	case protocol.EndAnimation:
		if _, err := s.manager.End(v.ID); err != nil {
			if errors.Is(err, animation.ErrNotRunning) {
				s.logger.Info("end ignored", "port", c.Port(), "id", v.ID, "err", err)
			}
			c.Reply(protocol.Errorf("%v", err))
		}

	case protocol.Section:
		created, err := s.engine.CreateSection(v)
		if err != nil {
			c.Reply(protocol.Errorf("could not create section %s: %v", v.Name, err))
			return
		}
		s.registry.Broadcast(created)

	case protocol.StripInfo:
		c.Reply(s.engine.StripInfo())

	case protocol.Command:
		s.runCommand(c, v.Command)

	case protocol.Message:
		s.logger.Info("client message", "port", c.Port(), "message", v.Message)

	default:
		s.logger.Warn("ignoring message the server does not accept", "port", c.Port(), "kind", d.Kind())
	}
}
