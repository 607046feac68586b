// SPDX-License-Identifier: MPL-2.0

package server

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"ledserver/internal/connection"
	"ledserver/internal/protocol"
	"ledserver/pkg/types"
)

type command struct {
	usage string
	run   func(s *Server, c *connection.Connection, args []string)
}

// commands are typed by clients as a Command message. They also serve the
// REQUEST delivery policy: a client that does not want events pushed asks
// with "running" or "sections".
var commands = map[string]command{
	"running": {
		usage: "running",
		run: func(s *Server, c *connection.Connection, _ []string) {
			running := s.manager.Running()
			if len(running) == 0 {
				c.Reply(protocol.Message{Message: "no animations running"})
				return
			}
			for _, r := range running {
				c.Reply(r)
			}
		},
	},
	"end": {
		usage: "end <id>|all",
		run: func(s *Server, c *connection.Connection, args []string) {
			if len(args) != 1 {
				c.Reply(protocol.Message{Message: "usage: end <id>|all"})
				return
			}
			if args[0] == "all" {
				ended := s.manager.EndAll()
				c.Reply(protocol.Errorf("ended %d animations", len(ended)))
				return
			}
			if _, err := s.manager.End(types.AnimationID(args[0])); err != nil {
				c.Reply(protocol.Errorf("%v", err))
			}
		},
	},
	"clear": {
		usage: "clear",
		run: func(s *Server, c *connection.Connection, _ []string) {
			ended := s.manager.EndAll()
			s.engine.Clear()
			c.Reply(protocol.Errorf("cleared strip, ended %d animations", len(ended)))
		},
	},
	"strip": {
		usage: "strip info",
		run: func(s *Server, c *connection.Connection, args []string) {
			if len(args) != 1 || args[0] != "info" {
				c.Reply(protocol.Message{Message: "usage: strip info"})
				return
			}
			c.Reply(s.engine.StripInfo())
		},
	},
	"sections": {
		usage: "sections",
		run: func(s *Server, c *connection.Connection, _ []string) {
			for _, sec := range s.engine.Sections() {
				c.Reply(sec)
			}
		},
	},
	"animations": {
		usage: "animations",
		run: func(s *Server, c *connection.Connection, _ []string) {
			for _, info := range s.engine.SupportedAnimations() {
				c.Reply(info)
			}
		},
	},
	"color": {
		usage: "color",
		run: func(s *Server, c *connection.Connection, _ []string) {
			c.Reply(protocol.CurrentStripColor{Color: s.engine.CurrentColors()})
		},
	},
}

func (s *Server) runCommand(c *connection.Connection, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		c.Reply(protocol.Message{Message: "empty command"})
		return
	}

	name := strings.ToLower(fields[0])
	if name == "help" {
		c.Reply(protocol.Message{Message: "commands: " + strings.Join(usages(), ", ")})
		return
	}
	cmd, ok := commands[name]
	if !ok {
		c.Reply(protocol.Message{Message: fmt.Sprintf("unknown command %q (try help)", fields[0])})
		return
	}
	s.logger.Debug("command", "port", c.Port(), "line", line)
	cmd.run(s, c, fields[1:])
}

func usages() []string {
	out := make([]string, 0, len(commands))
	for _, name := range slices.Sorted(maps.Keys(commands)) {
		out = append(out, commands[name].usage)
	}
	return out
}
