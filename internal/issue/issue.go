// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"maps"
	"slices"

	"github.com/charmbracelet/glamour"
)

type (
	// Id identifies a catalogued issue.
	Id int

	// MarkdownMsg is the body rendered to the terminal.
	MarkdownMsg string

	// HttpLink is an external reference shown under "See also".
	HttpLink string

	// Issue is a longer explanation of a failure the operator can act on.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		extLinks []HttpLink
	}
)

const (
	ConfigLoadFailedId Id = iota + 1
	InvalidConfigId
	PortUnavailableId
	AllPortsFailedId
	PermissionDeniedId
	SnapshotUnreadableId
)

// ErrUnknownIssue is returned by Render for an Id missing from the catalog.
var ErrUnknownIssue = errors.New("unknown issue")

// Id returns the issue's identifier.
func (i *Issue) Id() Id { return i.id }

// MarkdownMsg returns the raw Markdown body.
func (i *Issue) MarkdownMsg() MarkdownMsg { return i.mdMsg }

// ExtLinks returns a copy of the external links.
func (i *Issue) ExtLinks() []HttpLink { return slices.Clone(i.extLinks) }

// Render renders the issue as styled terminal output. stylePath is a
// glamour style name such as "dark", "light" or "notty".
func (i *Issue) Render(stylePath string) (string, error) {
	md := string(i.mdMsg)
	if len(i.extLinks) > 0 {
		md += "\n\n## See also\n"
		for _, link := range i.extLinks {
			md += "- <" + string(link) + ">\n"
		}
	}
	return render(md, stylePath)
}

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Configuration could not be loaded

ledserver reads ` + "`config.cue`" + ` from the config directory, then from the
working directory, unless ` + "`--config`" + ` names a file.

## Things you can try
- Print the effective configuration:
~~~
$ ledserver config show
~~~
- Write a fresh default file and edit from there:
~~~
$ ledserver config init
~~~`,
		extLinks: []HttpLink{"https://cuelang.org/docs/"},
	}

	invalidConfigIssue = &Issue{
		id: InvalidConfigId,
		mdMsg: `
# Configuration is invalid

A value from the config file or a ` + "`LEDSERVER_*`" + ` environment variable
failed validation.

## Common causes
- ` + "`server.ports`" + ` is empty or lists the same port twice
- ` + "`protocol.framing`" + ` is neither ` + "`length`" + ` nor ` + "`delimited`" + `
- A duration such as ` + "`server.poll_interval`" + ` is zero or lacks a unit (` + "`100ms`" + `)`,
	}

	portUnavailableIssue = &Issue{
		id: PortUnavailableId,
		mdMsg: `
# A port could not be opened

Another process is probably listening on it. The remaining ports keep serving.

## Things you can try
- Find the process holding the port:
~~~
$ ss -ltnp | grep <port>
~~~
- Choose another port in ` + "`server.ports`" + ` or with ` + "`--port`",
	}

	allPortsFailedIssue = &Issue{
		id: AllPortsFailedId,
		mdMsg: `
# No port could be opened

ledserver needs at least one listening port and stopped.

## Things you can try
- Check for another running ledserver instance
- Ports below 1024 need elevated privileges on most systems`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied

ledserver could not write to a directory it needs.

## Things you can try
- Check the permissions of ` + "`persistence.dir`" + `
- Run ledserver from a directory you own`,
	}

	snapshotUnreadableIssue = &Issue{
		id: SnapshotUnreadableId,
		mdMsg: `
# A saved animation could not be restored

The snapshot file is kept so it can be inspected; the remaining animations
were restored.

## Things you can try
- List snapshots and their status:
~~~
$ ledserver state list
~~~
- Delete the broken file from ` + "`persistence.dir`" + ` once inspected`,
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():   configLoadFailedIssue,
		invalidConfigIssue.Id():      invalidConfigIssue,
		portUnavailableIssue.Id():    portUnavailableIssue,
		allPortsFailedIssue.Id():     allPortsFailedIssue,
		permissionDeniedIssue.Id():   permissionDeniedIssue,
		snapshotUnreadableIssue.Id(): snapshotUnreadableIssue,
	}
)

// Values returns every catalogued issue ordered by Id.
func Values() []*Issue {
	return slices.SortedFunc(maps.Values(issues), func(a, b *Issue) int {
		return int(a.id - b.id)
	})
}

// Get returns the issue for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}

// Render renders the issue for id.
func Render(id Id, stylePath string) (string, error) {
	i := Get(id)
	if i == nil {
		return "", ErrUnknownIssue
	}
	return i.Render(stylePath)
}
