// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"strings"
	"testing"
)

func TestValues_OrderedAndComplete(t *testing.T) {
	t.Parallel()

	values := Values()
	if len(values) != len(issues) {
		t.Fatalf("len(Values()) = %d, want %d", len(values), len(issues))
	}
	for i, v := range values {
		if v.Id() != Id(i+1) {
			t.Errorf("Values()[%d].Id() = %d, want %d", i, v.Id(), i+1)
		}
		if strings.TrimSpace(string(v.MarkdownMsg())) == "" {
			t.Errorf("issue %d has an empty message", v.Id())
		}
	}
}

func TestGet(t *testing.T) {
	t.Parallel()

	if Get(PortUnavailableId) == nil {
		t.Fatal("Get(PortUnavailableId) returned nil")
	}
	if Get(Id(999)) != nil {
		t.Error("Get(999) should return nil")
	}
}

func TestIssue_ExtLinksIsCopy(t *testing.T) {
	t.Parallel()

	links := Get(ConfigLoadFailedId).ExtLinks()
	if len(links) == 0 {
		t.Fatal("expected at least one link")
	}
	links[0] = "changed"
	if Get(ConfigLoadFailedId).ExtLinks()[0] == "changed" {
		t.Error("ExtLinks() exposed internal slice")
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	out, err := Render(AllPortsFailedId, "notty")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(out, "No port could be opened") {
		t.Errorf("Render() output missing heading:\n%s", out)
	}

	if _, err := Render(Id(999), "notty"); !errors.Is(err, ErrUnknownIssue) {
		t.Errorf("Render(999) error = %v, want ErrUnknownIssue", err)
	}
}
