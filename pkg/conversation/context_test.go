package conversation

import (
	"fmt"
	"strings"
	"testing"
)

func TestRecentWindowKeepsOrder(t *testing.T) {
	c := New()
	for i := 0; i < 7; i++ {
		c.AppendUser(fmt.Sprintf("u%d", i))
	}
	got := c.RecentWindow(5)
	if len(got) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(got))
	}
	if got[0] != "User: u2" || got[4] != "User: u6" {
		t.Fatalf("unexpected window %v", got)
	}
	if c.Len() != 7 {
		t.Fatalf("history must not be truncated, got %d", c.Len())
	}
}

func TestRecentWindowBounds(t *testing.T) {
	c := New()
	c.AppendUser("hello")
	c.AppendAI("hi there")
	if got := c.RecentWindow(10); len(got) != 2 {
		t.Fatalf("expected all entries, got %v", got)
	}
	if got := c.RecentWindow(0); len(got) != 0 {
		t.Fatalf("expected empty window, got %v", got)
	}
}

func TestRecentWindowIsACopy(t *testing.T) {
	c := New()
	c.AppendUser("hello")
	w := c.RecentWindow(1)
	w[0] = "mutated"
	if c.Entries()[0] != "User: hello" {
		t.Fatalf("window must not alias history")
	}
}

func TestPromptFormat(t *testing.T) {
	c := New()
	c.AppendUser("hello")
	c.AppendAI("hi there")
	c.AppendUser("how are you")
	got := c.Prompt("SYS", DefaultWindow)
	want := "SYS\n\nUser: hello\nAI: hi there\nUser: how are you"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestPromptUsesLastFive(t *testing.T) {
	c := New()
	for i := 0; i < 6; i++ {
		c.AppendAI(fmt.Sprintf("r%d", i))
	}
	got := c.Prompt(DefaultSystemInstruction, DefaultWindow)
	if strings.Contains(got, "AI: r0") || !strings.Contains(got, "AI: r5") {
		t.Fatalf("unexpected prompt %q", got)
	}
	if !strings.HasPrefix(got, DefaultSystemInstruction+"\n\n") {
		t.Fatalf("expected system instruction prefix")
	}
}
