package capture

import (
	"bytes"
	"fmt"
	"os"
	"testing"
)

func TestRedirectMuteRestore(t *testing.T) {
	c := New()
	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Restore()

	var buf bytes.Buffer
	if err := c.Redirect(&buf); err != nil {
		t.Fatal(err)
	}
	fmt.Fprint(os.Stdout, "kept ")
	if err := c.Mute(); err != nil {
		t.Fatal(err)
	}
	fmt.Fprint(os.Stdout, "dropped ")

	var side bytes.Buffer
	if err := c.Divert(&side); err != nil {
		t.Fatal(err)
	}
	fmt.Fprint(os.Stdout, "aside")
	c.Unmute()
	c.Unmute()
	fmt.Fprint(os.Stdout, "again")

	if err := c.Restore(); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if got := buf.String(); got != "kept again" {
		t.Errorf("captured %q, want %q", got, "kept again")
	}
	if got := side.String(); got != "aside" {
		t.Errorf("diverted %q, want %q", got, "aside")
	}
	if c.Active() {
		t.Error("still active after Restore()")
	}
	if err := c.Restore(); err != nil {
		t.Errorf("second Restore() error = %v", err)
	}
}

func TestNotStarted(t *testing.T) {
	c := New()
	if err := c.Mute(); err != ErrNotStarted {
		t.Errorf("Mute() error = %v, want ErrNotStarted", err)
	}
}

func TestDoubleStart(t *testing.T) {
	c := New()
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	defer c.Restore()
	if err := c.Start(); err == nil {
		t.Error("second Start() succeeded")
	}
}
