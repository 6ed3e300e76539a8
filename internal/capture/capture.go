// Package capture redirects the process-wide standard output.
//
// While started, everything written to stdout (including by code that holds
// os.Stdout directly) is spooled to a temporary file. Whenever the target
// changes the spool is flushed to the previous target first, so output is
// never attributed to the wrong destination.
package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

var ErrNotStarted = errors.New("capture: stdout is not redirected")

// Stdout owns the stdout redirection of a grading run.
type Stdout struct {
	mu     sync.Mutex
	active bool
	spool  *os.File
	offset int64
	orig   *os.File
	target io.Writer
	stack  []io.Writer
}

func New() *Stdout { return &Stdout{} }

// Start redirects stdout. Until Redirect or Mute is called output still
// reaches the real stdout.
func (c *Stdout) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return errors.New("capture: already started")
	}
	f, err := os.CreateTemp("", "stdout-*.spool")
	if err != nil {
		return fmt.Errorf("could not create spool file: %w", err)
	}
	orig, err := swapStdout(f)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	c.spool, c.orig, c.target = f, orig, orig
	c.offset = 0
	c.stack = nil
	c.active = true
	return nil
}

func (c *Stdout) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Redirect sends subsequent stdout output to w.
func (c *Stdout) Redirect(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return ErrNotStarted
	}
	if err := c.flushLocked(); err != nil {
		return err
	}
	c.target = w
	return nil
}

// Mute discards output until the matching Unmute.
func (c *Stdout) Mute() error { return c.Divert(io.Discard) }

// Divert temporarily sends output to w until the matching Unmute.
func (c *Stdout) Divert(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return ErrNotStarted
	}
	if err := c.flushLocked(); err != nil {
		return err
	}
	c.stack = append(c.stack, c.target)
	c.target = w
	return nil
}

func (c *Stdout) Unmute() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return ErrNotStarted
	}
	if err := c.flushLocked(); err != nil {
		return err
	}
	if n := len(c.stack); n > 0 {
		c.target = c.stack[n-1]
		c.stack = c.stack[:n-1]
	}
	return nil
}

// Flush forwards everything written so far to the current target.
func (c *Stdout) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return nil
	}
	return c.flushLocked()
}

// Restore flushes pending output and puts the real stdout back. It is safe to
// call more than once.
func (c *Stdout) Restore() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return nil
	}
	flushErr := c.flushLocked()
	restoreErr := restoreStdout(c.orig)
	c.spool.Close()
	os.Remove(c.spool.Name())
	c.active = false
	c.spool, c.orig, c.target, c.stack = nil, nil, nil, nil
	if restoreErr != nil {
		return restoreErr
	}
	return flushErr
}

func (c *Stdout) flushLocked() error {
	fi, err := c.spool.Stat()
	if err != nil {
		return err
	}
	end := fi.Size()
	if end <= c.offset {
		return nil
	}
	_, err = io.Copy(c.target, io.NewSectionReader(c.spool, c.offset, end-c.offset))
	c.offset = end
	return err
}
