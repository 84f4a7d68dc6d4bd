// Package custom runs a user supplied command each time an ALARM is seen.
//
// The command gets the encoded ALARM message on stdin, for example
//
//	ALARM 2020-01-01T00:00:00.599Z
//
// Failures are logged and do not stop the pipeline.
package custom

import (
	"bytes"
	"context"
	"log"
	"os"
	"os/exec"
	"time"

	"github.com/GeoNet/rsudp/internal/codec"
	"github.com/GeoNet/rsudp/internal/pipeline"
	"github.com/pkg/errors"
)

// Timeout bounds each run of the command.
const Timeout = 5 * time.Second

type Config struct {
	Codefile string
	// WinOverride is accepted for settings compatibility and ignored.
	WinOverride bool
}

// Custom is a pipeline.Handler.
type Custom struct {
	path    string
	timeout time.Duration
	runs    int
}

// New checks the command exists and is executable.
func New(cfg Config) (*Custom, error) {
	if cfg.Codefile == "" {
		return nil, errors.New("custom: empty codefile")
	}

	fi, err := os.Stat(cfg.Codefile)
	if err != nil {
		return nil, errors.Wrap(err, "custom")
	}
	if fi.IsDir() || fi.Mode().Perm()&0111 == 0 {
		return nil, errors.Errorf("custom: %s is not executable", cfg.Codefile)
	}

	log.Printf("custom: running %s on alarm", cfg.Codefile)

	return &Custom{path: cfg.Codefile, timeout: Timeout}, nil
}

func (c *Custom) Handle(m codec.Message, _ *pipeline.Flags) error {
	if _, ok := m.(codec.Alarm); !ok {
		return nil
	}

	c.runs++

	if err := c.run(codec.Encode(m)); err != nil {
		log.Printf("custom: %s", err)
	}

	return nil
}

// Runs returns the number of times the command has been started.
func (c *Custom) Runs() int {
	return c.runs
}

func (c *Custom) run(in []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var out bytes.Buffer

	cmd := exec.CommandContext(ctx, c.path)
	cmd.Stdin = bytes.NewReader(append(in, '\n'))
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()

	if out.Len() > 0 {
		log.Printf("custom: %s output: %s", c.path, bytes.TrimSpace(out.Bytes()))
	}

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		return errors.Errorf("%s timed out after %s", c.path, c.timeout)
	case err != nil:
		return errors.Wrap(err, c.path)
	}

	return nil
}
