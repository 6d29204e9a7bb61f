package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
	"git.home.luguber.info/inful/pagetree/internal/logfields"
)

// DefaultPandocCommand is looked up on PATH.
const DefaultPandocCommand = "pandoc"

// PandocRenderer invokes the pandoc binary once per page:
//
//	pandoc --output=<out> --template=<tmpl> [args...] [source]
//
// Without a source file the document is fed on stdin.
type PandocRenderer struct {
	command string
	args    []string
	timeout time.Duration
}

// NewPandoc returns a renderer running command (default "pandoc") with extra
// args. A positive timeout bounds each invocation.
func NewPandoc(command string, args []string, timeout time.Duration) *PandocRenderer {
	if command == "" {
		command = DefaultPandocCommand
	}
	return &PandocRenderer{command: command, args: args, timeout: timeout}
}

func (p *PandocRenderer) Name() string { return "pandoc" }

func (p *PandocRenderer) RequiredMarkers() []string { return []string{"$body$"} }

func (p *PandocRenderer) Escape(s string) string { return dollarEscape(s) }

// Render runs pandoc for job. A non-zero exit status is an error carrying
// pandoc's output.
func (p *PandocRenderer) Render(ctx context.Context, job Job) error {
	if err := job.validate(); err != nil {
		return perrors.ExternalTool(p.command, job.Node, err)
	}
	bin, err := exec.LookPath(p.command)
	if err != nil {
		return perrors.ExternalTool(p.command, job.Node, fmt.Errorf("%w: %w", ErrRendererNotFound, err))
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	args := make([]string, 0, len(p.args)+3)
	args = append(args, "--output="+job.Output, "--template="+job.Template)
	args = append(args, p.args...)
	if job.SourceFile != "" {
		args = append(args, job.SourceFile)
	}

	// #nosec G204 - command and args come from trusted configuration
	cmd := exec.CommandContext(ctx, bin, args...)
	if job.Input != nil {
		cmd.Stdin = job.Input
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	slog.Debug("Invoking pandoc", logfields.Node(job.Node), logfields.Output(job.Output))

	err = cmd.Run()

	outStr := strings.TrimSpace(stdout.String())
	errStr := strings.TrimSpace(stderr.String())
	if errStr != "" {
		slog.Warn("pandoc stderr", logfields.Node(job.Node), slog.String("error_output", errStr))
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", err, ctxErr)
		}
		output := errStr
		if output == "" {
			output = outStr
		}
		if output != "" {
			err = fmt.Errorf("%w: %w: %s", ErrRenderFailed, err, output)
		} else {
			err = fmt.Errorf("%w: %w", ErrRenderFailed, err)
		}
		return perrors.ExternalTool(p.command, job.Node, err)
	}
	return nil
}
