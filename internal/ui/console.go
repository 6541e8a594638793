package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Console is a terminal Interactor. Asks read a line from the input;
// partial says overwrite the current line until the final fragment commits
// it.
type Console struct {
	in         *bufio.Reader
	out        io.Writer
	partialLen int
}

// NewConsole creates a console interactor.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

// Ask prints the question and blocks on a line of input. Approval-style
// questions accept y/yes as an accepting response; anything else is
// returned as a message response.
func (c *Console) Ask(ctx context.Context, kind, text string) (AskResponse, error) {
	if text != "" {
		fmt.Fprintf(c.out, "%s %s\n", color.YellowString("[%s]", kind), text)
	} else {
		fmt.Fprintf(c.out, "%s ", color.YellowString("[%s]", kind))
	}
	fmt.Fprint(c.out, color.CyanString("> "))

	type result struct {
		line string
		err  error
	}
	lineCh := make(chan result, 1)
	go func() {
		line, err := c.in.ReadString('\n')
		lineCh <- result{line: line, err: err}
	}()

	select {
	case r := <-lineCh:
		if r.err != nil && r.line == "" {
			return AskResponse{}, fmt.Errorf("read answer: %w", r.err)
		}
		answer := strings.TrimSpace(r.line)
		switch strings.ToLower(answer) {
		case "y", "yes", "":
			return AskResponse{Response: ResponseYes}, nil
		case "n", "no":
			return AskResponse{Response: ResponseNo}, nil
		default:
			return AskResponse{Response: ResponseMessage, Text: answer}, nil
		}
	case <-ctx.Done():
		return AskResponse{}, ctx.Err()
	}
}

// Say prints an event. Partial fragments redraw in place; the final call
// for the event commits the line.
func (c *Console) Say(ctx context.Context, kind, text string, opts SayOptions) error {
	if opts.Partial {
		// \r redraw; pad to cover the previous fragment.
		line := fmt.Sprintf("%s %s", color.GreenString("[%s]", kind), text)
		pad := c.partialLen - len(line)
		if pad < 0 {
			pad = 0
		}
		fmt.Fprintf(c.out, "\r%s%s", line, strings.Repeat(" ", pad))
		c.partialLen = len(line)
		return nil
	}
	if c.partialLen > 0 {
		fmt.Fprint(c.out, "\r", strings.Repeat(" ", c.partialLen), "\r")
		c.partialLen = 0
	}
	fmt.Fprintf(c.out, "%s %s\n", color.GreenString("[%s]", kind), text)
	for _, img := range opts.Images {
		fmt.Fprintf(c.out, "  image: %s\n", img)
	}
	for _, f := range opts.Files {
		fmt.Fprintf(c.out, "  file: %s\n", f)
	}
	return nil
}
