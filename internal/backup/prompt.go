package backup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Prompter asks the operator a yes/no question.
type Prompter interface {
	Confirm(question string) (bool, error)
}

// LinePrompter writes the question to out and reads one line from in.
// Only "y" (any case, surrounding space ignored) counts as yes.
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewLinePrompter returns a prompter over in and out.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

// NewStdinPrompter prompts on the terminal.
func NewStdinPrompter() *LinePrompter {
	return NewLinePrompter(os.Stdin, os.Stderr)
}

// Confirm implements Prompter. End of input counts as no.
func (p *LinePrompter) Confirm(question string) (bool, error) {
	if _, err := fmt.Fprint(p.out, question); err != nil {
		return false, err
	}
	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(line), "y"), nil
}
