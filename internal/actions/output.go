package actions

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

const heredocDelimiter = "EOF"

// Output appends step outputs using the GITHUB_OUTPUT file protocol
type Output struct {
	path string
	w    io.Writer
}

// NewOutput returns an Output that appends to the file at path. When path is
// empty, outputs are written to stdout so commands stay usable outside of a
// workflow.
func NewOutput(path string) *Output {
	return &Output{path: path, w: os.Stdout}
}

// NewWriterOutput returns an Output that writes to w
func NewWriterOutput(w io.Writer) *Output {
	return &Output{w: w}
}

// Configured reports whether outputs go to a GITHUB_OUTPUT file
func (o *Output) Configured() bool {
	return o.path != ""
}

// Set writes a single output. Single-line values use key=value; values
// containing a newline use the key<<EOF heredoc form.
func (o *Output) Set(key, value string) error {
	return o.write(Format(key, value))
}

// SetMany writes several outputs in order in one append
func (o *Output) SetMany(pairs ...[2]string) error {
	var sb strings.Builder
	for _, pair := range pairs {
		sb.WriteString(Format(pair[0], pair[1]))
	}
	return o.write(sb.String())
}

// SetHeredoc always uses the heredoc form, matching workflows that expect
// JSON outputs to be framed even when they fit on one line.
func (o *Output) SetHeredoc(key, value string) error {
	return o.write(formatHeredoc(key, value))
}

func (o *Output) write(s string) error {
	if o.path == "" {
		if _, err := io.WriteString(o.w, s); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	f, err := os.OpenFile(o.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open GITHUB_OUTPUT %s: %w", o.path, err)
	}
	//goland:noinspection GoUnhandledErrorResult
	defer f.Close()

	if _, err := f.WriteString(s); err != nil {
		return fmt.Errorf("failed to write GITHUB_OUTPUT %s: %w", o.path, err)
	}
	return f.Close()
}

// Format renders one output entry
func Format(key, value string) string {
	if strings.Contains(value, "\n") {
		return formatHeredoc(key, value)
	}
	return key + "=" + value + "\n"
}

func formatHeredoc(key, value string) string {
	delimiter := heredocDelimiter
	if containsLine(value, delimiter) {
		delimiter = "EOF_" + randomSuffix()
	}
	return key + "<<" + delimiter + "\n" + value + "\n" + delimiter + "\n"
}

func containsLine(value, line string) bool {
	for _, l := range strings.Split(value, "\n") {
		if l == line {
			return true
		}
	}
	return false
}

func randomSuffix() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
