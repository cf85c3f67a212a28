package actions

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// AnnotationHook is a zerolog hook that mirrors warnings and errors as
// workflow commands so they show up as annotations on the run summary.
type AnnotationHook struct {
	w io.Writer
}

// NewAnnotationHook returns a hook writing workflow commands to w
func NewAnnotationHook(w io.Writer) AnnotationHook {
	return AnnotationHook{w: w}
}

func (h AnnotationHook) Run(_ *zerolog.Event, level zerolog.Level, message string) {
	var command string
	switch {
	case level == zerolog.WarnLevel:
		command = "warning"
	case level >= zerolog.ErrorLevel && level <= zerolog.PanicLevel:
		command = "error"
	default:
		return
	}
	if message == "" {
		return
	}
	fmt.Fprintf(h.w, "::%s::%s\n", command, escapeData(message))
}

// escapeData escapes a workflow command message the way the runner expects
func escapeData(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	s = strings.ReplaceAll(s, "\n", "%0A")
	return s
}

// Mask registers value with the runner so it is redacted from the job log.
// Each line of a multi-line value is registered on its own.
func Mask(w io.Writer, value string) error {
	for _, line := range strings.Split(value, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if _, err := fmt.Fprintf(w, "::add-mask::%s\n", escapeData(line)); err != nil {
			return fmt.Errorf("failed to mask value: %w", err)
		}
	}
	return nil
}
