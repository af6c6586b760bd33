package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ppiankov/changewatch/internal/feeder"
)

// Output formats of the writer sink.
const (
	FormatText = "text"
	FormatJSON = "json"
)

type jsonEvent struct {
	Name    string   `json:"name"`
	Subject string   `json:"subject"`
	Date    string   `json:"date,omitempty"`
	HTML    bool     `json:"html"`
	Body    string   `json:"body"`
	Files   []string `json:"files,omitempty"`
}

// Writer prints events to an io.Writer instead of mailing them.
type Writer struct {
	w         io.Writer
	format    string
	connected bool
}

func NewWriter(w io.Writer, format string) (*Writer, error) {
	switch format {
	case "":
		format = FormatText
	case FormatText, FormatJSON:
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
	return &Writer{w: w, format: format}, nil
}

func (s *Writer) Connect(_ context.Context) error {
	s.connected = true
	return nil
}

func (s *Writer) Send(ctx context.Context, ev feeder.Event) error {
	if !s.connected {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.format == FormatJSON {
		return s.writeJSON(ev)
	}
	return s.writeText(ev)
}

func (s *Writer) writeText(ev feeder.Event) error {
	if _, err := fmt.Fprintf(s.w, "=== %s\n", Subject(ev)); err != nil {
		return err
	}
	if !ev.Date.IsZero() {
		if _, err := fmt.Fprintf(s.w, "Date: %s\n", ev.Date.Format(time.RFC1123Z)); err != nil {
			return err
		}
	}
	for _, f := range ev.Files {
		if _, err := fmt.Fprintf(s.w, "Attachment: %s\n", f); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(s.w, "\n%s\n\n", ev.Body)
	return err
}

func (s *Writer) writeJSON(ev feeder.Event) error {
	out := jsonEvent{
		Name:    ev.Name,
		Subject: ev.Subject,
		HTML:    ev.HTML,
		Body:    ev.Body,
		Files:   ev.Files,
	}
	if !ev.Date.IsZero() {
		out.Date = ev.Date.UTC().Format(time.RFC3339)
	}
	return json.NewEncoder(s.w).Encode(out)
}

func (s *Writer) Disconnect() error {
	s.connected = false
	return nil
}
