package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/danielolaszy/hierview/pkg/models"
)

// writeEvent serializes one stream event as a server-sent-event frame:
// an "event:" line carrying the kind and a "data:" line carrying the JSON
// payload, terminated by a blank line.
func writeEvent(w io.Writer, ev models.StreamEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.Kind, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload); err != nil {
		return fmt.Errorf("writing %s event: %w", ev.Kind, err)
	}
	return nil
}

// publish forwards events to the client in the order received, flushing after
// each frame. It returns the first write failure; the caller aborts the run.
func publish(w http.ResponseWriter, flusher http.Flusher, events <-chan models.StreamEvent) error {
	for ev := range events {
		if err := writeEvent(w, ev); err != nil {
			return err
		}
		flusher.Flush()
	}
	return nil
}
