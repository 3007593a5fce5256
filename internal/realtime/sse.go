package realtime

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// WriteSSE writes ev as one Server-Sent Events message.
func WriteSSE(w io.Writer, ev Event) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Entity, data)
	return err
}

// WriteSSEComment writes a comment line, used as a keep-alive.
func WriteSSEComment(w io.Writer, comment string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", comment)
	return err
}

// ReadSSE decodes Server-Sent Events from r and calls fn for each event until
// r is exhausted or fn returns an error. Messages that fail to decode are
// passed to onBadMessage and skipped.
func ReadSSE(r io.Reader, fn func(Event) error, onBadMessage func(error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data bytes.Buffer
	dispatch := func() error {
		if data.Len() == 0 {
			return nil
		}
		ev, err := Decode(data.Bytes())
		data.Reset()
		if err != nil {
			if onBadMessage != nil {
				onBadMessage(err)
			}
			return nil
		}
		return fn(ev)
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := dispatch(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return dispatch()
}
