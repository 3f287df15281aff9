package sse

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// Event is one parsed SSE event.
type Event struct {
	Name string
	Data string
	Err  error
}

// Parse reads an SSE stream and sends parsed events to a channel.
// Multiple data lines are joined with "\n"; an event without an
// "event:" line is named "message". The channel is closed when the
// stream ends or ctx is done. A read error is delivered as a final Event
// with Err set.
func Parse(ctx context.Context, r io.Reader) <-chan Event {
	ch := make(chan Event)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		send := func(ev Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var (
			name string
			data []string
		)
		flush := func() bool {
			if name == "" && len(data) == 0 {
				return true
			}
			if name == "" {
				name = "message"
			}
			ev := Event{Name: name, Data: strings.Join(data, "\n")}
			name, data = "", nil
			return send(ev)
		}

		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r")
			switch {
			case line == "":
				if !flush() {
					return
				}
			case strings.HasPrefix(line, ":"):
				// comment
			case strings.HasPrefix(line, "event:"):
				name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				v := strings.TrimPrefix(line, "data:")
				data = append(data, strings.TrimPrefix(v, " "))
			}
		}
		if err := scanner.Err(); err != nil {
			send(Event{Err: err})
			return
		}
		flush()
	}()
	return ch
}
