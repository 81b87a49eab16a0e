// SPDX-License-Identifier: AGPL-3.0-or-later
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Emitter writes audit events to a stream, one per line. Used for the
// server log sink and for CLI output; durable storage is a separate sink.
type Emitter struct {
	mu   sync.Mutex
	seq  int64
	out  io.Writer
	json bool
}

// NewEmitter returns a stream emitter, or nil when out is nil.
func NewEmitter(out io.Writer, json bool) *Emitter {
	if out == nil {
		return nil
	}
	return &Emitter{out: out, json: json}
}

func (e *Emitter) Record(ev Event) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq++
	ev.Sequence = e.seq
	ev.Timestamp = time.Now().UTC()

	if e.json {
		payload, err := json.Marshal(ev)
		if err != nil {
			fmt.Fprintf(e.out, "{\"error\":%q}\n", err.Error())
			return
		}
		fmt.Fprintf(e.out, "%s\n", payload)
		return
	}

	fmt.Fprintf(e.out, "[%d] %s", ev.Sequence, ev.Type)
	if ev.ExecutionID != "" {
		fmt.Fprintf(e.out, " execution=%s", ev.ExecutionID)
	}
	if ev.PlanID != "" {
		fmt.Fprintf(e.out, " plan=%s", ev.PlanID)
	}
	if ev.ApprovalID != "" {
		fmt.Fprintf(e.out, " approval=%s", ev.ApprovalID)
	}
	if ev.Command != "" {
		fmt.Fprintf(e.out, " command=%q", ev.Command)
	}
	if len(ev.Data) > 0 {
		first := true
		fmt.Fprintf(e.out, " data={")
		for k, v := range ev.Data {
			if !first {
				fmt.Fprintf(e.out, ", ")
			}
			fmt.Fprintf(e.out, "%s:%v", k, v)
			first = false
		}
		fmt.Fprintf(e.out, "}")
	}
	fmt.Fprintln(e.out)
}
