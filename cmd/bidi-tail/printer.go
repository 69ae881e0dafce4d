package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/casualjim/bidi"
	"github.com/casualjim/bidi/pkg/jsonx"
	"github.com/fatih/color"
	"github.com/k0kubun/pp/v3"
)

// printer writes every event it handles to w.
type printer struct {
	mu     sync.Mutex
	w      io.Writer
	pretty *pp.PrettyPrinter
}

func newPrinter(w io.Writer, pretty bool) *printer {
	p := &printer{w: w}
	if pretty {
		p.pretty = pp.New()
		p.pretty.SetOutput(w)
		p.pretty.SetColoringEnabled(!color.NoColor)
	}
	return p
}

func (p *printer) HandleEvent(_ context.Context, event bidi.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ts := time.Time(event.ReceivedAt).Format(time.StampMilli)
	fmt.Fprintf(p.w, "%s %s", ts, color.CyanString(event.Method))
	if event.HasContext() {
		fmt.Fprintf(p.w, " %s", color.YellowString(event.Context))
	}
	fmt.Fprintln(p.w)

	if p.pretty != nil {
		params, err := jsonx.ToDynamicJSON(event.Params)
		if err == nil {
			_, err = p.pretty.Println(params)
			return err
		}
	}

	indented, _ := jsonx.Indent(event.Params)
	_, err := fmt.Fprintf(p.w, "%s\n", indented)
	return err
}

func (p *printer) Status(status bidi.SessionStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state := color.GreenString("ready")
	if !status.Ready {
		state = color.RedString("not ready")
	}
	if status.Message == "" {
		fmt.Fprintf(p.w, "%s: %s\n", color.MagentaString("session"), state)
		return
	}
	fmt.Fprintf(p.w, "%s: %s (%s)\n", color.MagentaString("session"), state, status.Message)
}
