package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/rickgao/zato-client/internal/envelope"
)

// printer renders results for humans.
type printer struct {
	w      io.Writer
	header *color.Color
	key    *color.Color
	errc   *color.Color
}

func newPrinter(w io.Writer, noColor bool) *printer {
	p := &printer{
		w:      w,
		header: color.New(color.FgGreen, color.Bold),
		key:    color.New(color.FgCyan),
		errc:   color.New(color.FgRed),
	}
	if noColor {
		p.header.DisableColor()
		p.key.DisableColor()
		p.errc.DisableColor()
	}
	return p
}

// data prints a JSON payload, indented when it is valid JSON.
func (p *printer) data(raw []byte) {
	if len(raw) == 0 {
		fmt.Fprintln(p.w, "(empty)")
		return
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Fprintln(p.w, string(raw))
		return
	}
	fmt.Fprintln(p.w, buf.String())
}

// response prints a service response.
func (p *printer) response(service string, env envelope.Envelope) {
	p.header.Fprintf(p.w, "<< %s", service)
	p.key.Fprintf(p.w, " in_reply_to=%s\n", env.Meta.InReplyTo)
	p.data(env.Data)
}

// message prints an unsolicited message.
func (p *printer) message(env envelope.Envelope, receivedAt time.Time) {
	p.header.Fprintf(p.w, "%s ", receivedAt.Format("15:04:05.000"))
	if topic, ok := env.StringField("topic_name"); ok {
		p.key.Fprintf(p.w, "topic=%s ", topic)
	}
	p.key.Fprintf(p.w, "id=%s\n", env.Meta.ID)
	p.data(env.Data)
}

// failure prints a non-fatal error.
func (p *printer) failure(format string, args ...any) {
	p.errc.Fprintf(p.w, format+"\n", args...)
}
