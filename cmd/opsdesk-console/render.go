// ABOUTME: Terminal rendering for the conversation list and message view
// ABOUTME: Long lists render through the virtual window, sized to the terminal

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/opsdesk/livechat/internal/chat"
	"github.com/opsdesk/livechat/internal/console"
	"github.com/opsdesk/livechat/internal/state"
	"github.com/opsdesk/livechat/internal/transport"
)

type renderer struct {
	out io.Writer

	cyan   *color.Color
	green  *color.Color
	yellow *color.Color
	red    *color.Color
	gray   *color.Color
	bold   *color.Color
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{
		out:    out,
		cyan:   color.New(color.FgCyan),
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		red:    color.New(color.FgRed),
		gray:   color.New(color.FgHiBlack),
		bold:   color.New(color.Bold),
	}
}

// viewportRows returns the usable message rows for the current terminal,
// with a sane default when stdout is not a terminal.
func viewportRows() int {
	_, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || height < 8 {
		return 24
	}
	return height - 4 // prompt, status line, spacing
}

func (r *renderer) conversationList(s console.Snapshot) {
	list := s.Store.Conversations
	query := strings.ToLower(s.Store.SearchQuery)

	fmt.Fprintln(r.out)
	r.bold.Fprintln(r.out, "Conversations")
	shown := 0
	for _, c := range list {
		if query != "" && !strings.Contains(strings.ToLower(c.DisplayName), query) {
			continue
		}
		shown++

		marker := "  "
		if c.ID == s.Store.SelectedID {
			marker = r.cyan.Sprint("▶ ")
		}
		name := c.DisplayName
		if name == "" {
			name = c.ID
		}

		mode := r.gray.Sprint("bot")
		if c.ChatMode == chat.ModeHuman {
			mode = r.green.Sprint("human")
		}
		sessionTag := ""
		if c.Session != nil && c.Session.Status == chat.SessionWaiting {
			sessionTag = r.yellow.Sprint(" waiting")
		}

		unread := ""
		if c.UnreadCount > 0 {
			unread = r.red.Sprintf(" (%d)", c.UnreadCount)
		}

		preview := ""
		if c.LastMessage != nil {
			preview = r.gray.Sprint("  " + truncate(c.LastMessage.Content, 40))
		}

		fmt.Fprintf(r.out, "%s%-20s [%s]%s%s%s\n", marker, truncate(name, 20), mode, sessionTag, unread, preview)
	}
	if shown == 0 {
		r.gray.Fprintln(r.out, "  (none)")
	}
	fmt.Fprintln(r.out)
}

func (r *renderer) messages(s console.Snapshot) {
	if s.Store.SelectedID == "" {
		fmt.Fprintln(r.out, "No conversation open. Use /open <id>.")
		return
	}

	fmt.Fprintln(r.out)
	if cur := s.Store.Current; cur != nil {
		name := cur.DisplayName
		if name == "" {
			name = cur.ID
		}
		r.bold.Fprint(r.out, name)
		if cur.ChatMode == chat.ModeHuman {
			r.green.Fprint(r.out, "  [human]")
		} else {
			r.gray.Fprint(r.out, "  [bot]")
		}
		for _, tag := range cur.Tags {
			r.cyan.Fprintf(r.out, "  #%s", tag.Name)
		}
		fmt.Fprintln(r.out)
	}

	msgs := s.Store.Messages
	rows := viewportRows()
	// The terminal renders fixed-height rows, so the window geometry is
	// one unit per row anchored to the list tail.
	scrollTop := len(msgs) - rows
	if scrollTop < 0 {
		scrollTop = 0
	}
	win := state.ComputeWindow(state.WindowParams{
		ScrollTop:      scrollTop,
		ViewportHeight: rows,
		TotalCount:     len(msgs),
		RowHeight:      1,
		Overscan:       0,
		Threshold:      rows,
	})

	if s.Store.HasMoreHistory || win.StartIndex > 0 {
		r.gray.Fprintf(r.out, "  … older messages above (/older)\n")
	}
	for _, m := range msgs[win.StartIndex:win.EndIndex] {
		r.message(s, m)
	}

	for op := range s.Typing {
		r.gray.Fprintf(r.out, "  %s is typing…\n", op)
	}
	fmt.Fprintln(r.out)
}

func (r *renderer) message(s console.Snapshot, m chat.Message) {
	ts := m.CreatedAt
	if len(ts) > 19 {
		ts = ts[11:19] // HH:MM:SS from RFC3339
	}

	var who string
	switch {
	case m.Direction == chat.DirectionIncoming:
		who = r.cyan.Sprint("user")
	case m.SenderRole == chat.RoleBot:
		who = r.gray.Sprint("bot")
	case m.OperatorName != "":
		who = r.green.Sprint(m.OperatorName)
	default:
		who = r.green.Sprint("you")
	}

	mark := ""
	if m.TempID != "" {
		if reason, failed := s.Store.FailureReason(m.TempID); failed {
			mark = r.red.Sprintf(" ✗ %s (retry: /retry %s)", reason, m.TempID)
		} else if s.Store.IsPending(m.TempID) {
			mark = r.yellow.Sprint(" …")
		}
	}

	fmt.Fprintf(r.out, "  %s %s: %s%s\n", r.gray.Sprint(ts), who, chat.PreviewText(m), mark)
}

func (r *renderer) status(s console.Snapshot) {
	fmt.Fprintln(r.out)
	fmt.Fprint(r.out, "Connection: ")
	switch s.Connection {
	case transport.StateConnected:
		r.green.Fprintln(r.out, "connected")
	case transport.StateReconnecting, transport.StateConnecting, transport.StateAuthenticating:
		r.yellow.Fprintln(r.out, string(s.Connection))
	default:
		r.red.Fprintln(r.out, "disconnected (/reconnect to retry)")
	}

	if !s.Store.BackendOnline {
		r.red.Fprintln(r.out, "Backend:    unreachable")
	}

	if n := len(s.Store.Pending); n > 0 {
		r.yellow.Fprintf(r.out, "Pending sends: %d\n", n)
	}
	if n := len(s.Store.Failed); n > 0 {
		r.red.Fprintf(r.out, "Failed sends:  %d\n", n)
	}

	if len(s.Operators) > 0 {
		r.bold.Fprintln(r.out, "Operators:")
		for _, op := range s.Operators {
			fmt.Fprintf(r.out, "  %-12s %s, %d active\n", op.ID, op.Status, op.ActiveChats)
		}
	}
	fmt.Fprintln(r.out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}

// terminalNotifier rings the bell and prints a one-line banner for incoming
// messages in conversations that are not open.
type terminalNotifier struct{}

func (terminalNotifier) Notify(conversationID, title, body string) {
	yellow := color.New(color.FgYellow)
	fmt.Print("\a")
	yellow.Printf("\n[%s] %s\n", title, truncate(body, 60))
}
