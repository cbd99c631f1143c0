package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// ProgressTracker forwards login progress to the TUI. It implements
// login.Progress; the login goroutine reports through it and the program
// reads the events back with Next.
type ProgressTracker struct {
	events chan tea.Msg
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{events: make(chan tea.Msg, 32)}
}

// send never blocks the login; a full buffer drops the update.
func (p *ProgressTracker) send(msg tea.Msg) {
	select {
	case p.events <- msg:
	default:
	}
}

func (p *ProgressTracker) SetTotal(total int) {
	p.send(LoginProgressMsg{Count: 0, Total: total})
}

func (p *ProgressTracker) SetCount(count int) {
	p.send(LoginProgressMsg{Count: count})
}

func (p *ProgressTracker) SetVisitURL(message, url string) {
	p.send(VisitURLMsg{Message: message, URL: url})
}

func (p *ProgressTracker) ClearVisitURL() {
	p.send(VisitURLClearedMsg{})
}

// Finish delivers the login result and closes the tracker.
func (p *ProgressTracker) Finish(result LoginFinished) {
	p.events <- result
	close(p.events)
}

// Next returns a command waiting for the next event.
func (p *ProgressTracker) Next() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-p.events
		if !ok {
			return nil
		}
		return msg
	}
}
