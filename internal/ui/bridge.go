package ui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gravitrone/kgeditor/internal/app"
	"github.com/gravitrone/kgeditor/internal/store"
)

// Bridge carries controller callbacks into a running program. The
// controller is built before the program, so its Confirm func is the
// bridge's.
type Bridge struct {
	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
}

// NewBridge returns a bridge with no program attached.
func NewBridge() *Bridge {
	return &Bridge{}
}

func (b *Bridge) attach(p *tea.Program) {
	b.mu.Lock()
	b.program = p
	b.done = make(chan struct{})
	b.mu.Unlock()
}

func (b *Bridge) detach() {
	b.mu.Lock()
	if b.done != nil {
		close(b.done)
	}
	b.program = nil
	b.done = nil
	b.mu.Unlock()
}

// send delivers msg without blocking the caller. Store callbacks run on
// the store's goroutines and must never wait on the program loop.
func (b *Bridge) send(msg tea.Msg) {
	b.mu.Lock()
	p := b.program
	b.mu.Unlock()
	if p != nil {
		go p.Send(msg)
	}
}

// Confirm shows message in the running program and waits for the answer.
// Without a program, or once it exits, the answer is no.
func (b *Bridge) Confirm(message string) bool {
	b.mu.Lock()
	p, done := b.program, b.done
	b.mu.Unlock()
	if p == nil {
		return false
	}

	reply := make(chan bool, 1)
	go p.Send(confirmRequestMsg{message: message, reply: reply})
	select {
	case ok := <-reply:
		return ok
	case <-done:
		return false
	}
}

// Run starts the editor on the terminal and blocks until it exits.
func Run(ctx context.Context, ctrl *app.Controller, bridge *Bridge, opts ...tea.ProgramOption) error {
	ApplyTheme(ctrl.Theme())
	model := NewApp(ctx, ctrl)

	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(model, opts...)
	bridge.attach(p)
	defer bridge.detach()

	unsubscribe := ctrl.Store.Subscribe(func(ev store.Event) {
		bridge.send(storeEventMsg{event: ev})
	})
	defer unsubscribe()
	ctrl.OnProgress(func(text string) {
		bridge.send(progressMsg{text: text})
	})
	ctrl.Router.OnChange(func(path string) {
		bridge.send(routeMsg{path: path})
	})

	_, err := p.Run()
	return err
}
