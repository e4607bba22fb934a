package platform

import (
	"fmt"
	"io"
	"net/url"
	"sync"
	"sync/atomic"
)

// Terminal prints navigation to a writer. External windows are simulated:
// they stay open until CloseWindows is called, and Refocus plays the role
// of the user switching back to the storefront.
type Terminal struct {
	origin string
	out    io.Writer
	focus  chan struct{}

	mu       sync.Mutex
	location string
	windows  []*terminalWindow
}

type terminalWindow struct {
	closed atomic.Bool
}

func (w *terminalWindow) Closed() bool { return w.closed.Load() }

var _ Navigator = (*Terminal)(nil)

func NewTerminal(origin string, out io.Writer) *Terminal {
	return &Terminal{
		origin:   origin,
		out:      out,
		focus:    make(chan struct{}, 1),
		location: "/",
	}
}

func (t *Terminal) Navigate(path string, query url.Values) {
	loc := Location(path, query)

	t.mu.Lock()
	t.location = loc
	t.mu.Unlock()

	_, _ = fmt.Fprintf(t.out, "-> %s\n", loc)
}

func (t *Terminal) Redirect(target string) {
	t.mu.Lock()
	t.location = target
	t.mu.Unlock()

	_, _ = fmt.Fprintf(t.out, "Leaving the storefront, continue in your browser:\n  %s\n", target)
}

func (t *Terminal) OpenWindow(target string) (Window, bool) {
	w := &terminalWindow{}

	t.mu.Lock()
	t.windows = append(t.windows, w)
	t.mu.Unlock()

	_, _ = fmt.Fprintf(t.out, "Complete the payment in your browser, then type \"done\":\n  %s\n", target)
	return w, true
}

func (t *Terminal) Focus() <-chan struct{} {
	return t.focus
}

func (t *Terminal) Origin() string {
	return t.origin
}

// Location is the last in-app path or external URL navigated to.
func (t *Terminal) Location() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.location
}

// CloseWindows marks every open external window as closed.
func (t *Terminal) CloseWindows() {
	t.mu.Lock()
	windows := t.windows
	t.windows = nil
	t.mu.Unlock()

	for _, w := range windows {
		w.closed.Store(true)
	}
}

// Refocus signals that the user is back. Signals are coalesced.
func (t *Terminal) Refocus() {
	select {
	case t.focus <- struct{}{}:
	default:
	}
}
