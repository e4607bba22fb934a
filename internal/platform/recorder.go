package platform

import (
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

type Navigation struct {
	Path  string
	Query url.Values
}

// Recorder is an in-memory Navigator for tests. Every call is recorded and
// navigations are also delivered on a channel so asynchronous steps can be
// awaited.
type Recorder struct {
	OriginURL   string
	BlockPopups bool

	mu          sync.Mutex
	navigations []Navigation
	redirects   []string
	opened      []string
	windows     []*RecordedWindow

	navigated chan Navigation
	focus     chan struct{}
}

var _ Navigator = (*Recorder)(nil)

func NewRecorder(origin string) *Recorder {
	return &Recorder{
		OriginURL: origin,
		navigated: make(chan Navigation, 16),
		focus:     make(chan struct{}, 1),
	}
}

type RecordedWindow struct {
	URL    string
	closed atomic.Bool
}

func (w *RecordedWindow) Closed() bool { return w.closed.Load() }

func (w *RecordedWindow) Close() { w.closed.Store(true) }

func (r *Recorder) Navigate(path string, query url.Values) {
	nav := Navigation{Path: path, Query: query}

	r.mu.Lock()
	r.navigations = append(r.navigations, nav)
	r.mu.Unlock()

	select {
	case r.navigated <- nav:
	default:
	}
}

func (r *Recorder) Redirect(target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redirects = append(r.redirects, target)
}

func (r *Recorder) OpenWindow(target string) (Window, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.opened = append(r.opened, target)
	if r.BlockPopups {
		return nil, false
	}

	w := &RecordedWindow{URL: target}
	r.windows = append(r.windows, w)
	return w, true
}

func (r *Recorder) Focus() <-chan struct{} {
	return r.focus
}

func (r *Recorder) Origin() string {
	return r.OriginURL
}

// Refocus simulates the user returning to the storefront.
func (r *Recorder) Refocus() {
	select {
	case r.focus <- struct{}{}:
	default:
	}
}

func (r *Recorder) Navigations() []Navigation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Navigation(nil), r.navigations...)
}

func (r *Recorder) Redirects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.redirects...)
}

func (r *Recorder) Opened() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.opened...)
}

func (r *Recorder) Windows() []*RecordedWindow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*RecordedWindow(nil), r.windows...)
}

// WaitNavigation blocks until the next navigation or the timeout.
func (r *Recorder) WaitNavigation(timeout time.Duration) (Navigation, bool) {
	select {
	case nav := <-r.navigated:
		return nav, true
	case <-time.After(timeout):
		return Navigation{}, false
	}
}
