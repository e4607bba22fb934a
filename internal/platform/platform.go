package platform

import "net/url"

// Window is a secondary window opened for an external payment page.
type Window interface {
	Closed() bool
}

// Navigator carries every side effect the storefront has on the user's
// browsing context.
type Navigator interface {
	// Navigate moves to an in-app path, keeping history.
	Navigate(path string, query url.Values)
	// Redirect leaves the app for an absolute URL and replaces history.
	Redirect(target string)
	// OpenWindow reports false when the window could not be opened.
	OpenWindow(target string) (Window, bool)
	// Focus fires every time the user returns to the storefront.
	Focus() <-chan struct{}
	Origin() string
}

// Location renders an in-app path with its query.
func Location(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}
	return path + "?" + query.Encode()
}
