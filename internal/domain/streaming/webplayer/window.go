package webplayer

import "github.com/lbraun/chorale/internal/infra/browser"

// AuthWindow is the browsing context the interactive login runs in.
// The desktop shell provides an implementation backed by a real popup
// window whose closure it can observe; BrowserWindow is the fallback
// for plain terminal use.
type AuthWindow interface {
	// Open navigates the window to the login URL. An error means the
	// window could not be opened at all (e.g. blocked).
	Open(url string) error

	// IsClosed reports whether the user closed the window before the
	// login completed.
	IsClosed() bool

	// Close closes the window. Safe to call more than once.
	Close()
}

// BrowserWindow opens the login URL in the system browser. A browser
// tab opened this way cannot be observed or closed again, so IsClosed
// always reports false and Close is a no-op; the polling budget is the
// only way such a flow terminates without success.
type BrowserWindow struct{}

// Open opens url in the default system browser.
func (BrowserWindow) Open(url string) error {
	return browser.Open(url)
}

// IsClosed always reports false.
func (BrowserWindow) IsClosed() bool { return false }

// Close is a no-op.
func (BrowserWindow) Close() {}
