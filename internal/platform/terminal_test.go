package platform

import (
	"bytes"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestTerminal_Navigate(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal("http://localhost:4200", &out)

	term.Navigate("/checkout/success", url.Values{"orderId": {"o-1"}})

	if term.Location() != "/checkout/success?orderId=o-1" {
		t.Errorf("unexpected location %q", term.Location())
	}
	if !strings.Contains(out.String(), "/checkout/success?orderId=o-1") {
		t.Errorf("expected navigation to be printed, got %q", out.String())
	}
}

func TestTerminal_Windows(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal("http://localhost:4200", &out)

	w, ok := term.OpenWindow("https://pay.example.com")
	if !ok {
		t.Fatal("expected window to open")
	}
	if w.Closed() {
		t.Fatal("new window should be open")
	}

	term.CloseWindows()
	if !w.Closed() {
		t.Error("expected window to be closed")
	}
}

func TestTerminal_RefocusCoalesces(t *testing.T) {
	term := NewTerminal("", &bytes.Buffer{})

	term.Refocus()
	term.Refocus()

	select {
	case <-term.Focus():
	case <-time.After(time.Second):
		t.Fatal("expected a focus signal")
	}

	select {
	case <-term.Focus():
		t.Fatal("expected signals to be coalesced")
	default:
	}
}

func TestRecorder_BlockPopups(t *testing.T) {
	rec := NewRecorder("http://shop")
	rec.BlockPopups = true

	if _, ok := rec.OpenWindow("https://pay"); ok {
		t.Error("expected popup to be blocked")
	}
	if got := rec.Opened(); len(got) != 1 || got[0] != "https://pay" {
		t.Errorf("expected attempt to be recorded, got %v", got)
	}
}

func TestLocation(t *testing.T) {
	if got := Location("/orders", nil); got != "/orders" {
		t.Errorf("unexpected %q", got)
	}
	if got := Location("/checkout/success", url.Values{"orderId": {"a b"}}); got != "/checkout/success?orderId=a+b" {
		t.Errorf("unexpected %q", got)
	}
}
