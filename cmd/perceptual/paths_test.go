package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/perceptual/internal/pim"
)

func TestResolveWeightsCache(t *testing.T) {
	t.Run("empty uses loader default", func(t *testing.T) {
		if got := resolveWeightsCache("  "); got != pim.DefaultWeightsCache() {
			t.Fatalf("got %q want %q", got, pim.DefaultWeightsCache())
		}
	})

	t.Run("explicit dir is cleaned", func(t *testing.T) {
		dir := t.TempDir()
		if got := resolveWeightsCache(dir + "/sub/../cache/"); got != filepath.Join(dir, "cache") {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("home is expanded", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)
		if got := resolveWeightsCache("~/pim"); got != filepath.Join(home, "pim") {
			t.Fatalf("got %q want %q", got, filepath.Join(home, "pim"))
		}
	})

	t.Run("tilde inside a name is kept", func(t *testing.T) {
		if got := resolveWeightsCache("/tmp/~cache"); got != "/tmp/~cache" {
			t.Fatalf("got %q", got)
		}
	})
}

func TestResolveURLPrefix(t *testing.T) {
	if got := resolveURLPrefix(""); got != pim.DefaultURLPrefix {
		t.Fatalf("empty prefix: got %q", got)
	}
	if got := resolveURLPrefix(" test "); got != pim.TestURLPrefix {
		t.Fatalf("test prefix: got %q", got)
	}
}

func TestExpandHomeWithoutHome(t *testing.T) {
	t.Setenv("HOME", "")
	if _, err := os.UserHomeDir(); err == nil {
		t.Skip("home directory still resolvable")
	}
	if got := expandHome("~/x"); got != "~/x" {
		t.Fatalf("got %q", got)
	}
}
