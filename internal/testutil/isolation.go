// Package testutil holds helpers shared by the modkit test suites.
package testutil

import (
	"os"
	"testing"
)

// TrackedEnv lists the environment variables modkit reads at runtime.
var TrackedEnv = []string{"APP_ENV", "MODKIT_ENV", "MODKIT_LOG_LEVEL"}

type envSnapshot map[string]*string

func snapshot(keys []string) envSnapshot {
	snap := envSnapshot{}
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			vCopy := v
			snap[k] = &vCopy
		} else {
			snap[k] = nil
		}
	}
	return snap
}

func (s envSnapshot) restore() {
	for k, v := range s {
		if v == nil {
			_ = os.Unsetenv(k)
		} else {
			_ = os.Setenv(k, *v)
		}
	}
}

// WithIsolatedEnv snapshots the tracked variables plus extra, runs fn and
// restores them.
func WithIsolatedEnv(fn func(), extra ...string) {
	snap := snapshot(append(append([]string{}, TrackedEnv...), extra...))
	defer snap.restore()
	fn()
}

// Isolate snapshots the tracked variables plus extra and restores them in
// t.Cleanup. Safe to call multiple times in a test; restores run LIFO.
func Isolate(t *testing.T, extra ...string) {
	t.Helper()
	snap := snapshot(append(append([]string{}, TrackedEnv...), extra...))
	t.Cleanup(snap.restore)
}
