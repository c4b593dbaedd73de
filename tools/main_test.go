package tools

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/richinex/notewright/config"
)

func TestMain(m *testing.M) {
	// genai's cloud dependencies start an opencensus worker in init.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// newTestPolicy builds a policy rooted in a temp notes dir. mutate may
// adjust the configuration before the policy is built.
func newTestPolicy(t *testing.T, mutate func(*config.ToolPolicy)) *Policy {
	t.Helper()
	cfg := config.DefaultToolPolicy()
	cfg.NotesDir = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := NewPolicy(cfg)
	require.NoError(t, err)
	return p
}

func requireKind(t *testing.T, err error, want ErrorKind) *DispatchError {
	t.Helper()
	require.Error(t, err)
	var de *DispatchError
	require.True(t, errors.As(err, &de), "expected *DispatchError, got %T: %v", err, err)
	require.Equal(t, want, de.Kind, "error: %v", err)
	return de
}
