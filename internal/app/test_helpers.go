package app

import (
	"context"
	"os"
	"testing"

	"github.com/specialistvlad/nodegrid/internal/registry"
	"github.com/specialistvlad/nodegrid/internal/testutil"
	"github.com/stretchr/testify/require"
)

// SetupAppTest creates an app with debug logging captured in a buffer. The
// app is closed when the test ends. Logs are dumped when
// NODEGRID_TEST_LOGS=true.
func SetupAppTest(t *testing.T, cfg *Config, modules ...registry.Module) (*App, *testutil.SafeBuffer) {
	t.Helper()

	logBuffer := &testutil.SafeBuffer{}
	cfg.LogLevel = "debug"
	testApp, err := NewApp(context.Background(), logBuffer, cfg, modules...)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := testApp.Close(); err != nil {
			t.Errorf("closing app: %v", err)
		}
		if os.Getenv("NODEGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
