package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTriggerRejectsUnknownJob(t *testing.T) {
	cli, err := NewJobsCLI("127.0.0.1:6379")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })

	_, err = cli.Trigger(context.Background(), "reports:nightly")
	require.ErrorContains(t, err, "unsupported job")
}

func TestInspectQueueRequiresInspector(t *testing.T) {
	var cli *JobsCLI
	_, err := cli.InspectQueue(context.Background())
	require.Error(t, err)

	_, err = cli.Trigger(context.Background(), "summary:warmup")
	require.Error(t, err)
}
