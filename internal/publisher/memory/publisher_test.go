package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisher_RecordsMessages(t *testing.T) {
	t.Parallel()

	p := New()
	id, err := p.Publish(context.Background(), "capture-events", map[string]string{"task_id": "task-1"})
	require.NoError(t, err)
	require.Equal(t, "mem-1", id)

	id, err = p.Publish(context.Background(), "capture-events", "second")
	require.NoError(t, err)
	require.Equal(t, "mem-2", id)

	messages := p.Messages()
	require.Len(t, messages, 2)
	require.Equal(t, "capture-events", messages[0].Topic)
	require.Equal(t, map[string]string{"task_id": "task-1"}, messages[0].Payload)

	require.NoError(t, p.Close())
}
