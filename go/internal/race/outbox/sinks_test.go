package outbox

import (
	"context"
	"testing"

	"github.com/mcdev12/dailies/go/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSinks(t *testing.T) {
	cfg := config.Default()
	local := &recordingPublisher{}

	cfg.Outbox.Sinks = []string{config.SinkLog, config.SinkLocal}
	sinks, err := OpenSinks(context.Background(), cfg, local)
	require.NoError(t, err)
	assert.Len(t, sinks.Publisher, 2)
	assert.Nil(t, sinks.Connectivity())

	env := testEnvelope(t)
	require.NoError(t, sinks.Publisher.Publish(context.Background(), env))
	assert.Len(t, local.events, 1)
	assert.NoError(t, sinks.Close())

	cfg.Outbox.Sinks = nil
	sinks, err = OpenSinks(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, MultiPublisher{LogPublisher{}}, sinks.Publisher, "events are at least logged")

	cfg.Outbox.Sinks = []string{config.SinkLocal}
	_, err = OpenSinks(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "no in-process gateway")
}
