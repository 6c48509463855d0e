package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/slskdn-sub011/internal/overlay/envelope"
	"github.com/snapetech/slskdn-sub011/internal/overlay/errs"
)

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	d := New()
	called := false
	d.Register("ping", func(ctx context.Context, peerID string, e *envelope.ControlEnvelope) error {
		called = true
		assert.Equal(t, "peer-1", peerID)
		return nil
	})

	err := d.Dispatch(context.Background(), "peer-1", &envelope.ControlEnvelope{Type: "ping"})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestDispatchRejectsUnknownType(t *testing.T) {
	d := New()
	err := d.Dispatch(context.Background(), "peer-1", &envelope.ControlEnvelope{Type: "mystery"})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Handler))
}

func TestDispatchPropagatesHandlerError(t *testing.T) {
	d := New()
	want := errors.New("boom")
	d.Register("ping", func(ctx context.Context, peerID string, e *envelope.ControlEnvelope) error {
		return want
	})

	err := d.Dispatch(context.Background(), "peer-1", &envelope.ControlEnvelope{Type: "ping"})
	require.Error(t, err)
	assert.ErrorIs(t, err, want)
}

func TestUnregisterRemovesHandler(t *testing.T) {
	d := New()
	d.Register("ping", func(ctx context.Context, peerID string, e *envelope.ControlEnvelope) error { return nil })
	d.Unregister("ping")

	err := d.Dispatch(context.Background(), "peer-1", &envelope.ControlEnvelope{Type: "ping"})
	require.Error(t, err)
}
