package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/mqvi-client/pkg"
)

func TestMediaSessionSlotsAreExclusive(t *testing.T) {
	m := NewMediaSessionManager()

	releaseRec, err := m.AcquireRecording("r1")
	require.NoError(t, err)
	_, err = m.AcquireRecording("r2")
	assert.True(t, errors.Is(err, pkg.ErrResource))

	releasePlay, err := m.AcquirePlayback("m1")
	require.NoError(t, err)
	_, err = m.AcquirePlayback("m2")
	assert.True(t, errors.Is(err, pkg.ErrPlayback))
	assert.Equal(t, "m1", m.PlaybackOwner())

	releaseCall, err := m.AcquireCall("c1")
	require.NoError(t, err)
	_, err = m.AcquireCall("c2")
	assert.True(t, errors.Is(err, pkg.ErrCallBusy))

	assert.True(t, m.RecordingActive())
	assert.True(t, m.CallActive())

	releaseRec()
	releasePlay()
	releaseCall()
	assert.False(t, m.RecordingActive())
	assert.False(t, m.CallActive())
	assert.Empty(t, m.PlaybackOwner())
}

func TestMediaSessionStaleReleaseKeepsNewOwner(t *testing.T) {
	m := NewMediaSessionManager()

	first, err := m.AcquireCall("c1")
	require.NoError(t, err)
	first()

	_, err = m.AcquireCall("c2")
	require.NoError(t, err)

	first() // tekrar çağrı no-op
	assert.True(t, m.CallActive())
}
