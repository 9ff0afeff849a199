package rtc

import (
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPionOfferAnswerRoundTrip(t *testing.T) {
	factory, err := NewPionFactory()
	require.NoError(t, err)

	caller, err := factory.NewPeerConnection(nil)
	require.NoError(t, err)
	defer caller.Close()

	callee, err := factory.NewPeerConnection(nil)
	require.NoError(t, err)
	defer callee.Close()

	_, err = caller.AddLocalAudio()
	require.NoError(t, err)

	offer, err := caller.CreateOffer()
	require.NoError(t, err)
	assert.Contains(t, offer, "opus")
	require.NoError(t, caller.SetLocalDescription(SDPTypeOffer, offer))

	require.NoError(t, callee.SetRemoteDescription(SDPTypeOffer, offer))
	answer, err := callee.CreateAnswer()
	require.NoError(t, err)
	require.NoError(t, callee.SetLocalDescription(SDPTypeAnswer, answer))

	require.NoError(t, caller.SetRemoteDescription(SDPTypeAnswer, answer))
}

func TestPionAudioTrackMuteDropsSamples(t *testing.T) {
	factory, err := NewPionFactory()
	require.NoError(t, err)

	pc, err := factory.NewPeerConnection(nil)
	require.NoError(t, err)
	defer pc.Close()

	track, err := pc.AddLocalAudio()
	require.NoError(t, err)
	assert.True(t, track.Enabled())

	track.SetEnabled(false)
	assert.False(t, track.Enabled())
	assert.NoError(t, track.WriteSample([]byte{0xf8, 0xff, 0xfe}, 20*time.Millisecond))

	track.SetEnabled(true)
	assert.True(t, track.Enabled())
}

func TestFromPionICEState(t *testing.T) {
	assert.Equal(t, ConnectionStateConnected, fromPionICEState(webrtc.ICEConnectionStateCompleted))
	assert.Equal(t, ConnectionStateDisconnected, fromPionICEState(webrtc.ICEConnectionStateDisconnected))
	assert.Equal(t, ConnectionStateFailed, fromPionICEState(webrtc.ICEConnectionStateFailed))
	assert.True(t, ConnectionStateFailed.IsDown())
	assert.False(t, ConnectionStateConnected.IsDown())
}
