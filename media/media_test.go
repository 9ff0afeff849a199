package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWAVAndDuration(t *testing.T) {
	samples := make([]int16, 16000) // 1 sn @ 16 kHz
	data, err := EncodeWAV(samples, 16000)
	require.NoError(t, err)
	assert.Len(t, data, wavHeaderSize+len(samples)*2)
	assert.Equal(t, "RIFF", string(data[0:4]))

	d, err := WAVDuration(data)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)
}

func TestEncodeWAVRejectsBadInput(t *testing.T) {
	_, err := EncodeWAV(nil, 16000)
	assert.Error(t, err)
	_, err = EncodeWAV([]int16{1}, 0)
	assert.Error(t, err)

	_, err = WAVDuration([]byte("short"))
	assert.Error(t, err)
}

func TestWAVRecorderWritesValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voice.wav")
	rec := NewWAVRecorder(nil)
	defer rec.Release()

	require.NoError(t, rec.Start(path, DefaultRecorderConfig))
	time.Sleep(120 * time.Millisecond)
	require.NoError(t, rec.Stop())
	rec.Release()
	rec.Release() // idempotent

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	d, err := WAVDuration(data)
	require.NoError(t, err)
	assert.Greater(t, d, time.Duration(0))
	assert.Equal(t, "audio/wav", rec.ContentType())
}

func TestWAVRecorderStartFailsOnBadPath(t *testing.T) {
	rec := NewWAVRecorder(nil)
	err := rec.Start(filepath.Join(t.TempDir(), "missing", "dir", "x.wav"), DefaultRecorderConfig)
	assert.Error(t, err)
	rec.Release()
}

type failingSource struct{}

func (failingSource) ReadSamples([]int16) (int, error) { return 0, errors.New("mic unplugged") }

func TestWAVRecorderStopReportsSourceError(t *testing.T) {
	rec := NewWAVRecorder(failingSource{})
	defer rec.Release()

	require.NoError(t, rec.Start(filepath.Join(t.TempDir(), "x.wav"), DefaultRecorderConfig))
	time.Sleep(60 * time.Millisecond)
	err := rec.Stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mic unplugged")
}

func TestClockPlayerUsesWAVDuration(t *testing.T) {
	data, err := EncodeWAV(make([]int16, 800), 8000) // 100 ms
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	p := NewClockPlayer()
	require.NoError(t, p.Prepare(path, 10*time.Second))
	require.NoError(t, p.Start())

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("player did not finish")
	}
	assert.Equal(t, 100*time.Millisecond, p.Position())
	p.Release()
	p.Release()
	assert.Zero(t, p.Position())
}

func TestClockPlayerFallsBackToHint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.ogg")
	require.NoError(t, os.WriteFile(path, []byte("OggS-not-really"), 0o600))

	p := NewClockPlayer()
	require.NoError(t, p.Prepare(path, 3*time.Second))
	assert.Equal(t, 3*time.Second, p.duration)

	empty := filepath.Join(t.TempDir(), "empty.ogg")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	assert.Error(t, NewClockPlayer().Prepare(empty, time.Second))
	assert.Error(t, NewClockPlayer().Prepare(path, 0))
}

func TestClockPlayerReleaseBeforeDone(t *testing.T) {
	data, err := EncodeWAV(make([]int16, 8000), 8000) // 1 sn
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	p := NewClockPlayer()
	require.NoError(t, p.Prepare(path, 0))
	require.NoError(t, p.Start())
	p.Release()

	select {
	case <-p.Done():
		t.Fatal("released player must not signal completion")
	case <-time.After(1200 * time.Millisecond):
	}
}

func TestStaticPermission(t *testing.T) {
	p := NewStaticPermission(false, true)
	assert.False(t, p.Granted())
	ok, err := p.Request(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, p.Granted())

	deny := NewStaticPermission(false, false)
	ok, err = deny.Request(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = deny.Request(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPromptPermissionRemembersGrant(t *testing.T) {
	asked := 0
	p := &PromptPermission{Ask: func(context.Context) (bool, error) {
		asked++
		return asked > 1, nil
	}}

	ok, err := p.Request(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, p.Granted())

	ok, err = p.Request(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, p.Granted())
}
