package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranscriptCloneIsIndependent(t *testing.T) {
	orig := Transcript{
		{ID: "m1", From: "alice", Text: "hi", Timestamp: 1},
		{ID: "m2", From: "bob", Timestamp: 2, Voice: &VoiceAttachment{Filename: "a.ogg", DurationSeconds: 4, DownloadRef: "/f/a.ogg"}},
	}

	clone := orig.Clone()
	assert.True(t, clone.Equal(orig))

	clone[0].Text = "changed"
	clone[1].Voice.DurationSeconds = 99
	clone[1].Voice.DownloadRef = "/f/other.ogg"

	assert.Equal(t, "hi", orig[0].Text)
	assert.Equal(t, 4, orig[1].Voice.DurationSeconds)
	assert.Equal(t, "/f/a.ogg", orig[1].Voice.DownloadRef)
	assert.NotSame(t, orig[1].Voice, clone[1].Voice)

	assert.Nil(t, Transcript(nil).Clone())
}
