// Package models, sesli mesaj (voice message) ile ilgili struct tanımlarını içerir.
//
// Kayıt ve oynatma iki ayrı state makinesidir; ikisi de ephemeral'dır.
// Her birinin izin verilen geçişleri aşağıdaki tablolarda tanımlıdır;
// tabloda olmayan geçiş ErrInvalidState ile reddedilir.
package models

import "fmt"

// RecordState, kayıt + upload pipeline'ının durumu.
type RecordState string

const (
	RecordStateIdle              RecordState = "idle"
	RecordStateRecording         RecordState = "recording"
	RecordStateUploadingMetadata RecordState = "uploading_metadata"
	RecordStateUploadingBytes    RecordState = "uploading_bytes"
	RecordStateSent              RecordState = "sent"
	RecordStateFailed            RecordState = "failed" // "Sent-failed" dahil tüm başarısız sonlar
)

var recordTransitions = map[RecordState][]RecordState{
	RecordStateIdle:              {RecordStateRecording},
	RecordStateRecording:         {RecordStateUploadingMetadata, RecordStateFailed, RecordStateIdle},
	RecordStateUploadingMetadata: {RecordStateUploadingBytes, RecordStateFailed},
	RecordStateUploadingBytes:    {RecordStateSent, RecordStateFailed},
	// Sent/Failed sonrası yeni bir kayıt başlatılabilir.
	RecordStateSent:   {RecordStateRecording, RecordStateIdle},
	RecordStateFailed: {RecordStateRecording, RecordStateIdle},
}

// CanTransition, from → to geçişinin tabloda olup olmadığını döner.
func (s RecordState) CanTransition(to RecordState) bool {
	for _, allowed := range recordTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsBusy, kayıt ya da upload'un devam ettiğini döner.
func (s RecordState) IsBusy() bool {
	switch s {
	case RecordStateRecording, RecordStateUploadingMetadata, RecordStateUploadingBytes:
		return true
	}
	return false
}

// PlaybackState, sesli mesaj oynatma durumu.
type PlaybackState string

const (
	PlaybackStateIdle        PlaybackState = "idle"
	PlaybackStateDownloading PlaybackState = "downloading"
	PlaybackStatePlaying     PlaybackState = "playing"
	PlaybackStateStopped     PlaybackState = "stopped"
)

var playbackTransitions = map[PlaybackState][]PlaybackState{
	PlaybackStateIdle:        {PlaybackStateDownloading},
	PlaybackStateDownloading: {PlaybackStatePlaying, PlaybackStateStopped},
	PlaybackStatePlaying:     {PlaybackStateStopped},
	PlaybackStateStopped:     {PlaybackStateDownloading, PlaybackStateIdle},
}

// CanTransition, from → to geçişinin tabloda olup olmadığını döner.
func (s PlaybackState) CanTransition(to PlaybackState) bool {
	for _, allowed := range playbackTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateRecordTransition, hata mesajlı geçiş kontrolü.
func ValidateRecordTransition(from, to RecordState) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("record %s -> %s not allowed", from, to)
	}
	return nil
}

// ValidatePlaybackTransition, hata mesajlı geçiş kontrolü.
func ValidatePlaybackTransition(from, to PlaybackState) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("playback %s -> %s not allowed", from, to)
	}
	return nil
}

// VoiceUploadRequest, POST /api/voice/upload gövdesi (faz 1: metadata).
type VoiceUploadRequest struct {
	Channel  string `json:"channel"`
	Duration int    `json:"duration"`
}

// VoiceUploadResponse, faz 1 yanıtı.
type VoiceUploadResponse struct {
	VoiceID string `json:"voiceId"`
}

// VoiceMessageText, sesli mesajla birlikte gönderilen sabit metin.
const VoiceMessageText = "Voice message"
