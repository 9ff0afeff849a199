package media

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// wavHeaderSize, kanonik PCM WAV başlığının boyutu.
const wavHeaderSize = 44

// WAVHeader, kanonik 44 byte'lık PCM WAV başlığı.
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // dosya boyutu - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // PCM için 16
	AudioFormat   uint16  // 1 = PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // ses verisinin byte sayısı
}

// newWAVHeader, 16-bit PCM için başlık oluşturur.
func newWAVHeader(sampleRate, channels int, dataSize uint32) WAVHeader {
	const bitsPerSample = 16
	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(channels) * bitsPerSample / 8,
		BlockAlign:    uint16(channels) * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// writeWAVHeader, başlığı w'nin mevcut konumuna yazar.
func writeWAVHeader(w io.Writer, h WAVHeader) error {
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("failed to write WAV header: %w", err)
	}
	return nil
}

// readWAVHeader, başlığı okur ve doğrular.
func readWAVHeader(r io.Reader) (WAVHeader, error) {
	var h WAVHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return WAVHeader{}, fmt.Errorf("failed to read WAV header: %w", err)
	}
	if string(h.ChunkID[:]) != "RIFF" {
		return WAVHeader{}, fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(h.Format[:]) != "WAVE" {
		return WAVHeader{}, fmt.Errorf("invalid WAV file: missing WAVE format")
	}
	if string(h.Subchunk2ID[:]) != "data" {
		return WAVHeader{}, fmt.Errorf("invalid WAV file: missing data chunk")
	}
	if h.AudioFormat != 1 {
		return WAVHeader{}, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", h.AudioFormat)
	}
	return h, nil
}

// Duration, başlıktaki veri boyutundan süreyi hesaplar.
func (h WAVHeader) Duration() time.Duration {
	if h.ByteRate == 0 {
		return 0
	}
	return time.Duration(float64(h.Subchunk2Size) / float64(h.ByteRate) * float64(time.Second))
}

// EncodeWAV, mono PCM-16 örneklerini bellek içi WAV'a çevirir.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(samples)*2))
	if err := writeWAVHeader(buf, newWAVHeader(sampleRate, 1, uint32(len(samples)*2))); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	return buf.Bytes(), nil
}

// WAVDuration, bellek içi WAV verisinin süresini döner.
func WAVDuration(data []byte) (time.Duration, error) {
	if len(data) < wavHeaderSize {
		return 0, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", wavHeaderSize, len(data))
	}
	h, err := readWAVHeader(bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	return h.Duration(), nil
}
