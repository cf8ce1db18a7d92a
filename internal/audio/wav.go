package audio

import (
	"bytes"
	"encoding/binary"

	"github.com/CarlEnstrom/Goodmornin/internal/ring"
)

const (
	wavHeaderSize  = 44
	wavChunkFrames = 256
)

type WAVHeader struct {
	Format     uint16
	Channels   int
	SampleRate int
	Bits       int
	DataSize   uint32
}

// ParseWAVHeader validates the canonical 44-byte header. Only 16-bit PCM,
// mono or stereo, is accepted.
func ParseWAVHeader(h []byte) (WAVHeader, error) {
	var hdr WAVHeader
	if len(h) < wavHeaderSize {
		return hdr, ErrWAVHeaderRead
	}
	if !bytes.Equal(h[0:4], []byte("RIFF")) {
		return hdr, ErrWAVNotRIFF
	}
	if !bytes.Equal(h[8:12], []byte("WAVE")) {
		return hdr, ErrWAVNotWAVE
	}
	if !bytes.Equal(h[12:16], []byte("fmt ")) {
		return hdr, ErrWAVNoFmt
	}

	le := binary.LittleEndian
	hdr.Format = le.Uint16(h[20:22])
	hdr.Channels = int(le.Uint16(h[22:24]))
	hdr.SampleRate = int(le.Uint32(h[24:28]))
	hdr.Bits = int(le.Uint16(h[34:36]))

	if hdr.Format != 1 {
		return hdr, ErrWAVNotPCM
	}
	if hdr.Bits != 16 {
		return hdr, ErrWAVBitsNot16
	}
	if hdr.Channels < 1 || hdr.Channels > 2 {
		return hdr, ErrWAVChannelsBad
	}
	if !bytes.Equal(h[36:40], []byte("data")) {
		return hdr, ErrWAVNoData
	}
	hdr.DataSize = le.Uint32(h[40:44])
	return hdr, nil
}

// EncodeWAVHeader builds a canonical 16-bit PCM header.
func EncodeWAVHeader(sampleRate, channels int, dataSize uint32) []byte {
	le := binary.LittleEndian
	h := make([]byte, wavHeaderSize)
	copy(h[0:4], "RIFF")
	le.PutUint32(h[4:8], 36+dataSize)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	le.PutUint32(h[16:20], 16)
	le.PutUint16(h[20:22], 1)
	le.PutUint16(h[22:24], uint16(channels))
	le.PutUint32(h[24:28], uint32(sampleRate))
	le.PutUint32(h[28:32], uint32(sampleRate*channels*2))
	le.PutUint16(h[32:34], uint16(channels*2))
	le.PutUint16(h[34:36], 16)
	copy(h[36:40], "data")
	le.PutUint32(h[40:44], dataSize)
	return h
}

type wavDecoder struct {
	src       byteSource
	channels  int
	remaining uint32
	raw       [wavChunkFrames * 4]byte
	carry     int // bytes of an incomplete frame kept at raw[0:carry]
}

func newWAVDecoder(src byteSource, hdr WAVHeader) *wavDecoder {
	return &wavDecoder{
		src:       src,
		channels:  hdr.Channels,
		remaining: hdr.DataSize,
	}
}

func (d *wavDecoder) fill(rb *ring.Buffer) (progress, ended bool) {
	if d.remaining == 0 {
		return false, true
	}

	frameBytes := d.channels * 2
	frames := rb.Cap() - rb.Len()
	if frames > wavChunkFrames {
		frames = wavChunkFrames
	}
	if frames <= 0 {
		return false, false
	}

	want := frames*frameBytes - d.carry
	if uint32(want) > d.remaining {
		want = int(d.remaining)
	}

	n, err := d.src.ReadAvailable(d.raw[d.carry : d.carry+want])
	if n == 0 {
		return false, err != nil
	}
	d.remaining -= uint32(n)

	buf := d.raw[:d.carry+n]
	whole := len(buf) / frameBytes
	le := binary.LittleEndian
	for i := 0; i < whole; i++ {
		off := i * frameBytes
		s := int16(le.Uint16(buf[off:]))
		if d.channels == 2 {
			r := int16(le.Uint16(buf[off+2:]))
			s = int16((int32(s) + int32(r)) / 2)
		}
		rb.Push(s)
	}

	d.carry = copy(d.raw[:], buf[whole*frameBytes:])
	return true, false
}
