package audio

import "github.com/CarlEnstrom/Goodmornin/internal/ring"

const mp3StagingSize = 2048

type FrameInfo struct {
	FrameBytes  int
	Channels    int
	Hz          int
	Layer       int
	BitrateKbps int
}

// FrameDecoder turns staged MPEG bytes into mono PCM. It reports how many
// input bytes it consumed and how many samples it wrote into pcm. Returning
// zero consumed bytes means it needs more input.
type FrameDecoder interface {
	DecodeFrame(in []byte, pcm []int16) (consumed, samples int, info FrameInfo)
}

// PlaceholderDecoder stands in until a real MPEG decoder is linked. It
// never consumes input and never emits samples.
type PlaceholderDecoder struct{}

func (PlaceholderDecoder) DecodeFrame(in []byte, pcm []int16) (int, int, FrameInfo) {
	return 0, 0, FrameInfo{}
}

type mp3Decoder struct {
	src      byteSource
	dec      FrameDecoder
	setRate  func(int) int
	staging  [mp3StagingSize]byte
	filled   int
	srcEnded bool
	pcm      [1152 * 2]int16
}

func newMP3Decoder(src byteSource, dec FrameDecoder, setRate func(int) int) *mp3Decoder {
	return &mp3Decoder{src: src, dec: dec, setRate: setRate}
}

func (d *mp3Decoder) fill(rb *ring.Buffer) (progress, ended bool) {
	if d.filled < len(d.staging) && !d.srcEnded {
		n, err := d.src.ReadAvailable(d.staging[d.filled:])
		d.filled += n
		if n == 0 && err != nil {
			d.srcEnded = true
		}
	}
	if d.filled == 0 {
		return false, d.srcEnded
	}

	consumed, samples, info := d.dec.DecodeFrame(d.staging[:d.filled], d.pcm[:])
	if info.Hz > 0 {
		d.setRate(info.Hz)
	}
	for i := 0; i < samples; i++ {
		if !rb.Push(d.pcm[i]) {
			break
		}
	}
	if consumed > 0 {
		d.filled = copy(d.staging[:], d.staging[consumed:d.filled])
		return true, false
	}

	// Nothing decodable: a full staging buffer or an exhausted source can
	// never make progress.
	if d.srcEnded || d.filled == len(d.staging) {
		return false, true
	}
	return false, false
}
