package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/CarlEnstrom/Goodmornin/internal/hal"
	"github.com/CarlEnstrom/Goodmornin/internal/ring"
)

type fakeTimer struct {
	fn      func()
	periods []time.Duration
	stopped bool
}

func (t *fakeTimer) Start(p time.Duration, fn func()) {
	t.fn = fn
	t.periods = append(t.periods, p)
}

func (t *fakeTimer) SetPeriod(p time.Duration) { t.periods = append(t.periods, p) }

func (t *fakeTimer) Stop() { t.stopped = true }

func (t *fakeTimer) last() time.Duration {
	if len(t.periods) == 0 {
		return 0
	}
	return t.periods[len(t.periods)-1]
}

// httpFetcher is a minimal net/http Fetcher for tests.
type httpFetcher struct{}

func (httpFetcher) Get(ctx context.Context, rawURL string) (int, io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, resp.Body, nil
}

type testRig struct {
	fs     afero.Fs
	rb     *ring.Buffer
	pwm    *hal.MemPWM
	timer  *fakeTimer
	driver *Driver
	player *Player
}

func newRig(t *testing.T) *testRig {
	t.Helper()
	fs := afero.NewMemMapFs()
	rb := ring.New(ring.DefaultCapacity)
	pwm := hal.NewMemPWM(8)
	timer := &fakeTimer{}
	d := NewDriver(rb, pwm, timer)
	d.Start()
	p := NewPlayer(fs, httpFetcher{}, rb, d, zap.NewNop(), Options{StreamTimeout: time.Second})
	return &testRig{fs: fs, rb: rb, pwm: pwm, timer: timer, driver: d, player: p}
}

// wavBytes builds a 16-bit PCM file; frames are interleaved samples.
func wavBytes(sampleRate, channels int, samples ...int16) []byte {
	var buf bytes.Buffer
	buf.Write(EncodeWAVHeader(sampleRate, channels, uint32(len(samples)*2)))
	for _, s := range samples {
		binary.Write(&buf, binary.LittleEndian, s)
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, fs afero.Fs, name string, data []byte) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, name, data, 0o644))
}

func drain(rb *ring.Buffer) []int16 {
	var out []int16
	for {
		s, ok := rb.Pop()
		if !ok {
			return out
		}
		out = append(out, s)
	}
}
