package audio

import (
	"context"
	"errors"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/CarlEnstrom/Goodmornin/internal/ring"
)

// Fetcher opens a streaming GET. The caller owns body and must close it.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (status int, body io.ReadCloser, err error)
}

type decoder interface {
	// fill decodes at most one chunk into rb. progress is false when nothing
	// more can be done this iteration; ended reports the input is exhausted.
	fill(rb *ring.Buffer) (progress, ended bool)
}

type session struct {
	src        byteSource
	dec        decoder
	kind       string
	inputEnded bool
}

type Options struct {
	StreamTimeout time.Duration
	NewMP3Decoder func() FrameDecoder
}

// Player owns the single playback session. Every method runs on the
// cooperative loop; only the ring buffer and the driver's atomics are shared
// with the timer callback.
type Player struct {
	fs      afero.Fs
	fetcher Fetcher
	rb      *ring.Buffer
	out     *Driver
	logger  *zap.Logger
	opts    Options

	sess    *session
	lastErr string
}

func NewPlayer(fs afero.Fs, fetcher Fetcher, rb *ring.Buffer, out *Driver, logger *zap.Logger, opts Options) *Player {
	if opts.StreamTimeout <= 0 {
		opts.StreamTimeout = 3 * time.Second
	}
	if opts.NewMP3Decoder == nil {
		opts.NewMP3Decoder = func() FrameDecoder { return PlaceholderDecoder{} }
	}
	return &Player{
		fs:      fs,
		fetcher: fetcher,
		rb:      rb,
		out:     out,
		logger:  logger,
		opts:    opts,
	}
}

func (p *Player) IsPlaying() bool { return p.sess != nil && p.out.Armed() }

func (p *Player) LastError() string { return p.lastErr }

// Kind describes the active session source, e.g. "wav_file" or "mp3_url".
func (p *Player) Kind() string {
	if p.sess == nil {
		return ""
	}
	return p.sess.kind
}

func (p *Player) fail(err error) error {
	p.lastErr = err.Error()
	p.logger.Warn("Audio playback failed", zap.String("error", p.lastErr))
	return err
}

// PlayLocal starts playing a file from the device filesystem.
func (p *Player) PlayLocal(name string, volume uint8) error {
	p.Stop()

	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	f, err := p.fs.Open(name)
	if err != nil {
		return p.fail(ErrFileNotFound)
	}
	src := newFileSource(f)

	switch strings.ToLower(path.Ext(name)) {
	case ".mp3":
		p.begin(src, newMP3Decoder(src, p.opts.NewMP3Decoder(), p.out.SetSampleRate), "mp3_file", volume)
		return nil
	default:
		dec, err := p.openWAV(src)
		if err != nil {
			src.Close()
			return p.fail(err)
		}
		p.begin(src, dec, "wav_file", volume)
		return nil
	}
}

// PlayURL starts streaming over HTTP(S). Dialing, the response headers and
// the WAV header read share one stream timeout; everything after that is
// polled by Refill.
func (p *Player) PlayURL(ctx context.Context, rawURL string, volume uint8) (err error) {
	p.Stop()

	u, perr := url.Parse(rawURL)
	if perr != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return p.fail(ErrHTTPBegin)
	}

	ctx, cancel := context.WithCancel(ctx)
	budget := time.AfterFunc(p.opts.StreamTimeout, cancel)
	defer func() {
		budget.Stop()
		if err != nil {
			cancel()
		}
	}()

	status, body, gerr := p.fetcher.Get(ctx, rawURL)
	if gerr != nil {
		return p.fail(ErrHTTPGet)
	}
	if status != 200 {
		if body != nil {
			body.Close()
		}
		return p.fail(&StatusError{Code: status})
	}
	if body == nil {
		return p.fail(ErrHTTPNoStream)
	}
	src := newStream(body, p.opts.StreamTimeout)
	src.cancel = cancel

	switch strings.ToLower(path.Ext(u.Path)) {
	case ".wav":
		dec, werr := p.openWAV(src)
		if werr != nil {
			src.Close()
			return p.fail(werr)
		}
		p.begin(src, dec, "wav_url", volume)
	case ".mp3":
		p.begin(src, newMP3Decoder(src, p.opts.NewMP3Decoder(), p.out.SetSampleRate), "mp3_url", volume)
	default:
		dec, werr := p.openWAV(src)
		if werr != nil {
			src.Close()
			return p.fail(ErrUnknownURLFormat)
		}
		p.begin(src, dec, "wav_url_guess", volume)
	}
	return nil
}

func (p *Player) openWAV(src byteSource) (*wavDecoder, error) {
	h := make([]byte, wavHeaderSize)
	if err := src.ReadFull(h); err != nil {
		return nil, ErrWAVHeaderRead
	}
	hdr, err := ParseWAVHeader(h)
	if err != nil {
		return nil, err
	}
	p.out.SetSampleRate(hdr.SampleRate)
	return newWAVDecoder(src, hdr), nil
}

func (p *Player) begin(src byteSource, dec decoder, kind string, volume uint8) {
	p.rb.Reset()
	p.sess = &session{src: src, dec: dec, kind: kind}
	p.lastErr = ""
	p.out.Arm(volume)
	p.logger.Info("Audio playback started",
		zap.String("kind", kind),
		zap.Int("sample_rate", p.out.SampleRate()),
		zap.Uint8("volume", volume),
	)
}

// Refill tops the ring buffer up to half capacity. It never waits on the
// source: a short read simply ends this iteration.
func (p *Player) Refill() {
	s := p.sess
	if s == nil {
		return
	}

	half := p.rb.Cap() / 2
	for p.rb.Len() < half {
		progress, ended := s.dec.fill(p.rb)
		if ended {
			s.inputEnded = true
		}
		if !progress {
			break
		}
	}

	if s.inputEnded && p.rb.Len() == 0 {
		p.logger.Info("Audio playback finished", zap.String("kind", s.kind))
		p.Stop()
	}
}

// Stop ends the session, releases its handles and silences the output.
// Calling it with no session is a no-op apart from re-silencing.
func (p *Player) Stop() {
	p.out.Disarm()
	if p.sess != nil {
		if err := p.sess.src.Close(); err != nil && !errors.Is(err, io.EOF) {
			p.logger.Debug("Audio source close", zap.Error(err))
		}
		p.sess = nil
	}
	p.rb.Reset()
}
