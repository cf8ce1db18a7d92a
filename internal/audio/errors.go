package audio

import (
	"errors"
	"fmt"
)

// Error is a playback failure. Its text is the short cause tag reported as
// the alarm's last audio error.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrFileNotFound     Error = "file_not_found"
	ErrNoSource         Error = "no_audio_source"
	ErrHTTPBegin        Error = "http_begin_failed"
	ErrHTTPGet          Error = "http_get_failed"
	ErrHTTPNoStream     Error = "http_no_stream"
	ErrUnknownURLFormat Error = "unknown_url_format"

	ErrWAVHeaderRead  Error = "wav_header_read_fail"
	ErrWAVNotRIFF     Error = "wav_not_riff"
	ErrWAVNotWAVE     Error = "wav_not_wave"
	ErrWAVNoFmt       Error = "wav_no_fmt"
	ErrWAVNotPCM      Error = "wav_not_pcm"
	ErrWAVBitsNot16   Error = "wav_bits_not_16"
	ErrWAVChannelsBad Error = "wav_channels_bad"
	ErrWAVNoData      Error = "wav_no_data"
)

// ErrHTTPStatus matches any StatusError via errors.Is.
var ErrHTTPStatus = errors.New("http_status")

// StatusError reports a non-200 response to a stream request.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("http_status_%d", e.Code) }

func (e *StatusError) Is(target error) bool { return target == ErrHTTPStatus }
