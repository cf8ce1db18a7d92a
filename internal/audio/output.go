package audio

import (
	"sync/atomic"
	"time"

	"github.com/CarlEnstrom/Goodmornin/internal/hal"
	"github.com/CarlEnstrom/Goodmornin/internal/ring"
)

const (
	Rate11025 = 11025
	Rate16000 = 16000
	Rate22050 = 22050
)

// NormalizeSampleRate keeps the three supported rates and maps everything
// else to 16 kHz.
func NormalizeSampleRate(sr int) int {
	switch sr {
	case Rate11025, Rate16000, Rate22050:
		return sr
	default:
		return Rate16000
	}
}

func period(sr int) time.Duration {
	return time.Second / time.Duration(sr)
}

// Duty converts one sample into a duty register value of the given
// resolution: scale by volume/100, offset to mid-scale, clamp, quantize.
func Duty(s int16, volume uint32, bits int) uint32 {
	v := int32(s) * int32(volume) / 100
	u := v + 32768
	if u < 0 {
		u = 0
	}
	if u > 65535 {
		u = 65535
	}
	duty := uint32(u) >> (16 - bits)
	if top := MaxDuty(bits); duty > top {
		duty = top
	}
	return duty
}

func MaxDuty(bits int) uint32 { return 1<<bits - 1 }

func MidDuty(bits int) uint32 { return MaxDuty(bits) / 2 }

// Driver is the timer callback side of playback. Tick is the only method
// that runs in the timer context; it pops at most one sample and writes one
// register value.
type Driver struct {
	rb    *ring.Buffer
	pwm   hal.PWM
	timer hal.Timer
	bits  int

	armed  atomic.Bool
	volume atomic.Uint32
	rate   atomic.Int32
}

func NewDriver(rb *ring.Buffer, pwm hal.PWM, timer hal.Timer) *Driver {
	d := &Driver{
		rb:    rb,
		pwm:   pwm,
		timer: timer,
		bits:  pwm.Bits(),
	}
	d.rate.Store(Rate16000)
	return d
}

// Start writes silence and begins periodic ticks at the current rate.
func (d *Driver) Start() {
	d.pwm.SetDuty(MidDuty(d.bits))
	d.timer.Start(period(d.SampleRate()), d.Tick)
}

func (d *Driver) Close() {
	d.Disarm()
	d.timer.Stop()
}

// SetSampleRate reprograms the tick period and returns the rate applied.
func (d *Driver) SetSampleRate(sr int) int {
	sr = NormalizeSampleRate(sr)
	if int(d.rate.Swap(int32(sr))) != sr {
		d.timer.SetPeriod(period(sr))
	}
	return sr
}

func (d *Driver) SampleRate() int { return int(d.rate.Load()) }

func (d *Driver) Arm(volume uint8) {
	if volume > 100 {
		volume = 100
	}
	d.volume.Store(uint32(volume))
	d.armed.Store(true)
}

// Disarm stops consuming samples and parks the output at mid-scale.
func (d *Driver) Disarm() {
	d.armed.Store(false)
	d.pwm.SetDuty(MidDuty(d.bits))
}

func (d *Driver) Armed() bool { return d.armed.Load() }

func (d *Driver) Tick() {
	if !d.armed.Load() {
		d.pwm.SetDuty(MidDuty(d.bits))
		return
	}
	s, ok := d.rb.Pop()
	if !ok {
		d.pwm.SetDuty(MidDuty(d.bits))
		return
	}
	d.pwm.SetDuty(Duty(s, d.volume.Load(), d.bits))
}
