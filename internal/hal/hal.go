// Package hal is the board boundary: the duty register feeding the audio
// filter, the button inputs and the periodic sample timer.
package hal

import (
	"sync"
	"sync/atomic"
	"time"
)

// PWM is a single duty-cycle output channel.
type PWM interface {
	SetDuty(duty uint32)
	Bits() int
}

// GPIO reads digital input levels. Inputs are wired with pull-ups, so true
// means released.
type GPIO interface {
	Read(pin int) bool
}

// Timer invokes a callback periodically. The callback runs in its own
// context and must not block.
type Timer interface {
	Start(period time.Duration, fn func())
	SetPeriod(period time.Duration)
	Stop()
}

// MemPWM records the last written duty value. Used when no board is attached.
type MemPWM struct {
	bits   int
	duty   atomic.Uint32
	writes atomic.Uint64
}

func NewMemPWM(bits int) *MemPWM {
	if bits <= 0 || bits > 16 {
		bits = 8
	}
	return &MemPWM{bits: bits}
}

func (p *MemPWM) SetDuty(duty uint32) {
	p.duty.Store(duty)
	p.writes.Add(1)
}

func (p *MemPWM) Bits() int      { return p.bits }
func (p *MemPWM) Duty() uint32   { return p.duty.Load() }
func (p *MemPWM) Writes() uint64 { return p.writes.Load() }

// MemGPIO holds input levels set by software; unknown pins read as released.
type MemGPIO struct {
	mu     sync.Mutex
	levels map[int]bool
}

func NewMemGPIO() *MemGPIO {
	return &MemGPIO{levels: make(map[int]bool)}
}

func (g *MemGPIO) Set(pin int, level bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.levels[pin] = level
}

func (g *MemGPIO) Read(pin int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	level, ok := g.levels[pin]
	if !ok {
		return true
	}
	return level
}

// TickerTimer drives the callback from a goroutine and a time.Ticker.
type TickerTimer struct {
	mu     sync.Mutex
	ticker *time.Ticker
	stop   chan struct{}
	done   chan struct{}
}

func NewTickerTimer() *TickerTimer {
	return &TickerTimer{}
}

func (t *TickerTimer) Start(period time.Duration, fn func()) {
	t.Stop()

	t.mu.Lock()
	defer t.mu.Unlock()

	ticker := time.NewTicker(period)
	stop := make(chan struct{})
	done := make(chan struct{})
	t.ticker, t.stop, t.done = ticker, stop, done

	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

func (t *TickerTimer) SetPeriod(period time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ticker != nil {
		t.ticker.Reset(period)
	}
}

func (t *TickerTimer) Stop() {
	t.mu.Lock()
	ticker, stop, done := t.ticker, t.stop, t.done
	t.ticker, t.stop, t.done = nil, nil, nil
	t.mu.Unlock()

	if ticker == nil {
		return
	}
	ticker.Stop()
	close(stop)
	<-done
}
