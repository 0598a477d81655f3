// Package link is the host side of the coupler serial protocol.
package link

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/inconshreveable/log15"

	"gocoupler/config"
	"gocoupler/host/serial"
	"gocoupler/protocol"
)

var (
	// ErrTimeout is returned when the device does not acknowledge in time
	ErrTimeout = errors.New("link: timed out waiting for device")

	// ErrClosed is returned after Close or once the port fails
	ErrClosed = errors.New("link: closed")

	// ErrFrequencyMode is returned by SendMatrix while the device measures
	// frequency; the firmware discards matrix bytes in that mode.
	ErrFrequencyMode = errors.New("link: device is in frequency mode, stop it first")
)

// Options tune a Link
type Options struct {
	AckTimeout    time.Duration
	ReadingBuffer int
	Logger        log.Logger
}

// Reading is one frequency report
type Reading struct {
	Hz float64   `json:"hz"`
	At time.Time `json:"ts"`
}

// Applied is the device's confirmation of a matrix
type Applied struct {
	Matrix [][]bool  `json:"matrix"`
	Echo   [][]bool  `json:"echo"`
	At     time.Time `json:"ts"`
}

// Link owns a serial port connected to the firmware. Requests are
// serialised; frequency reports stream independently through Readings.
type Link struct {
	port serial.Port
	opts Options
	log  log.Logger

	reqMu    sync.Mutex
	lines    chan string
	readings chan Reading
	latest   atomic.Pointer[Reading]
	dropped  atomic.Uint64

	frequency atomic.Bool

	done      chan struct{}
	readerEnd chan struct{}
	readErr   error
	closeOnce sync.Once
}

// Open starts reading from port
func Open(port serial.Port, opts Options) *Link {
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = config.DefaultAckTimeout
	}
	if opts.ReadingBuffer <= 0 {
		opts.ReadingBuffer = 64
	}
	if opts.Logger == nil {
		opts.Logger = log.New("pkg", "link")
	}

	l := &Link{
		port:      port,
		opts:      opts,
		log:       opts.Logger,
		lines:     make(chan string, 64),
		readings:  make(chan Reading, opts.ReadingBuffer),
		done:      make(chan struct{}),
		readerEnd: make(chan struct{}),
	}
	if err := port.Flush(); err != nil {
		l.log.Debug("Input flush failed", "error", err)
	}
	go l.readLoop()
	return l
}

func (l *Link) readLoop() {
	defer close(l.readerEnd)
	defer close(l.readings)

	r := bufio.NewReader(l.port)
	var partial strings.Builder
	for {
		chunk, err := r.ReadString('\n')
		partial.WriteString(chunk)
		if err == nil {
			l.dispatch(strings.TrimRight(partial.String(), "\r\n"))
			partial.Reset()
			continue
		}

		select {
		case <-l.done:
			return
		default:
		}
		if errors.Is(err, io.EOF) {
			// Native ports report EOF on read timeout
			time.Sleep(10 * time.Millisecond)
			continue
		}
		l.readErr = err
		l.log.Error("Serial read failed", "error", err)
		return
	}
}

func (l *Link) dispatch(line string) {
	if protocol.IsFrequencyReport(line) {
		hz, err := protocol.ParseFrequencyReport(line)
		if err != nil {
			l.log.Debug("Bad frequency report", "line", line)
			return
		}
		rd := Reading{Hz: hz, At: time.Now()}
		l.latest.Store(&rd)
		select {
		case l.readings <- rd:
		default:
			l.dropped.Add(1)
		}
		return
	}

	select {
	case l.lines <- line:
	default:
		l.log.Debug("Dropping unsolicited line", "line", line)
	}
}

// Readings streams parsed frequency reports. Reports arriving while the
// channel is full are dropped and counted. The channel closes when the
// link shuts down.
func (l *Link) Readings() <-chan Reading {
	return l.readings
}

// Latest returns the most recent reading
func (l *Link) Latest() (Reading, bool) {
	rd := l.latest.Load()
	if rd == nil {
		return Reading{}, false
	}
	return *rd, true
}

// Dropped returns how many readings were discarded for slow consumers
func (l *Link) Dropped() uint64 {
	return l.dropped.Load()
}

// FrequencyMode reports whether the device was last switched to FREQUENCY
func (l *Link) FrequencyMode() bool {
	return l.frequency.Load()
}

// SendMatrix writes m and waits for the device's ACK. The rows the device
// echoes in its diagnostic dump are returned alongside.
func (l *Link) SendMatrix(ctx context.Context, m [][]bool) (*Applied, error) {
	text, err := protocol.EncodeMatrix(m)
	if err != nil {
		return nil, err
	}

	l.reqMu.Lock()
	defer l.reqMu.Unlock()

	if l.frequency.Load() {
		return nil, ErrFrequencyMode
	}

	l.drainLines()
	if err := l.write(text); err != nil {
		return nil, err
	}
	l.log.Debug("Matrix sent", "text", string(text))

	ctx, cancel := context.WithTimeout(ctx, l.opts.AckTimeout)
	defer cancel()

	applied := &Applied{Matrix: m}
	ack := strings.TrimRight(protocol.MatrixAck, "\n")
	for {
		line, err := l.nextLine(ctx)
		if err != nil {
			return nil, err
		}
		if line == ack {
			applied.At = time.Now()
			return applied, nil
		}
		if line == "" {
			continue
		}
		row, err := protocol.ParseDumpRow(line)
		if err != nil {
			l.log.Debug("Ignoring line while waiting for ACK", "line", line)
			continue
		}
		applied.Echo = append(applied.Echo, row)
	}
}

// StartFrequency switches the device to FREQUENCY mode
func (l *Link) StartFrequency(ctx context.Context) error {
	if l.frequency.Load() {
		// The firmware ignores a repeated START without acknowledging
		return nil
	}
	if err := l.command(ctx, protocol.StartFrequency, protocol.AckStartFrequency); err != nil {
		return err
	}
	l.frequency.Store(true)
	return nil
}

// StopFrequency returns the device to MATRIX mode
func (l *Link) StopFrequency(ctx context.Context) error {
	if err := l.command(ctx, protocol.StopFrequency, protocol.AckStopFrequency); err != nil {
		return err
	}
	l.frequency.Store(false)
	return nil
}

func (l *Link) command(ctx context.Context, cmd byte, ack string) error {
	l.reqMu.Lock()
	defer l.reqMu.Unlock()

	l.drainLines()
	if err := l.write([]byte{cmd}); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, l.opts.AckTimeout)
	defer cancel()

	want := strings.TrimRight(ack, "\r\n")
	for {
		line, err := l.nextLine(ctx)
		if err != nil {
			return err
		}
		if line == want {
			l.log.Debug("Mode acknowledged", "ack", line)
			return nil
		}
	}
}

func (l *Link) write(b []byte) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	if _, err := l.port.Write(b); err != nil {
		return fmt.Errorf("link: write: %w", err)
	}
	return nil
}

func (l *Link) nextLine(ctx context.Context) (string, error) {
	select {
	case line := <-l.lines:
		return line, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", ctx.Err()
	case <-l.readerEnd:
		if l.readErr != nil {
			return "", fmt.Errorf("%w: %v", ErrClosed, l.readErr)
		}
		return "", ErrClosed
	}
}

func (l *Link) drainLines() {
	for {
		select {
		case <-l.lines:
		default:
			return
		}
	}
}

// Close leaves FREQUENCY mode if needed and closes the port
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.frequency.Load() {
			if _, werr := l.port.Write([]byte{protocol.StopFrequency}); werr != nil {
				l.log.Debug("Stop on close failed", "error", werr)
			}
		}
		close(l.done)
		err = l.port.Close()
		<-l.readerEnd
	})
	return err
}
