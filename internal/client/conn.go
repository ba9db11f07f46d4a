// Package client runs one task per world connection. The task owns the
// socket, the telnet engine and (when negotiated) the MCCP inflater; it
// talks to the event loop only through its bounded event and send
// channels, and is cancelled by Close.
package client

import (
	"bytes"
	"compress/zlib"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/anicolao/gofugue/internal/telnet"
)

// State is the connection lifecycle. Any state may move to StateClosed on
// error.
type State int

const (
	StateResolving State = iota
	StateConnecting
	StateTLSHandshaking
	StateNegotiating
	StateEstablished
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateConnecting:
		return "connecting"
	case StateTLSHandshaking:
		return "tls handshake"
	case StateNegotiating:
		return "negotiating"
	case StateEstablished:
		return "established"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Event is one inbound notification from the connection task.
type Event interface{ connEvent() }

// LineEvent is a complete server line, CR/LF stripped, ANSI intact.
type LineEvent struct{ Text string }

// PromptEvent is unterminated trailing text that looks like a prompt,
// flushed on GA/EOR or after a short quiet period.
type PromptEvent struct{ Text string }

// EchoEvent reports server echo changes; Suppressed means password mode.
type EchoEvent struct{ Suppressed bool }

// SubnegEvent is an ATCP or GMCP payload, delivered verbatim.
type SubnegEvent struct {
	Opt  byte
	Data []byte
}

// ClosedEvent is the terminal event; Err is nil on a clean close.
type ClosedEvent struct{ Err error }

func (LineEvent) connEvent()   {}
func (PromptEvent) connEvent() {}
func (EchoEvent) connEvent()   {}
func (SubnegEvent) connEvent() {}
func (ClosedEvent) connEvent() {}

// ErrSendBufferFull is returned by Send when the outbound channel is full;
// the caller decides how to surface the backpressure. Nothing is dropped
// silently.
var ErrSendBufferFull = errors.New("send buffer full")

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("connection closed")

// Config describes how to reach and identify to a world.
type Config struct {
	Host string
	Port string
	TLS  bool

	TermType      string
	Width, Height int

	ConnectTimeout time.Duration
	TLSTimeout     time.Duration
	IdleTimeout    time.Duration // 0 means no idle limit
}

// promptFlushDelay is how long trailing unterminated text sits in the
// accumulator before being flushed as a prompt candidate.
const promptFlushDelay = 200 * time.Millisecond

// Conn is a live connection task.
type Conn struct {
	cfg    Config
	sock   net.Conn
	engine *telnet.Engine

	events chan Event
	sendCh chan []byte
	closed chan struct{}

	mu      sync.Mutex // guards the stream field, which a TLS upgrade swaps
	stream  io.ReadWriter
	stateMu sync.RWMutex
	state   State

	closeOnce sync.Once
	closeErr  error // set before closed is closed; read by readLoop's exit
}

// Dial opens a connection and starts its reader and writer goroutines.
// The returned Conn is already past TCP connect (and the initial TLS
// handshake when cfg.TLS is set); telnet negotiation proceeds in the
// background.
func Dial(cfg Config) (*Conn, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.TLSTimeout == 0 {
		cfg.TLSTimeout = 15 * time.Second
	}

	c := &Conn{
		cfg:    cfg,
		engine: telnet.NewEngine(telnet.Config{TermType: cfg.TermType, Width: cfg.Width, Height: cfg.Height}),
		events: make(chan Event, 256),
		sendCh: make(chan []byte, 64),
		closed: make(chan struct{}),
		state:  StateResolving,
	}

	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	c.setState(StateConnecting)
	sock, err := net.DialTimeout("tcp", addr, cfg.ConnectTimeout)
	if err != nil {
		c.setState(StateClosed)
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	c.sock = sock
	c.stream = sock

	if cfg.TLS {
		c.setState(StateTLSHandshaking)
		tlsConn := tls.Client(sock, &tls.Config{ServerName: cfg.Host})
		tlsConn.SetDeadline(time.Now().Add(cfg.TLSTimeout))
		if err := tlsConn.Handshake(); err != nil {
			sock.Close()
			c.setState(StateClosed)
			return nil, fmt.Errorf("tls handshake %s: %w", addr, err)
		}
		tlsConn.SetDeadline(time.Time{})
		c.stream = tlsConn
	}

	c.start()
	return c, nil
}

// Wrap runs the connection task over an already-established socket.
func Wrap(sock net.Conn, cfg Config) *Conn {
	c := &Conn{
		cfg:    cfg,
		engine: telnet.NewEngine(telnet.Config{TermType: cfg.TermType, Width: cfg.Width, Height: cfg.Height}),
		events: make(chan Event, 256),
		sendCh: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
	c.sock = sock
	c.stream = sock
	c.start()
	return c
}

func (c *Conn) start() {
	c.setState(StateNegotiating)
	go c.readLoop()
	go c.writeLoop()
}

// Events is the inbound event channel. It closes after ClosedEvent.
func (c *Conn) Events() <-chan Event { return c.events }

// State returns the lifecycle state.
func (c *Conn) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Conn) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// Send queues a line for the server. It never blocks: a full buffer
// returns ErrSendBufferFull so the caller sees the backpressure.
func (c *Conn) Send(text string, noNewline bool) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	select {
	case c.sendCh <- telnet.EncodeLine(text, noNewline):
		return nil
	default:
		return ErrSendBufferFull
	}
}

// SetWindowSize forwards a resize to the telnet engine and flushes any
// resulting NAWS update.
func (c *Conn) SetWindowSize(w, h int) {
	c.mu.Lock()
	c.engine.SetWindowSize(w, h)
	reply := c.engine.TakeReply()
	c.mu.Unlock()
	if len(reply) > 0 {
		c.write(reply)
	}
}

// Close shuts the connection down. Safe to call from any goroutine and
// more than once.
func (c *Conn) Close() {
	c.shutdown(nil)
}

// shutdown initiates teardown. Closing the socket unblocks the read loop,
// whose exit path delivers the final ClosedEvent; only the read loop ever
// sends on the event channel, so the close cannot race a send.
func (c *Conn) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.setState(StateClosing)
		c.closeErr = err
		close(c.closed)
		c.sock.Close()
		c.setState(StateClosed)
	})
}

// writeLoop drains the send channel. Writes go through c.write so they
// always target the current stream, surviving a STARTTLS swap.
func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.closed:
			return
		case p := <-c.sendCh:
			if err := c.write(p); err != nil {
				c.shutdown(fmt.Errorf("write: %w", err))
				return
			}
		}
	}
}

// write sends bytes on the current stream. The mutex covers only the
// stream fetch, never the blocking write, so a stalled peer cannot wedge
// the read loop.
func (c *Conn) write(p []byte) error {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	_, err := stream.Write(p)
	return err
}

// readLoop owns the inbound path: socket bytes, telnet FSM, MCCP inflate,
// line splitting. It exits on read error or Close; its exit path closes
// the socket.
func (c *Conn) readLoop() {
	defer func() {
		c.sock.Close()
		c.events <- ClosedEvent{Err: c.closeErr}
		close(c.events)
	}()

	var (
		acc       bytes.Buffer // decoded payload awaiting a line break
		inflater  io.ReadCloser
		lastData  = time.Now()
		firstRead = true
	)

	buf := make([]byte, 4096)
	for {
		select {
		case <-c.closed:
			return
		default:
		}

		// Short deadline so unterminated prompts flush and idle timeouts
		// are observed without a watchdog goroutine. Once MCCP is active
		// the inflater cannot survive a timeout mid-stream, so reads
		// block until data or the idle limit; GA/EOR still marks prompts.
		if inflater == nil {
			c.sock.SetReadDeadline(time.Now().Add(promptFlushDelay))
		} else if c.cfg.IdleTimeout > 0 {
			c.sock.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
		} else {
			c.sock.SetReadDeadline(time.Time{})
		}

		var (
			n   int
			err error
		)
		if inflater != nil {
			n, err = inflater.Read(buf)
		} else {
			c.mu.Lock()
			stream := c.stream
			c.mu.Unlock()
			n, err = stream.Read(buf)
		}

		if n > 0 {
			lastData = time.Now()
			if firstRead {
				c.setState(StateEstablished)
				firstRead = false
			}
			newInflater, ierr := c.processChunk(buf[:n], &acc)
			if ierr != nil {
				c.shutdown(ierr)
				return
			}
			if newInflater != nil {
				inflater = newInflater
			}
			continue
		}

		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				// Quiet period: trailing text becomes a prompt candidate.
				c.flushPrompt(&acc)
				if c.cfg.IdleTimeout > 0 && time.Since(lastData) > c.cfg.IdleTimeout {
					c.shutdown(fmt.Errorf("idle timeout after %s", c.cfg.IdleTimeout))
					return
				}
				continue
			}
			if err == io.EOF {
				c.shutdown(nil)
			} else {
				c.shutdown(fmt.Errorf("read: %w", err))
			}
			return
		}
	}
}

// processChunk feeds raw bytes through the telnet engine and routes the
// resulting events. When MCCP starts it returns the new inflater; a
// decompression setup failure is a hard connection error, never a silent
// fallback to raw bytes.
func (c *Conn) processChunk(raw []byte, acc *bytes.Buffer) (io.ReadCloser, error) {
	events := c.engine.Feed(raw)

	if reply := c.engine.TakeReply(); len(reply) > 0 {
		if err := c.write(reply); err != nil {
			return nil, fmt.Errorf("negotiation reply: %w", err)
		}
	}

	var inflater io.ReadCloser
	for _, ev := range events {
		switch ev.Kind {
		case telnet.EventData:
			acc.Write(ev.Data)
			c.emitLines(acc)

		case telnet.EventPrompt:
			c.flushPrompt(acc)

		case telnet.EventEcho:
			c.emit(EchoEvent{Suppressed: ev.Off})

		case telnet.EventSubneg:
			c.emit(SubnegEvent{Opt: ev.Opt, Data: ev.Data})

		case telnet.EventStartCompress:
			// All bytes from here on are deflate-compressed. The engine
			// handed us the unconsumed tail; stitch it in front of the
			// socket for the inflater.
			c.mu.Lock()
			src := io.MultiReader(bytes.NewReader(ev.Data), io.Reader(c.stream))
			c.mu.Unlock()
			// NewReader consumes the stream header immediately; the short
			// prompt-flush deadline must not cut it off.
			c.sock.SetReadDeadline(time.Time{})
			zr, err := zlib.NewReader(src)
			if err != nil {
				return nil, fmt.Errorf("mccp: %w", err)
			}
			inflater = zr

		case telnet.EventStartTLS:
			if err := c.upgradeTLS(); err != nil {
				return nil, fmt.Errorf("starttls: %w", err)
			}
		}
	}
	return inflater, nil
}

// upgradeTLS wraps the current stream after a negotiated STARTTLS.
func (c *Conn) upgradeTLS() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sock, ok := c.stream.(net.Conn)
	if !ok {
		return errors.New("already upgraded")
	}
	c.setState(StateTLSHandshaking)
	tlsConn := tls.Client(sock, &tls.Config{ServerName: c.cfg.Host})
	tlsConn.SetDeadline(time.Now().Add(c.cfg.TLSTimeout))
	if err := tlsConn.Handshake(); err != nil {
		return err
	}
	tlsConn.SetDeadline(time.Time{})
	c.stream = tlsConn
	c.setState(StateEstablished)
	return nil
}

// emitLines moves every complete line out of the accumulator.
func (c *Conn) emitLines(acc *bytes.Buffer) {
	for {
		data := acc.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			return
		}
		line := data[:idx]
		line = bytes.TrimSuffix(line, []byte("\r"))
		c.emit(LineEvent{Text: string(bytes.ReplaceAll(line, []byte("\r"), nil))})
		acc.Next(idx + 1)
	}
}

// flushPrompt emits trailing unterminated text, keeping any incomplete
// UTF-8 sequence in the accumulator for the next read.
func (c *Conn) flushPrompt(acc *bytes.Buffer) {
	if acc.Len() == 0 {
		return
	}
	data := acc.Bytes()
	keep := incompleteUTF8Tail(data)
	text := data[:len(data)-keep]
	if len(text) == 0 {
		return
	}
	out := string(bytes.ReplaceAll(text, []byte("\r"), nil))
	rest := append([]byte{}, data[len(data)-keep:]...)
	acc.Reset()
	acc.Write(rest)
	if out != "" {
		c.emit(PromptEvent{Text: out})
	}
}

// emit delivers an event without racing shutdown's channel close.
func (c *Conn) emit(ev Event) {
	select {
	case <-c.closed:
	case c.events <- ev:
	}
}

// incompleteUTF8Tail returns how many trailing bytes form an incomplete
// UTF-8 sequence and should wait for the next read.
func incompleteUTF8Tail(data []byte) int {
	n := len(data)
	max := 4
	if n < max {
		max = n
	}
	for i := 1; i <= max; i++ {
		b := data[n-i]
		if b < 0x80 {
			return 0 // ASCII, complete
		}
		if b >= 0xc0 { // start byte
			var want int
			switch {
			case b < 0xe0:
				want = 2
			case b < 0xf0:
				want = 3
			default:
				want = 4
			}
			if i < want {
				return i
			}
			if i == want && utf8.Valid(data[n-i:]) {
				return 0
			}
			return i
		}
		// continuation byte, keep scanning back
	}
	return 0
}
