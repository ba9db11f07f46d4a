// Package telnet implements the per-connection telnet state machine:
// option negotiation, subnegotiation payloads, prompt marks and the MCCP
// handoff. The Engine is a push parser; the owning connection feeds it raw
// bytes and sends whatever TakeReply returns back to the server.
package telnet

import (
	"bytes"
	"encoding/binary"
)

// Telnet command bytes.
const (
	IAC  byte = 255
	DONT byte = 254
	DO   byte = 253
	WONT byte = 252
	WILL byte = 251
	SB   byte = 250
	GA   byte = 249
	NOP  byte = 241
	SE   byte = 240
	EOR  byte = 239
)

// Option codes.
const (
	OptEcho     byte = 1
	OptSGA      byte = 3
	OptTTYPE    byte = 24
	OptEOR      byte = 25
	OptNAWS     byte = 31
	OptCharset  byte = 42
	OptStartTLS byte = 46
	OptMCCP2    byte = 86
	OptATCP     byte = 200
	OptGMCP     byte = 201
)

// Subnegotiation sub-commands.
const (
	subIs   byte = 0
	subSend byte = 1

	charsetRequest  byte = 1
	charsetAccepted byte = 2
	charsetRejected byte = 3

	tlsFollows byte = 1
)

// EventKind tags an Event.
type EventKind int

const (
	// EventData carries decoded payload bytes.
	EventData EventKind = iota
	// EventPrompt marks a GA or EOR prompt boundary.
	EventPrompt
	// EventEcho reports a server echo change; Off true means the server
	// echoes (password mode) and local echo must be suppressed.
	EventEcho
	// EventSubneg carries an ATCP/GMCP (or other) subnegotiation payload.
	EventSubneg
	// EventStartCompress reports that MCCP2 compression begins. Data holds
	// the not-yet-consumed tail of the read buffer, which is already
	// compressed; the connection must route it and everything after
	// through inflate.
	EventStartCompress
	// EventStartTLS reports a negotiated STARTTLS handshake point.
	EventStartTLS
)

// Event is one parser output.
type Event struct {
	Kind EventKind
	Opt  byte
	Data []byte
	Off  bool // EventEcho
}

// optState tracks one option's negotiation: whether each side supports
// it and whether it is currently enabled there.
type optState struct {
	localOK  bool // we are willing to enable it on our side
	remoteOK bool // we accept the server enabling it
	localOn  bool
	remoteOn bool
}

// parser states
const (
	stData = iota
	stIAC
	stWill
	stWont
	stDo
	stDont
	stSub     // awaiting the subnegotiation option byte
	stSubData // collecting subnegotiation payload
	stSubIAC
)

// Config carries the identity the engine answers negotiations with.
type Config struct {
	TermType      string
	Width, Height int
}

// Engine is the telnet FSM for one connection. Not safe for concurrent
// use; it is owned by the connection's read loop.
type Engine struct {
	cfg    Config
	opts   [256]optState
	state  int
	subOpt byte
	subBuf []byte
	reply  bytes.Buffer
}

// NewEngine returns an engine with the standard MUD client option policy:
// we answer NAWS, TTYPE and CHARSET locally and accept ECHO, SGA, EOR,
// MCCP2, ATCP, GMCP and STARTTLS from the server.
func NewEngine(cfg Config) *Engine {
	if cfg.TermType == "" {
		cfg.TermType = "gofugue"
	}
	e := &Engine{cfg: cfg}
	for _, opt := range []byte{OptNAWS, OptTTYPE, OptCharset} {
		e.opts[opt].localOK = true
	}
	for _, opt := range []byte{OptEcho, OptSGA, OptEOR, OptMCCP2, OptATCP, OptGMCP, OptStartTLS, OptCharset} {
		e.opts[opt].remoteOK = true
	}
	return e
}

// SetWindowSize records the terminal size and, when NAWS is enabled,
// queues an update for the server.
func (e *Engine) SetWindowSize(w, h int) {
	e.cfg.Width, e.cfg.Height = w, h
	if e.opts[OptNAWS].localOn {
		e.sendNAWS()
	}
}

// EchoSuppressed reports whether the server currently owns echo.
func (e *Engine) EchoSuppressed() bool { return e.opts[OptEcho].remoteOn }

// TakeReply drains the bytes owed to the server.
func (e *Engine) TakeReply() []byte {
	if e.reply.Len() == 0 {
		return nil
	}
	out := make([]byte, e.reply.Len())
	copy(out, e.reply.Bytes())
	e.reply.Reset()
	return out
}

// Feed runs the state machine over p. Payload bytes come back as
// EventData chunks in arrival order; negotiations may queue replies.
// After an EventStartCompress no further bytes of p are consumed: the
// remainder rides on the event for the caller to decompress.
func (e *Engine) Feed(p []byte) []Event {
	var events []Event
	var data []byte
	flush := func() {
		if len(data) > 0 {
			events = append(events, Event{Kind: EventData, Data: data})
			data = nil
		}
	}

	for i := 0; i < len(p); i++ {
		b := p[i]
		switch e.state {
		case stData:
			if b == IAC {
				e.state = stIAC
			} else {
				data = append(data, b)
			}

		case stIAC:
			switch b {
			case IAC:
				data = append(data, IAC) // escaped 0xFF
				e.state = stData
			case WILL:
				e.state = stWill
			case WONT:
				e.state = stWont
			case DO:
				e.state = stDo
			case DONT:
				e.state = stDont
			case SB:
				e.state = stSub
				e.subOpt = 0
				e.subBuf = nil
			case GA, EOR:
				flush()
				events = append(events, Event{Kind: EventPrompt})
				e.state = stData
			default: // NOP and anything else
				e.state = stData
			}

		case stWill:
			flush()
			events = append(events, e.handleWill(b)...)
			e.state = stData
		case stWont:
			flush()
			events = append(events, e.handleWont(b)...)
			e.state = stData
		case stDo:
			flush()
			e.handleDo(b)
			e.state = stData
		case stDont:
			flush()
			e.handleDont(b)
			e.state = stData

		case stSub:
			e.subOpt = b
			e.state = stSubData

		case stSubData:
			if b == IAC {
				e.state = stSubIAC
			} else {
				e.subBuf = append(e.subBuf, b)
			}

		case stSubIAC:
			switch b {
			case SE:
				flush()
				ev, done := e.handleSubneg()
				events = append(events, ev...)
				e.state = stData
				if done && e.subOpt == OptMCCP2 {
					// Everything after IAC SE is compressed.
					if i+1 < len(p) {
						events = append(events, Event{Kind: EventStartCompress, Data: p[i+1:]})
					} else {
						events = append(events, Event{Kind: EventStartCompress})
					}
					return events
				}
			case IAC:
				e.subBuf = append(e.subBuf, IAC) // escaped IAC inside subneg
				e.state = stSubData
			default:
				// Malformed; keep the byte and keep collecting.
				e.subBuf = append(e.subBuf, b)
				e.state = stSubData
			}
		}
	}
	flush()
	return events
}

func (e *Engine) handleWill(opt byte) []Event {
	st := &e.opts[opt]
	if !st.remoteOK {
		e.reply.Write([]byte{IAC, DONT, opt})
		return nil
	}
	var events []Event
	if !st.remoteOn {
		st.remoteOn = true
		e.reply.Write([]byte{IAC, DO, opt})
	}
	switch opt {
	case OptEcho:
		events = append(events, Event{Kind: EventEcho, Off: true})
	case OptStartTLS:
		// Ask the server to proceed; the handshake point arrives with its
		// FOLLOWS subnegotiation.
		e.reply.Write([]byte{IAC, SB, OptStartTLS, tlsFollows, IAC, SE})
	}
	return events
}

func (e *Engine) handleWont(opt byte) []Event {
	st := &e.opts[opt]
	if st.remoteOn {
		st.remoteOn = false
		e.reply.Write([]byte{IAC, DONT, opt})
	}
	if opt == OptEcho {
		return []Event{{Kind: EventEcho, Off: false}}
	}
	return nil
}

func (e *Engine) handleDo(opt byte) {
	st := &e.opts[opt]
	if !st.localOK {
		e.reply.Write([]byte{IAC, WONT, opt})
		return
	}
	if st.localOn {
		return
	}
	st.localOn = true
	e.reply.Write([]byte{IAC, WILL, opt})
	if opt == OptNAWS {
		e.sendNAWS()
	}
}

func (e *Engine) handleDont(opt byte) {
	st := &e.opts[opt]
	if st.localOn {
		st.localOn = false
		e.reply.Write([]byte{IAC, WONT, opt})
	}
}

// handleSubneg processes a completed subnegotiation. The boolean result is
// always true: every completed subnegotiation, well-formed or not, is
// consumed.
func (e *Engine) handleSubneg() ([]Event, bool) {
	opt := e.subOpt
	payload := e.subBuf
	e.subBuf = nil

	switch opt {
	case OptTTYPE:
		if len(payload) >= 1 && payload[0] == subSend {
			e.reply.Write([]byte{IAC, SB, OptTTYPE, subIs})
			e.reply.WriteString(e.cfg.TermType)
			e.reply.Write([]byte{IAC, SE})
		}
		return nil, true

	case OptCharset:
		if len(payload) >= 2 && payload[0] == charsetRequest {
			sep := payload[1]
			for _, name := range bytes.Split(payload[2:], []byte{sep}) {
				if bytes.EqualFold(name, []byte("UTF-8")) {
					e.reply.Write([]byte{IAC, SB, OptCharset, charsetAccepted})
					e.reply.WriteString("UTF-8")
					e.reply.Write([]byte{IAC, SE})
					return nil, true
				}
			}
			e.reply.Write([]byte{IAC, SB, OptCharset, charsetRejected, IAC, SE})
		}
		return nil, true

	case OptStartTLS:
		if len(payload) >= 1 && payload[0] == tlsFollows {
			return []Event{{Kind: EventStartTLS}}, true
		}
		return nil, true

	case OptMCCP2:
		// IAC SB 86 IAC SE: empty payload, compression starts after SE.
		return nil, true

	case OptATCP, OptGMCP:
		data := make([]byte, len(payload))
		copy(data, payload)
		return []Event{{Kind: EventSubneg, Opt: opt, Data: data}}, true
	}

	// Unknown subnegotiations are dropped after parsing; the option was
	// never enabled, so the server should not be sending them.
	return nil, true
}

func (e *Engine) sendNAWS() {
	var dims [4]byte
	binary.BigEndian.PutUint16(dims[0:2], uint16(e.cfg.Width))
	binary.BigEndian.PutUint16(dims[2:4], uint16(e.cfg.Height))
	e.reply.Write([]byte{IAC, SB, OptNAWS})
	e.reply.Write(escapeIAC(dims[:]))
	e.reply.Write([]byte{IAC, SE})
}

// escapeIAC doubles IAC bytes for outbound payloads.
func escapeIAC(p []byte) []byte {
	out := make([]byte, 0, len(p))
	for _, b := range p {
		out = append(out, b)
		if b == IAC {
			out = append(out, IAC)
		}
	}
	return out
}

// EncodeLine prepares an outbound command line: IAC escaping plus CRLF
// termination unless noNewline is set.
func EncodeLine(text string, noNewline bool) []byte {
	out := escapeIAC([]byte(text))
	if !noNewline {
		out = append(out, '\r', '\n')
	}
	return out
}
