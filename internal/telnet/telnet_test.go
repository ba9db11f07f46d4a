package telnet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlainDataPassesThrough(t *testing.T) {
	e := NewEngine(Config{})
	evs := e.Feed([]byte("hello\r\n"))
	require.Len(t, evs, 1)
	require.Equal(t, EventData, evs[0].Kind)
	require.Equal(t, []byte("hello\r\n"), evs[0].Data)
	require.Nil(t, e.TakeReply())
}

func TestEscapedIAC(t *testing.T) {
	e := NewEngine(Config{})
	evs := e.Feed([]byte{'a', IAC, IAC, 'b'})
	require.Len(t, evs, 1)
	require.Equal(t, []byte{'a', 255, 'b'}, evs[0].Data)
}

func TestSequenceSplitAcrossReads(t *testing.T) {
	e := NewEngine(Config{})
	// IAC WILL ECHO split into three feeds.
	require.Empty(t, e.Feed([]byte{IAC}))
	require.Empty(t, e.Feed([]byte{WILL}))
	evs := e.Feed([]byte{OptEcho})
	require.Len(t, evs, 1)
	require.Equal(t, EventEcho, evs[0].Kind)
	require.True(t, evs[0].Off)
	require.Equal(t, []byte{IAC, DO, OptEcho}, e.TakeReply())
}

func TestEchoNegotiation(t *testing.T) {
	e := NewEngine(Config{})
	evs := e.Feed([]byte{IAC, WILL, OptEcho})
	require.Len(t, evs, 1)
	require.True(t, evs[0].Off, "WILL ECHO means the server owns echo")
	require.True(t, e.EchoSuppressed())

	evs = e.Feed([]byte{IAC, WONT, OptEcho})
	require.Len(t, evs, 1)
	require.False(t, evs[0].Off)
	require.False(t, e.EchoSuppressed())
	require.Equal(t, []byte{IAC, DO, OptEcho, IAC, DONT, OptEcho}, e.TakeReply())
}

func TestUnknownOptionsRefused(t *testing.T) {
	e := NewEngine(Config{})
	e.Feed([]byte{IAC, WILL, 99})
	require.Equal(t, []byte{IAC, DONT, 99}, e.TakeReply())

	e.Feed([]byte{IAC, DO, 99})
	require.Equal(t, []byte{IAC, WONT, 99}, e.TakeReply())
}

func TestNAWS(t *testing.T) {
	e := NewEngine(Config{Width: 80, Height: 24})
	e.Feed([]byte{IAC, DO, OptNAWS})
	reply := e.TakeReply()
	require.Equal(t, []byte{IAC, WILL, OptNAWS}, reply[:3])
	require.Equal(t, []byte{IAC, SB, OptNAWS, 0, 80, 0, 24, IAC, SE}, reply[3:])

	// Resize pushes an update.
	e.SetWindowSize(120, 40)
	require.Equal(t, []byte{IAC, SB, OptNAWS, 0, 120, 0, 40, IAC, SE}, e.TakeReply())
}

func TestNAWSSilentBeforeNegotiation(t *testing.T) {
	e := NewEngine(Config{Width: 80, Height: 24})
	e.SetWindowSize(100, 30)
	require.Nil(t, e.TakeReply(), "no NAWS before the server asks")
}

func TestTTYPE(t *testing.T) {
	e := NewEngine(Config{TermType: "xterm-256color"})
	e.Feed([]byte{IAC, DO, OptTTYPE})
	require.Equal(t, []byte{IAC, WILL, OptTTYPE}, e.TakeReply())

	e.Feed([]byte{IAC, SB, OptTTYPE, 1, IAC, SE})
	want := append([]byte{IAC, SB, OptTTYPE, 0}, []byte("xterm-256color")...)
	want = append(want, IAC, SE)
	require.Equal(t, want, e.TakeReply())
}

func TestCharsetAcceptsUTF8(t *testing.T) {
	e := NewEngine(Config{})
	e.Feed([]byte{IAC, WILL, OptCharset})
	e.TakeReply()

	// REQUEST ";UTF-8;ISO-8859-1"
	payload := append([]byte{IAC, SB, OptCharset, 1, ';'}, []byte("UTF-8;ISO-8859-1")...)
	payload = append(payload, IAC, SE)
	e.Feed(payload)
	want := append([]byte{IAC, SB, OptCharset, 2}, []byte("UTF-8")...)
	want = append(want, IAC, SE)
	require.Equal(t, want, e.TakeReply())
}

func TestCharsetRejectsOthers(t *testing.T) {
	e := NewEngine(Config{})
	e.Feed([]byte{IAC, WILL, OptCharset})
	e.TakeReply()

	payload := append([]byte{IAC, SB, OptCharset, 1, ';'}, []byte("ISO-8859-1")...)
	payload = append(payload, IAC, SE)
	e.Feed(payload)
	require.Equal(t, []byte{IAC, SB, OptCharset, 3, IAC, SE}, e.TakeReply())
}

func TestPromptMark(t *testing.T) {
	e := NewEngine(Config{})
	evs := e.Feed(append([]byte("Password: "), IAC, GA))
	require.Len(t, evs, 2)
	require.Equal(t, EventData, evs[0].Kind)
	require.Equal(t, "Password: ", string(evs[0].Data))
	require.Equal(t, EventPrompt, evs[1].Kind)
}

func TestGMCPSubnegotiation(t *testing.T) {
	e := NewEngine(Config{})
	e.Feed([]byte{IAC, WILL, OptGMCP})
	e.TakeReply()

	msg := []byte(`Char.Vitals {"hp":100}`)
	buf := append([]byte{IAC, SB, OptGMCP}, msg...)
	buf = append(buf, IAC, SE)
	evs := e.Feed(buf)
	require.Len(t, evs, 1)
	require.Equal(t, EventSubneg, evs[0].Kind)
	require.Equal(t, OptGMCP, evs[0].Opt)
	require.Equal(t, msg, evs[0].Data)
}

func TestMCCPStartHandsOffTail(t *testing.T) {
	e := NewEngine(Config{})
	e.Feed([]byte{IAC, WILL, OptMCCP2})
	e.TakeReply()

	compressed := []byte{0x78, 0x9c, 0x01, 0x02} // opaque to the engine
	buf := append([]byte("plain"), IAC, SB, OptMCCP2, IAC, SE)
	buf = append(buf, compressed...)
	evs := e.Feed(buf)

	require.Len(t, evs, 2)
	require.Equal(t, EventData, evs[0].Kind)
	require.Equal(t, "plain", string(evs[0].Data))
	require.Equal(t, EventStartCompress, evs[1].Kind)
	require.Equal(t, compressed, evs[1].Data, "the tail after IAC SE is compressed and must not be parsed")
}

func TestStartTLS(t *testing.T) {
	e := NewEngine(Config{})
	e.Feed([]byte{IAC, WILL, OptStartTLS})
	require.Equal(t, []byte{IAC, DO, OptStartTLS, IAC, SB, OptStartTLS, 1, IAC, SE}, e.TakeReply())

	evs := e.Feed([]byte{IAC, SB, OptStartTLS, 1, IAC, SE})
	require.Len(t, evs, 1)
	require.Equal(t, EventStartTLS, evs[0].Kind)
}

func TestEncodeLine(t *testing.T) {
	require.Equal(t, []byte("look\r\n"), EncodeLine("look", false))
	require.Equal(t, []byte("partial"), EncodeLine("partial", true))
	require.Equal(t, []byte{255, 255, '\r', '\n'}, EncodeLine("\xff", false))
}
