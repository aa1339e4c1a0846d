package estia

import "sync"

// LoopbackPort is an in-memory Port for tests: writes optionally echo
// straight back into the read queue (disableRx suppresses the echo,
// matching the real transceiver's RX-disable-around-TX behavior), and
// the test can also Inject bytes directly to simulate traffic from the
// master.
type LoopbackPort struct {
	mu     sync.Mutex
	rx     []byte
	writes [][]byte
	echo   bool
}

// NewLoopbackPort returns a port with no buffered bytes. Call
// SetEcho(true) to have Write loop non-disabled transmissions back into rx,
// simulating a transceiver that doesn't suppress its own echo.
func NewLoopbackPort() *LoopbackPort {
	return &LoopbackPort{}
}

// SetEcho toggles self-echo behavior on Write.
func (p *LoopbackPort) SetEcho(echo bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.echo = echo
}

// Inject appends bytes to the read queue as if received from the wire.
func (p *LoopbackPort) Inject(buf []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rx = append(p.rx, buf...)
}

// Available implements Port.
func (p *LoopbackPort) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rx)
}

// ReadByte implements Port.
func (p *LoopbackPort) ReadByte() (byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.rx) == 0 {
		return 0, errEmptyLoopback
	}
	b := p.rx[0]
	p.rx = p.rx[1:]
	return b, nil
}

// Write implements Port. Transmitted buffers are recorded in Writes
// for test assertions.
func (p *LoopbackPort) Write(buf []byte, disableRx bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := append([]byte(nil), buf...)
	p.writes = append(p.writes, cp)
	if p.echo && !disableRx {
		p.rx = append(p.rx, cp...)
	}
	return nil
}

// Writes returns every buffer transmitted so far, in order.
func (p *LoopbackPort) Writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.writes))
	copy(out, p.writes)
	return out
}

var errEmptyLoopback = loopbackError("estia: loopback read: buffer empty")

type loopbackError string

func (e loopbackError) Error() string { return string(e) }
