package estia

import (
	"fmt"
	"io"
	"log"
	"sync"

	"go.bug.st/serial"
	tarmserial "github.com/tarm/serial"
)

// Port is the UART abstraction the engine drives: byte-oriented,
// half-duplex, with RX disable/flush around a transmission so the
// transceiver's own echo doesn't get sniffed back as traffic.
type Port interface {
	// Available reports how many bytes are currently buffered for read.
	Available() int
	// ReadByte reads a single buffered byte. Callers must check
	// Available() > 0 first.
	ReadByte() (byte, error)
	// Write transmits buf. If disableRx is true, RX is held off for the
	// duration of the write and the RX buffer is flushed afterward.
	Write(buf []byte, disableRx bool) error
}

// serialHandle is the common surface both go.bug.st/serial.Port and
// github.com/tarm/serial's *Port satisfy, letting SerialPort's read
// loop stay library-agnostic.
type serialHandle interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// SerialPort is a Port backed by a real UART. A background goroutine
// continuously drains the OS read buffer into an internal byte queue,
// since the engine's tick loop expects a non-blocking
// Available()/ReadByte() pair rather than a blocking Read.
type SerialPort struct {
	port serialHandle

	mu       sync.Mutex
	buffer   []byte
	disabled bool

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// OpenSerialPort opens name at 2400 baud, 8 data bits, even parity, one
// stop bit — the Estia wire's fixed line discipline — via
// go.bug.st/serial, and starts the background read loop.
func OpenSerialPort(name string) (*SerialPort, error) {
	mode := &serial.Mode{
		BaudRate: 2400,
		DataBits: 8,
		Parity:   serial.EvenParity,
		StopBits: serial.OneStopBit,
	}
	raw, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	return newSerialPort(raw), nil
}

// OpenSerialPortLegacy opens name via github.com/tarm/serial instead of
// go.bug.st/serial, for build targets where the cgo-free go.bug.st
// driver misbehaves. It configures the same 2400-8E1 line discipline
// as OpenSerialPort.
func OpenSerialPortLegacy(name string) (*SerialPort, error) {
	cfg := &tarmserial.Config{
		Name:     name,
		Baud:     2400,
		Size:     8,
		Parity:   tarmserial.ParityEven,
		StopBits: tarmserial.Stop1,
	}
	raw, err := tarmserial.OpenPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("open legacy serial port %s: %w", name, err)
	}
	return newSerialPort(raw), nil
}

func newSerialPort(handle serialHandle) *SerialPort {
	p := &SerialPort{
		port:     handle,
		buffer:   make([]byte, 0, 256),
		stopChan: make(chan struct{}),
	}
	p.wg.Add(1)
	go p.readLoop()
	return p
}

func (p *SerialPort) readLoop() {
	defer p.wg.Done()

	buf := make([]byte, 1)
	for {
		select {
		case <-p.stopChan:
			return
		default:
		}

		n, err := p.port.Read(buf)
		if err != nil {
			if err != io.EOF {
				log.Printf("estia: serial read error: %v", err)
			}
			continue
		}
		if n == 0 {
			continue
		}

		p.mu.Lock()
		if !p.disabled {
			p.buffer = append(p.buffer, buf[0])
		}
		p.mu.Unlock()
	}
}

// Available reports how many bytes are currently queued for read.
func (p *SerialPort) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// ReadByte pops the oldest queued byte.
func (p *SerialPort) ReadByte() (byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buffer) == 0 {
		return 0, fmt.Errorf("estia: read byte: buffer empty")
	}
	b := p.buffer[0]
	p.buffer = p.buffer[1:]
	return b, nil
}

// Write transmits buf, optionally disabling RX around the transmission
// and flushing the RX queue afterward to drop the transceiver's own
// echo, matching the firmware's write(buffer, disableRx) discipline.
func (p *SerialPort) Write(buf []byte, disableRx bool) error {
	if disableRx {
		p.mu.Lock()
		p.disabled = true
		p.mu.Unlock()
	}

	_, err := p.port.Write(buf)

	if disableRx {
		p.mu.Lock()
		p.buffer = p.buffer[:0]
		p.disabled = false
		p.mu.Unlock()
	}
	if err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

// Close stops the read loop and releases the underlying OS handle.
func (p *SerialPort) Close() error {
	close(p.stopChan)
	p.wg.Wait()
	return p.port.Close()
}
