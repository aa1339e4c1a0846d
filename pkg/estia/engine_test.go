package estia

import (
	"testing"
	"time"
)

func newTestEngine() (*Engine, *LoopbackPort) {
	port := NewLoopbackPort()
	e := NewEngine(port, NewConfig(Model6kW))
	return e, port
}

func TestEngineCommandAckPopsQueue(t *testing.T) {
	// Spec concrete scenario 6: queue a mode command, send it, then
	// observe the matching ACK pop the queue and surface its code.
	e, port := newTestEngine()

	e.SetMode("auto", 1)
	if got := e.Tick(); got != Busy {
		t.Fatalf("Tick() after queuing a command = %v, want Busy", got)
	}
	writes := port.Writes()
	if len(writes) != 1 {
		t.Fatalf("writes after sending the command = %d, want 1", len(writes))
	}
	if got := readUint16(writes[0], OffsetDataType); got != DataTypeModeChange {
		t.Errorf("sent frame data type = %#x, want %#x", got, DataTypeModeChange)
	}
	if len(e.cmdQueue) != 1 || !e.cmdSent {
		t.Fatalf("cmdQueue/cmdSent = %d/%v, want 1/true", len(e.cmdQueue), e.cmdSent)
	}

	port.Inject(validAck().Bytes())
	if got := e.Tick(); got != FramePending {
		t.Fatalf("Tick() after injecting the ACK = %v, want FramePending", got)
	}

	if len(e.cmdQueue) != 0 {
		t.Errorf("cmdQueue length = %d, want 0 after a matching ACK", len(e.cmdQueue))
	}
	if e.cmdSent {
		t.Error("cmdSent = true, want false after a matching ACK")
	}
	if code := e.TakeAckCode(); code != DataTypeModeChange {
		t.Errorf("TakeAckCode() = %#x, want %#x", code, DataTypeModeChange)
	}
	if code := e.TakeAckCode(); code != 0 {
		t.Errorf("second TakeAckCode() = %#x, want 0 (cleared)", code)
	}

	e.TakeNextFrame() // drain the raw candidate so the next tick can go idle
	if got := e.Tick(); got != Idle {
		t.Errorf("Tick() after the queue drains = %v, want Idle", got)
	}
}

func TestEngineRequestTimeoutDropsAfterRetries(t *testing.T) {
	// Spec concrete scenario 5: a sensor request that never gets a
	// response is retried cfg.RequestRetries times, then dropped with
	// the timeout error code.
	e, port := newTestEngine()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fakeNow := base
	e.now = func() time.Time { return fakeNow }

	if ok := e.EnqueueSensorRequests([]string{"twi"}, true); !ok {
		t.Fatal("EnqueueSensorRequests() = false, want true")
	}

	if got := e.Tick(); got != Busy {
		t.Fatalf("first Tick() = %v, want Busy (initial request send)", got)
	}
	if len(port.Writes()) != 1 {
		t.Fatalf("writes after the initial send = %d, want 1", len(port.Writes()))
	}

	// Advance well past every retry's backoff threshold (at most
	// (RequestRetries+1)*RequestTimeout) so each Tick resolves exactly
	// one expiry: three resends, then the final give-up.
	for i := 0; i < e.cfg.RequestRetries+1; i++ {
		fakeNow = fakeNow.Add(10 * e.cfg.RequestTimeout)
		e.Tick()
	}

	if len(port.Writes()) != e.cfg.RequestRetries+1 {
		t.Fatalf("writes after retries = %d, want %d (1 initial + %d resends)",
			len(port.Writes()), e.cfg.RequestRetries+1, e.cfg.RequestRetries)
	}
	if len(e.requestQueue) != 0 {
		t.Fatalf("requestQueue length = %d, want 0 (dropped)", len(e.requestQueue))
	}

	reading, ok := e.sensorsData["twi"]
	if !ok {
		t.Fatal(`sensorsData["twi"] missing after timeout`)
	}
	if reading.Value != ErrCodeTimeout {
		t.Errorf("Value = %d, want %d", reading.Value, ErrCodeTimeout)
	}
	if reading.Multiplier != RequestsCatalog["twi"].Multiplier {
		t.Errorf("Multiplier = %v, want %v", reading.Multiplier, RequestsCatalog["twi"].Multiplier)
	}
	if !e.NewSensorData() {
		t.Error("NewSensorData() = false, want true once the queue has drained")
	}

	if got := e.Tick(); got != Idle {
		t.Errorf("Tick() after the request queue drains = %v, want Idle", got)
	}
}

func TestEngineTickDefersCommandWhileBytesArePending(t *testing.T) {
	e, port := newTestEngine()
	e.SetMode("auto", 1)

	// Fewer bytes than MinLen: the sniffer can't complete a frame yet,
	// so it holds them pending rather than discarding them.
	port.Inject([]byte{0xa0, 0x00, 0x10})

	if got := e.Tick(); got != Busy {
		t.Fatalf("Tick() = %v, want Busy while input is still pending", got)
	}
	if len(port.Writes()) != 0 {
		t.Error("command was transmitted while sniffer input was still pending")
	}
}

func TestQueueCommandDropsBeyondCapacity(t *testing.T) {
	port := NewLoopbackPort()
	e := NewEngine(port, NewConfig(Model6kW, WithCmdQueueSize(2)))

	for i := 0; i < 5; i++ {
		e.QueueCommand(ForceDefrost(1))
	}
	if len(e.cmdQueue) != 2 {
		t.Errorf("cmdQueue length = %d, want 2 (capped by CmdQueueSize)", len(e.cmdQueue))
	}
}

func TestEnqueueSensorRequestsRejectsOverlap(t *testing.T) {
	e, _ := newTestEngine()
	if !e.EnqueueSensorRequests([]string{"twi"}, true) {
		t.Fatal("first EnqueueSensorRequests() = false, want true")
	}
	if e.EnqueueSensorRequests([]string{"two"}, false) {
		t.Error("second EnqueueSensorRequests() = true while a cycle is already running, want false")
	}
}

func TestSetModeQueuesOperationModeAheadOfSwitchOnMismatch(t *testing.T) {
	e, _ := newTestEngine()
	e.SetMode("cooling", 1)

	if len(e.cmdQueue) != 2 {
		t.Fatalf("cmdQueue length = %d, want 2", len(e.cmdQueue))
	}
	if got := e.cmdQueue[0].DataType(); got != DataTypeOperationMode {
		t.Errorf("first queued DataType = %#x, want %#x", got, DataTypeOperationMode)
	}
	if got := e.cmdQueue[1].DataType(); got != DataTypeOperationSwitch {
		t.Errorf("second queued DataType = %#x, want %#x", got, DataTypeOperationSwitch)
	}
}

func TestSetModeSkipsOperationModeWhenAlreadyMatching(t *testing.T) {
	e, _ := newTestEngine()
	e.statusData.OperationMode = OperationModeCooling
	e.SetMode("cooling", 1)

	if len(e.cmdQueue) != 1 {
		t.Fatalf("cmdQueue length = %d, want 1 (operation mode already matches)", len(e.cmdQueue))
	}
	if got := e.cmdQueue[0].DataType(); got != DataTypeOperationSwitch {
		t.Errorf("queued DataType = %#x, want %#x", got, DataTypeOperationSwitch)
	}
}
