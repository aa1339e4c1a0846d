package estia

import "time"

// Response error codes for a sensor map entry (spec §6). Values are
// signed 16-bit; a reading is an error if value <= ErrCodeNotExist.
const (
	ErrCodeDataEmpty int16 = -206
	ErrCodeDataType  int16 = -205
	ErrCodeDataLen   int16 = -204
	ErrCodeFrameType int16 = -203
	ErrCodeCRC       int16 = -202
	ErrCodeTimeout   int16 = -201
	ErrCodeNotExist  int16 = -200
)

// errCodeFromFrameError maps a non-ok FrameError onto the above
// response-error codes; FrameError's ordinal position (ErrCRC=1 ..
// ErrDataEmpty=5) lines up with the spacing between ErrCodeCRC and
// ErrCodeDataEmpty.
func errCodeFromFrameError(e FrameError) int16 {
	return ErrCodeTimeout - int16(e)
}

// SensorReading is one entry of the engine's sensor map: the last
// observed raw value (or a negative error code, see above) and the
// display multiplier from the request catalog.
type SensorReading struct {
	Value      int16
	Multiplier float64
}

// TickResult is the outcome of one Engine.Tick call.
type TickResult int

const (
	Idle TickResult = iota
	Busy
	FramePending
)

func (r TickResult) String() string {
	switch r {
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	case FramePending:
		return "frame_pending"
	default:
		return "unknown"
	}
}

// Engine is the top-level protocol state machine: it drives the
// sniffer, the command queue (with ACK tracking and retries), and the
// sensor request queue (with timeout and retry) cooperatively across
// calls to Tick, sharing the single half-duplex Port between them.
type Engine struct {
	port    Port
	cfg     Config
	sniffer *Sniffer
	now     func() time.Time

	readTimer time.Time

	statusData    StatusData
	newStatusData bool

	sensorsData   map[string]SensorReading
	requestQueue  []string
	requestSent   bool
	requestTimer  time.Time
	requestRetry  int
	newSensorsData bool

	frameAck uint16

	cmdQueue  []*Frame
	cmdSent   bool
	cmdTimer  time.Time
	cmdRetry  int
}

// NewEngine wires an Engine to port using cfg's tunables.
func NewEngine(port Port, cfg Config) *Engine {
	return &Engine{
		port:        port,
		cfg:         cfg,
		sniffer:     NewSniffer(cfg.SniffedFramesLimit),
		sensorsData: make(map[string]SensorReading),
		now:         time.Now,
	}
}

// Tick advances the engine by one step: it drains and reassembles
// inbound traffic, then opportunistically sends at most one queued
// command or one queued sensor request. It never blocks.
func (e *Engine) Tick() TickResult {
	e.runSniffer()
	if e.sniffer.HasFrames() {
		return FramePending
	}
	if e.sniffer.Pending() || e.port.Available() > 0 {
		return Busy
	}
	if e.sendCommand() {
		return Busy
	}
	if e.sendRequest() {
		return Busy
	}
	return Idle
}

// TakeNextFrame pops the oldest completed (and already repair-
// attempted, classification-attempted) candidate frame. Tick returns
// FramePending and sends nothing while any such frame is queued, so a
// host drains them with this call, inspecting or logging them if it
// wants to.
func (e *Engine) TakeNextFrame() ([]byte, bool) {
	return e.sniffer.TakeFrame()
}

// TakeStatus returns the last decoded status record and clears the
// new_status_data edge flag.
func (e *Engine) TakeStatus() StatusData {
	e.newStatusData = false
	return e.statusData
}

// NewStatusData reports the new_status_data edge flag without clearing it.
func (e *Engine) NewStatusData() bool { return e.newStatusData }

// TakeSensorReadings returns the sensor map and clears the
// new_sensor_data edge flag. The returned map is shared with the
// engine; callers must not mutate it.
func (e *Engine) TakeSensorReadings() map[string]SensorReading {
	e.newSensorsData = false
	return e.sensorsData
}

// NewSensorData reports the new_sensor_data edge flag without clearing it.
func (e *Engine) NewSensorData() bool { return e.newSensorsData }

// TakeAckCode returns the last-received command ACK's data-type code
// and clears it.
func (e *Engine) TakeAckCode() uint16 {
	ack := e.frameAck
	e.frameAck = 0
	return ack
}

// QueueCommand appends frame to the outgoing command queue. Silently
// does nothing if the queue is already at capacity.
func (e *Engine) QueueCommand(frame *Frame) {
	if len(e.cmdQueue) >= e.cfg.CmdQueueSize {
		return
	}
	e.cmdQueue = append(e.cmdQueue, frame)
}

// EnqueueSensorRequests appends names to the pending sensor poll queue
// unless a request is already in flight (bounds overlap between
// successive host poll cycles). Names outside the request catalog are
// silently skipped. If clear is true, the sensor map is reset first.
// Returns false without effect if a request cycle is already running.
func (e *Engine) EnqueueSensorRequests(names []string, clear bool) bool {
	if len(e.requestQueue) > 0 {
		return false
	}
	e.newSensorsData = false
	if clear {
		e.sensorsData = make(map[string]SensorReading)
	}
	for _, name := range names {
		if _, ok := RequestsCatalog[name]; !ok {
			continue
		}
		e.requestQueue = append(e.requestQueue, name)
	}
	return true
}

// SetMode queues a mode command. name is one of the mode-set names
// (auto, quiet, night) or a switch-operation name (cooling, heating,
// hot_water); unrecognized names are silently ignored.
func (e *Engine) SetMode(name string, onOff byte) {
	if code, ok := ModeByName[name]; ok {
		e.QueueCommand(SetMode(code, onOff))
		return
	}
	if _, ok := SwitchOperationByName[name]; ok {
		e.switchOperation(name, onOff)
	}
}

// switchOperation queues an operation-mode command ahead of the switch
// command when the target operation (cooling/heating) doesn't match
// the currently known operation mode, mirroring the original's
// operationSwitch.
func (e *Engine) switchOperation(name string, onOff byte) {
	if code, ok := OperationModeByName[name]; ok && e.statusData.OperationMode != code {
		e.QueueCommand(SetOperationMode(code))
	}
	e.QueueCommand(SwitchByName(name, onOff))
}

// SetTemperature queues a temperature command for zone, carrying
// forward the other zones' last-known targets from the most recently
// decoded status so they round-trip unchanged on the wire. For the
// cooling zone the value is written to both zone1 and zone2.
func (e *Engine) SetTemperature(zone string, value int) {
	code, ok := TemperatureByName[zone]
	if !ok {
		return
	}
	zone1 := e.statusData.Zone1Target
	zone2 := e.statusData.Zone2Target
	hotWater := e.statusData.HotWaterTarget
	switch code {
	case TemperatureZoneCooling:
		zone1 = value
		zone2 = value
	case TemperatureZoneHeating:
		zone1 = value
	case TemperatureZoneHotWater:
		hotWater = value
	}
	e.QueueCommand(Temperature(code, zone1, zone2, hotWater, e.cfg.TemperatureLimits))
}

// ForceDefrost queues a forced-defrost command.
func (e *Engine) ForceDefrost(onOff byte) {
	e.QueueCommand(ForceDefrost(onOff))
}

// SynchronousRequest is the legacy blocking data-request path: it
// sends one request and busy-waits for a response up to
// cfg.RequestTimeout, bypassing the async request queue entirely. The
// async EnqueueSensorRequests flow is preferred; this exists for host
// bootstrap before the tick loop is running.
func (e *Engine) SynchronousRequest(name string) int16 {
	entry, ok := RequestsCatalog[name]
	if !ok {
		return ErrCodeNotExist
	}

	req := DataReq(entry.Code)
	e.writeFrame(req, true)

	deadline := e.now().Add(e.cfg.RequestTimeout)
	for e.port.Available() == 0 {
		if e.now().After(deadline) {
			return ErrCodeTimeout
		}
		time.Sleep(e.cfg.ByteDelay)
	}
	time.Sleep(e.cfg.ByteDelay * 2)

	// Flush whatever the async flow's sniffer had in progress; this
	// path reads its response directly rather than through Split.
	e.sniffer.Split(false)
	for e.sniffer.HasFrames() {
		e.sniffer.TakeFrame()
	}

	var buf []byte
	for e.port.Available() > 0 {
		b, err := e.port.ReadByte()
		if err != nil {
			break
		}
		buf = append(buf, b)
	}

	res := DecodeDataRes(buf)
	if res.Error != ErrOK {
		return errCodeFromFrameError(res.Error)
	}
	return res.Value
}

func (e *Engine) writeFrame(f *Frame, disableRx bool) error {
	return e.port.Write(f.Bytes(), disableRx)
}

// runSniffer drains available UART bytes into the sniffer and asks it
// to reassemble frames, satisfying any needMore request by reading
// again as long as the port has more to give; it never blocks waiting
// for bytes that aren't there yet; that's resumed on a later tick.
func (e *Engine) runSniffer() {
	timeout := e.sniffer.Pending() && e.now().Sub(e.readTimer) >= e.cfg.ReadTimeout
	if e.port.Available() < e.cfg.MinAvailable && !timeout {
		return
	}

	newFrame := e.read()
	e.readTimer = e.now()

	ran, needMore := e.sniffer.Split(newFrame || timeout)
	for needMore && e.port.Available() > 0 {
		e.read()
		ran, needMore = e.sniffer.Split(true)
	}
	if ran {
		e.dispatchFrames()
	}
}

// read drains currently available bytes from the port into the
// sniffer's pending input, stopping early if a new frame's sentinel
// appears at the tail (mirroring the firmware's read(), which yields
// control back as soon as a fresh A0 00 shows up rather than draining
// past it). Returns whether the port still has more available bytes.
func (e *Engine) read() bool {
	if e.port.Available() == 0 {
		return false
	}
	var buf []byte
	for e.port.Available() > 0 {
		b, err := e.port.ReadByte()
		if err != nil {
			break
		}
		buf = append(buf, b)
		if len(buf) > 2 && readUint16(buf, len(buf)-2) == FrameBegin {
			break
		}
	}
	e.sniffer.Feed(buf)
	return e.port.Available() > 0
}

// dispatchFrames repairs and classifies every completed candidate
// frame still queued in the sniffer. Frames are repaired and decoded
// in place but not removed — they remain available via TakeNextFrame
// until the host claims them, matching the original's raw-frame
// access alongside its decode pass.
func (e *Engine) dispatchFrames() {
	e.sniffer.Repair(func(buf []byte) []byte {
		fixed, _ := RepairFrame(buf)
		if readUint16(fixed, 0) != FrameBegin {
			return fixed
		}
		if e.decodeStatus(fixed) {
			return fixed
		}
		if e.decodeAck(fixed) {
			return fixed
		}
		e.decodeResponse(fixed)
		return fixed
	})
}

func (e *Engine) decodeStatus(buf []byte) bool {
	if !(IsStatusFrame(buf) || IsStatusUpdateFrame(buf)) {
		return false
	}
	data := DecodeStatus(buf)
	if data.Error == ErrOK {
		e.statusData = data
		e.newStatusData = true
	}
	return true
}

func (e *Engine) decodeAck(buf []byte) bool {
	if !IsAckFrame(buf) {
		return false
	}
	ack := DecodeAck(buf)
	if ack.Error != ErrOK {
		return true
	}
	e.frameAck = ack.FrameCode

	if e.cmdSent && len(e.cmdQueue) > 0 && ack.FrameCode == e.cmdQueue[0].DataType() {
		e.cmdQueue = e.cmdQueue[1:]
		e.cmdRetry = 0
		e.cmdSent = false
	}
	return true
}

func (e *Engine) decodeResponse(buf []byte) bool {
	if !IsDataResponseFrame(buf) {
		return false
	}
	if len(e.requestQueue) == 0 {
		return true
	}

	e.requestTimer = e.now()
	res := DecodeDataRes(buf)
	value := res.Value
	if res.Error != ErrOK {
		value = errCodeFromFrameError(res.Error)
		e.requestRetry++
		if e.requestRetry <= e.cfg.RequestRetries {
			e.requestSent = false
			return true
		}
	}

	e.saveSensorData(value)
	e.requestQueue = e.requestQueue[1:]
	e.requestRetry = 0
	e.requestSent = false
	if len(e.requestQueue) == 0 {
		e.newSensorsData = true
	}
	return true
}

func (e *Engine) saveSensorData(value int16) {
	name := e.requestQueue[0]
	if r, ok := e.sensorsData[name]; ok {
		r.Value = value
		e.sensorsData[name] = r
		return
	}
	e.sensorsData[name] = SensorReading{Value: value, Multiplier: RequestsCatalog[name].Multiplier}
}

// sendCommand advances the command flow: it retries or drops a timed-
// out in-flight command, then transmits the queue front if nothing is
// currently in flight. Commands are sent with disableRx=false since
// their ACK arrives through the normal RX path.
func (e *Engine) sendCommand() bool {
	if e.cmdSent && e.now().Sub(e.cmdTimer) > e.cfg.CmdTimeout {
		e.cmdRetry++
		if e.cmdRetry > e.cfg.CmdRetries {
			e.cmdQueue = e.cmdQueue[1:]
			e.cmdRetry = 0
		}
		e.cmdSent = false
	}
	if !e.cmdSent && len(e.cmdQueue) > 0 {
		e.cmdSent = true
		e.writeFrame(e.cmdQueue[0], false)
		e.cmdTimer = e.now()
		return true
	}
	return false
}

// sendRequest advances the sensor request flow: it discards unknown
// names, retries or times out an in-flight request, then transmits a
// DataReq for the queue front once the inter-request delay has
// elapsed and no command is in flight (commands have priority).
func (e *Engine) sendRequest() bool {
	if len(e.requestQueue) == 0 {
		return false
	}

	for len(e.requestQueue) > 0 {
		if _, ok := RequestsCatalog[e.requestQueue[0]]; ok {
			break
		}
		e.requestQueue = e.requestQueue[1:]
	}

	if e.requestSent && len(e.requestQueue) > 0 &&
		e.now().Sub(e.requestTimer) >= time.Duration(e.requestRetry+1)*e.cfg.RequestTimeout {
		e.requestRetry++
		if e.requestRetry > e.cfg.RequestRetries {
			e.saveSensorData(ErrCodeTimeout)
			e.requestQueue = e.requestQueue[1:]
			e.requestRetry = 0
		}
		e.requestSent = false
	}

	if len(e.requestQueue) == 0 {
		e.newSensorsData = true
	}

	if !e.requestSent && len(e.requestQueue) > 0 && !e.cmdSent &&
		e.now().Sub(e.requestTimer) >= e.cfg.RequestDelay {
		code := RequestsCatalog[e.requestQueue[0]].Code
		e.writeFrame(DataReq(code), true)
		e.requestTimer = e.now()
		e.requestSent = true
		return true
	}
	return false
}
