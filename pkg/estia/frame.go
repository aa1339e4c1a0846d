// Package estia implements the bidirectional serial protocol for the
// Toshiba Estia R32 heat pump: frame encode/decode, the frame-repair
// heuristics, the sniffer/splitter, and the polling/command engine
// that drives the wire.
package estia

import "fmt"

// Field offsets within a protocol frame.
const (
	OffsetType       = 2
	OffsetDataLen    = 3
	OffsetDataHeader = 4
	OffsetSrc        = 5
	OffsetDst        = 7
	OffsetDataType   = 9
	OffsetData       = 11

	HeadLen       = 4
	CRCLen        = 2
	HeadAndCRCLen = HeadLen + CRCLen

	MinDataLen = 0x07
	MinLen     = HeadLen + MinDataLen + CRCLen // 13
	MaxLen     = 45

	FrameBegin = 0xa000
)

// Frame type codes (offset 2).
const (
	TypeCtrl    byte = 0x10
	TypeCmd     byte = 0x11
	TypeReqData byte = 0x17
	TypeAck     byte = 0x18
	TypeResData byte = 0x1a
	TypeUpdate  byte = 0x1c
	TypeStatus2 byte = 0x55
	TypeStatus  byte = 0x58
)

// Source/destination addresses (offsets 5-6, 7-8).
const (
	AddrMaster    uint16 = 0x0800
	AddrRemote    uint16 = 0x0040
	AddrBroadcast uint16 = 0x00fe
)

// Data-type discriminators (offset 9-10).
const (
	DataTypeHeartbeat        uint16 = 0x008a
	DataTypeStatus           uint16 = 0x03c6
	DataTypeModeChange       uint16 = 0x03c4
	DataTypeOperationMode    uint16 = 0x03c0
	DataTypeOperationSwitch  uint16 = 0x0041
	DataTypeTemperatureChange uint16 = 0x03c1
	DataTypeSpecialCmd       uint16 = 0x0015
	DataTypeDataRequest      uint16 = 0x0080
	DataTypeDataResponse     uint16 = 0x00ef
	DataTypeAck              uint16 = 0x00a1
	DataTypeShortStatus      uint16 = 0x002b
)

// Declared payload (data) lengths for each recognized frame shape.
const (
	HeartbeatDataLen     = 0x07
	SetModeDataLen       = 0x0b
	OperationModeDataLen = 0x08
	SwitchDataLen        = 0x08
	TemperatureDataLen   = 0x0c
	ReqDataDataLen       = 0x0f
	AckDataLen           = 0x09
	ResDataDataLen       = 0x0d
	StatusDataLen        = 0x19
	UpdateDataLen        = 0x0f
	ForceDefrostDataLen  = 0x0a
	Status2DataLen       = 0x09
	ShortStatusDataLen   = 0x0b
)

// Total frame lengths (data length + 6) for each recognized shape.
const (
	HeartbeatLen     = 13
	SetModeLen       = 17
	OperationModeLen = 14
	SwitchLen        = 14
	TemperatureLen   = 18
	ReqDataLen       = 21
	AckLen           = 15
	ResDataLen       = 19
	StatusLen        = 31
	UpdateLen        = 21
	ForceDefrostLen  = 16
	Status2Len       = 15
	ShortStatusLen   = 17
)

// FrameError is the typed result of validating a frame, in priority
// order of detection.
type FrameError int

const (
	ErrOK FrameError = iota
	ErrCRC
	ErrFrameType
	ErrDataLen
	ErrDataType
	ErrDataEmpty
)

func (e FrameError) String() string {
	switch e {
	case ErrOK:
		return "ok"
	case ErrCRC:
		return "crc"
	case ErrFrameType:
		return "frame_type"
	case ErrDataLen:
		return "data_len"
	case ErrDataType:
		return "data_type"
	case ErrDataEmpty:
		return "data_empty"
	default:
		return "unknown"
	}
}

// Frame is an immutable-by-convention view over one protocol frame's
// bytes. Construct with NewFrame (typed, empty payload) or
// NewFrameFromBuffer (wrapping a received buffer); mutate with the
// setters, which finalize the CRC only when asked.
type Frame struct {
	buf []byte
}

// NewFrame allocates a zeroed frame of the given total length, writes
// the begin sentinel, the frame type, and the declared data length.
// Payload and CRC are left zero; fill them with the setters.
func NewFrame(frameType byte, length int) *Frame {
	if length < MinLen {
		length = MinLen
	}
	buf := make([]byte, length)
	buf[0] = byte(FrameBegin >> 8)
	buf[1] = byte(FrameBegin & 0xff)
	buf[OffsetType] = frameType
	buf[OffsetDataLen] = byte(length - HeadAndCRCLen)
	return &Frame{buf: buf}
}

// NewFrameFromBuffer wraps a received byte buffer, padding it up to at
// least MinLen. The caller retains ownership of buf; the frame keeps
// its own copy.
func NewFrameFromBuffer(buf []byte) *Frame {
	length := len(buf)
	if length < MinLen {
		length = MinLen
	}
	out := make([]byte, length)
	copy(out, buf)
	return &Frame{buf: out}
}

// Bytes returns the frame's underlying buffer. Callers must not retain
// a reference across further mutation of the frame.
func (f *Frame) Bytes() []byte { return f.buf }

// Len returns the total frame length in bytes.
func (f *Frame) Len() int { return len(f.buf) }

// Type returns the frame-type byte at offset 2.
func (f *Frame) Type() byte { return f.buf[OffsetType] }

// DataLength returns the declared payload length at offset 3.
func (f *Frame) DataLength() byte { return f.buf[OffsetDataLen] }

// Source returns the 16-bit source address.
func (f *Frame) Source() uint16 { return readUint16(f.buf, OffsetSrc) }

// Destination returns the 16-bit destination address.
func (f *Frame) Destination() uint16 { return readUint16(f.buf, OffsetDst) }

// DataType returns the 16-bit data-type discriminator.
func (f *Frame) DataType() uint16 { return readUint16(f.buf, OffsetDataType) }

// CRC returns the trailing 16-bit CRC as stored in the buffer.
func (f *Frame) CRC() uint16 { return readUint16(f.buf, len(f.buf)-2) }

// SetSource overwrites the source address.
func (f *Frame) SetSource(src uint16, updateCRC bool) {
	writeUint16(f.buf, OffsetSrc, src)
	if updateCRC {
		f.UpdateCRC()
	}
}

// SetDestination overwrites the destination address.
func (f *Frame) SetDestination(dst uint16, updateCRC bool) {
	writeUint16(f.buf, OffsetDst, dst)
	if updateCRC {
		f.UpdateCRC()
	}
}

// SetDataType overwrites the data-type word.
func (f *Frame) SetDataType(dataType uint16, updateCRC bool) {
	writeUint16(f.buf, OffsetDataType, dataType)
	if updateCRC {
		f.UpdateCRC()
	}
}

// SetByte writes a single byte at offset. Returns false without effect
// if offset is outside the frame.
func (f *Frame) SetByte(offset int, value byte, updateCRC bool) bool {
	if offset < 0 || offset >= len(f.buf) {
		return false
	}
	f.buf[offset] = value
	if updateCRC {
		f.UpdateCRC()
	}
	return true
}

// InsertPayload copies data into the payload region starting at
// OffsetData. Returns false without effect if data would run past the
// end of the frame.
func (f *Frame) InsertPayload(data []byte, updateCRC bool) bool {
	if OffsetData+len(data) > len(f.buf) {
		return false
	}
	copy(f.buf[OffsetData:], data)
	if updateCRC {
		f.UpdateCRC()
	}
	return true
}

// UpdateCRC recomputes CRC-16/MCRF4XX over all bytes but the trailing
// two and writes it big-endian into the last two bytes.
func (f *Frame) UpdateCRC() {
	crc := CRC16(f.buf[:len(f.buf)-2])
	writeUint16(f.buf, len(f.buf)-2, crc)
}

// CheckFrame validates the frame against an expected type and data
// type, returning the first error found in priority order: CRC, frame
// type, declared data length, data type.
func (f *Frame) CheckFrame(expectedType byte, expectedDataType uint16) FrameError {
	if f.CRC() != CRC16(f.buf[:len(f.buf)-2]) {
		return ErrCRC
	}
	if f.Type() != expectedType {
		return ErrFrameType
	}
	if int(f.DataLength())+HeadAndCRCLen != len(f.buf) {
		return ErrDataLen
	}
	if f.DataType() != expectedDataType {
		return ErrDataType
	}
	return ErrOK
}

// String renders the frame as a space-separated hex dump, e.g. for
// logging raw traffic.
func (f *Frame) String() string {
	return stringifyBytes(f.buf)
}

func stringifyBytes(buf []byte) string {
	s := make([]byte, 0, len(buf)*3)
	for i, b := range buf {
		if i > 0 {
			s = append(s, ' ')
		}
		s = append(s, fmt.Sprintf("%02x", b)...)
	}
	return string(s)
}

// IsStatusFrame reports whether buf has the shape of a long status
// broadcast (31 bytes, type STATUS, data-type STATUS). It does not
// validate CRC.
func IsStatusFrame(buf []byte) bool {
	return len(buf) == StatusLen &&
		buf[OffsetType] == TypeStatus &&
		buf[OffsetDataLen] == StatusDataLen &&
		readUint16(buf, OffsetDataType) == DataTypeStatus
}

// IsStatusUpdateFrame reports whether buf has the shape of a short
// incremental status update (21 bytes, type UPDATE, data-type STATUS).
// It does not validate CRC.
func IsStatusUpdateFrame(buf []byte) bool {
	return len(buf) == UpdateLen &&
		buf[OffsetType] == TypeUpdate &&
		buf[OffsetDataLen] == UpdateDataLen &&
		readUint16(buf, OffsetDataType) == DataTypeStatus
}

// IsAckFrame reports whether buf has the shape of an acknowledgement
// frame. It does not validate CRC.
func IsAckFrame(buf []byte) bool {
	return len(buf) == AckLen &&
		buf[OffsetType] == TypeAck &&
		buf[OffsetDataLen] == AckDataLen &&
		readUint16(buf, OffsetDataType) == DataTypeAck
}

// IsDataResponseFrame reports whether buf has the shape of a data
// response frame. It does not validate CRC.
func IsDataResponseFrame(buf []byte) bool {
	return len(buf) == ResDataLen &&
		buf[OffsetType] == TypeResData &&
		buf[OffsetDataLen] == ResDataDataLen &&
		readUint16(buf, OffsetDataType) == DataTypeDataResponse
}

// readUint16 reads a big-endian uint16 at offset, returning 0 if
// offset is out of range. If offset is the last byte, that byte alone
// is returned.
func readUint16(buf []byte, offset int) uint16 {
	if offset < 0 || offset >= len(buf) {
		return 0
	}
	if offset == len(buf)-1 {
		return uint16(buf[offset])
	}
	return uint16(buf[offset])<<8 | uint16(buf[offset+1])
}

// writeUint16 writes a big-endian uint16 at offset. Returns false
// without effect if offset+1 is out of range.
func writeUint16(buf []byte, offset int, v uint16) bool {
	if offset < 0 || offset+1 >= len(buf) {
		return false
	}
	buf[offset] = byte(v >> 8)
	buf[offset+1] = byte(v & 0xff)
	return true
}
