package estia

import (
	"bytes"
	"testing"
)

func TestNewFrameLayout(t *testing.T) {
	f := NewFrame(TypeCmd, SetModeLen)

	if f.Len() != SetModeLen {
		t.Fatalf("Len() = %d, want %d", f.Len(), SetModeLen)
	}
	if f.Type() != TypeCmd {
		t.Errorf("Type() = %#x, want %#x", f.Type(), TypeCmd)
	}
	if got := int(f.DataLength()); got != SetModeLen-HeadAndCRCLen {
		t.Errorf("DataLength() = %d, want %d", got, SetModeLen-HeadAndCRCLen)
	}
	if f.Bytes()[0] != 0xa0 || f.Bytes()[1] != 0x00 {
		t.Errorf("sentinel = % x, want a0 00", f.Bytes()[:2])
	}
}

func TestNewFrameFromBufferPadsShortInput(t *testing.T) {
	f := NewFrameFromBuffer([]byte{0xa0, 0x00})
	if f.Len() != MinLen {
		t.Errorf("Len() = %d, want %d", f.Len(), MinLen)
	}
}

func TestFrameSettersAndCRC(t *testing.T) {
	f := NewFrame(TypeCmd, OperationModeLen)
	f.SetSource(AddrRemote, false)
	f.SetDestination(AddrMaster, false)
	f.SetDataType(DataTypeOperationMode, false)
	f.SetByte(OffsetData, OperationModeCooling, true)

	if f.Source() != AddrRemote {
		t.Errorf("Source() = %#x, want %#x", f.Source(), AddrRemote)
	}
	if f.Destination() != AddrMaster {
		t.Errorf("Destination() = %#x, want %#x", f.Destination(), AddrMaster)
	}
	if f.DataType() != DataTypeOperationMode {
		t.Errorf("DataType() = %#x, want %#x", f.DataType(), DataTypeOperationMode)
	}

	want := CRC16(f.Bytes()[:f.Len()-2])
	if f.CRC() != want {
		t.Errorf("CRC() = %#x, want %#x", f.CRC(), want)
	}
}

func TestSetByteOutOfBoundsFailsSilently(t *testing.T) {
	f := NewFrame(TypeCmd, OperationModeLen)
	if f.SetByte(-1, 0, false) {
		t.Error("SetByte(-1, ...) = true, want false")
	}
	if f.SetByte(f.Len(), 0, false) {
		t.Error("SetByte(len, ...) = true, want false")
	}
}

func TestInsertPayloadOutOfBoundsFailsSilently(t *testing.T) {
	f := NewFrame(TypeCmd, OperationModeLen)
	if f.InsertPayload(make([]byte, 100), false) {
		t.Error("InsertPayload(oversized) = true, want false")
	}
}

func TestCheckFramePriorityOrder(t *testing.T) {
	valid := func() *Frame {
		f := NewFrame(TypeCmd, OperationModeLen)
		f.SetSource(AddrRemote, false)
		f.SetDestination(AddrMaster, false)
		f.SetDataType(DataTypeOperationMode, true)
		return f
	}

	t.Run("ok", func(t *testing.T) {
		f := valid()
		if got := f.CheckFrame(TypeCmd, DataTypeOperationMode); got != ErrOK {
			t.Errorf("CheckFrame() = %v, want ok", got)
		}
	})

	t.Run("crc takes priority over everything else", func(t *testing.T) {
		f := valid()
		f.buf[OffsetType] = 0xff // also wrong type, but CRC is now stale
		if got := f.CheckFrame(TypeAck, DataTypeAck); got != ErrCRC {
			t.Errorf("CheckFrame() = %v, want crc", got)
		}
	})

	t.Run("frame type checked before data length", func(t *testing.T) {
		f := valid()
		f.buf[OffsetType] = TypeAck
		f.buf[OffsetDataLen] = 0xff // also wrong length
		f.UpdateCRC()
		if got := f.CheckFrame(TypeCmd, DataTypeOperationMode); got != ErrFrameType {
			t.Errorf("CheckFrame() = %v, want frame_type", got)
		}
	})

	t.Run("data length checked before data type", func(t *testing.T) {
		f := valid()
		f.buf[OffsetDataLen] = 0xff
		f.UpdateCRC()
		// Expect a different data type too, so both checks would fail.
		if got := f.CheckFrame(TypeCmd, DataTypeModeChange); got != ErrDataLen {
			t.Errorf("CheckFrame() = %v, want data_len", got)
		}
	})

	t.Run("data type checked last", func(t *testing.T) {
		f := valid()
		f.SetDataType(DataTypeModeChange, true)
		if got := f.CheckFrame(TypeCmd, DataTypeOperationMode); got != ErrDataType {
			t.Errorf("CheckFrame() = %v, want data_type", got)
		}
	})
}

func TestClassificationPredicatesDoNotValidateCRC(t *testing.T) {
	f := NewFrame(TypeStatus, StatusLen)
	f.SetDataType(DataTypeStatus, false) // CRC deliberately left stale (zero)

	if !IsStatusFrame(f.Bytes()) {
		t.Error("IsStatusFrame() = false on a correctly-shaped but CRC-stale buffer, want true")
	}
}

func TestClassificationPredicatesRejectWrongShape(t *testing.T) {
	heartbeat := NewFrame(TypeCtrl, HeartbeatLen)
	heartbeat.SetDataType(DataTypeHeartbeat, true)

	if IsStatusFrame(heartbeat.Bytes()) {
		t.Error("IsStatusFrame(heartbeat) = true, want false")
	}
	if IsStatusUpdateFrame(heartbeat.Bytes()) {
		t.Error("IsStatusUpdateFrame(heartbeat) = true, want false")
	}
	if IsAckFrame(heartbeat.Bytes()) {
		t.Error("IsAckFrame(heartbeat) = true, want false")
	}
	if IsDataResponseFrame(heartbeat.Bytes()) {
		t.Error("IsDataResponseFrame(heartbeat) = true, want false")
	}
}

func TestRoundTripFrameFromBuffer(t *testing.T) {
	original := NewFrame(TypeCmd, SetModeLen)
	original.SetSource(AddrRemote, false)
	original.SetDestination(AddrMaster, false)
	original.SetDataType(DataTypeModeChange, false)
	original.SetByte(SetModeCodeOffset, ModeNightCode, false)
	original.SetByte(SetModeValueOffset, 1<<3, true)

	decoded := NewFrameFromBuffer(original.Bytes())
	if !bytes.Equal(decoded.Bytes(), original.Bytes()) {
		t.Errorf("round trip bytes = % x, want % x", decoded.Bytes(), original.Bytes())
	}
	if decoded.CheckFrame(TypeCmd, DataTypeModeChange) != ErrOK {
		t.Errorf("CheckFrame() on round-tripped frame = %v, want ok", decoded.CheckFrame(TypeCmd, DataTypeModeChange))
	}
}

func TestFrameErrorString(t *testing.T) {
	cases := map[FrameError]string{
		ErrOK:        "ok",
		ErrCRC:       "crc",
		ErrFrameType: "frame_type",
		ErrDataLen:   "data_len",
		ErrDataType:  "data_type",
		ErrDataEmpty: "data_empty",
		FrameError(99): "unknown",
	}
	for err, want := range cases {
		if got := err.String(); got != want {
			t.Errorf("FrameError(%d).String() = %q, want %q", err, got, want)
		}
	}
}
