package estia

import "testing"

func buildLongStatus(t *testing.T, configure func(b []byte)) *Frame {
	t.Helper()
	f := NewFrame(TypeStatus, StatusLen)
	f.SetSource(AddrMaster, false)
	f.SetDestination(AddrBroadcast, false)
	f.SetDataType(DataTypeStatus, false)
	configure(f.Bytes())
	f.UpdateCRC()
	return f
}

func buildUpdateStatus(t *testing.T, configure func(b []byte)) *Frame {
	t.Helper()
	f := NewFrame(TypeUpdate, UpdateLen)
	f.SetSource(AddrMaster, false)
	f.SetDestination(AddrBroadcast, false)
	f.SetDataType(DataTypeStatus, false)
	configure(f.Bytes())
	f.UpdateCRC()
	return f
}

func TestDecodeStatusLongFrameCoolingFlags(t *testing.T) {
	f := buildLongStatus(t, func(b []byte) {
		b[11] = 0xa1 // operationMode=5 (cooling), cooling flag set, hotWater bit clear
		b[12] = 0x00
		b[13] = 0x00
		b[14] = encodeTemperature(45) // hot water target
		b[15] = encodeTemperature(22) // zone1 target
		b[16] = encodeTemperature(18) // zone2 target
		b[17] = encodeTemperature(46)
		b[18] = encodeTemperature(23)
		b[19] = encodeTemperature(19)
		b[21] = 0x12 // defrost (bit1) + night-active (bit4)
	})

	data := DecodeStatus(f.Bytes())
	if data.Error != ErrOK {
		t.Fatalf("Error = %v, want ok", data.Error)
	}
	if !data.Extended {
		t.Error("Extended = false, want true for a long frame")
	}
	if data.OperationMode != 5 {
		t.Errorf("OperationMode = %d, want 5", data.OperationMode)
	}
	if !data.Cooling {
		t.Error("Cooling = false, want true")
	}
	if data.Heating {
		t.Error("Heating = true, want false")
	}
	if data.HotWater {
		t.Error("HotWater = true, want false")
	}
	if data.HotWaterTarget != 45 {
		t.Errorf("HotWaterTarget = %d, want 45", data.HotWaterTarget)
	}
	if data.Zone1Target != 22 {
		t.Errorf("Zone1Target = %d, want 22", data.Zone1Target)
	}
	if data.Zone2Target != 18 {
		t.Errorf("Zone2Target = %d, want 18", data.Zone2Target)
	}
	if data.HotWaterTarget2 != 46 {
		t.Errorf("HotWaterTarget2 = %d, want 46", data.HotWaterTarget2)
	}
	if !data.DefrostInProgress {
		t.Error("DefrostInProgress = false, want true")
	}
	if !data.NightModeActive {
		t.Error("NightModeActive = false, want true")
	}
}

func TestDecodeStatusHeatingCompressorRoutedByOperationMode(t *testing.T) {
	f := buildLongStatus(t, func(b []byte) {
		b[11] = 0xc1 // operationMode=6 (heating), heating flag set
		b[13] = 0x02 // compressor bit set
	})
	data := DecodeStatus(f.Bytes())
	if data.Error != ErrOK {
		t.Fatalf("Error = %v, want ok", data.Error)
	}
	if !data.HeatingCMP {
		t.Error("HeatingCMP = false, want true (operationMode=6 routes compressor bit to heating)")
	}
	if data.CoolingCMP {
		t.Error("CoolingCMP = true, want false")
	}
}

func TestDecodeStatusUpdateFrameShortFlagsOffset(t *testing.T) {
	f := buildUpdateStatus(t, func(b []byte) {
		b[11] = 0x02 // hotWater bit only
		b[14] = encodeTemperature(50)
		b[15] = encodeTemperature(21)
		b[16] = encodeTemperature(21)
		b[17] = 0x02 // defrost flag, short-frame offset
	})
	data := DecodeStatus(f.Bytes())
	if data.Error != ErrOK {
		t.Fatalf("Error = %v, want ok", data.Error)
	}
	if data.Extended {
		t.Error("Extended = true, want false for an update frame")
	}
	if !data.HotWater {
		t.Error("HotWater = false, want true")
	}
	if !data.DefrostInProgress {
		t.Error("DefrostInProgress = false, want true")
	}
	if data.NightModeActive {
		t.Error("NightModeActive = true, want false")
	}
}

func TestDecodeStatusInvalidFrameCarriesOnlyError(t *testing.T) {
	f := buildLongStatus(t, func(b []byte) {})
	corrupt := append([]byte(nil), f.Bytes()...)
	corrupt[OffsetType] = TypeCtrl
	writeUint16(corrupt, len(corrupt)-2, CRC16(corrupt[:len(corrupt)-2])) // keep CRC self-consistent

	data := DecodeStatus(corrupt)
	if data.Error != ErrFrameType {
		t.Fatalf("Error = %v, want frame_type", data.Error)
	}
	if data.OperationMode != 0 || data.Cooling {
		t.Error("StatusData fields should be zero value on validation error")
	}
}
