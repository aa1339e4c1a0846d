package estia

// knownFrame is one entry in the closed table of recognized
// (frame-type, data-length, source, destination, data-type) tuples
// used to repair corrupted receptions.
type knownFrame struct {
	frameType byte
	dataLen   byte
	src       uint16
	dst       uint16
	dataType  uint16
	length    byte // dataLen + HeadAndCRCLen
}

func newKnownFrame(frameType byte, dataLen byte, src, dst, dataType uint16) knownFrame {
	return knownFrame{
		frameType: frameType,
		dataLen:   dataLen,
		src:       src,
		dst:       dst,
		dataType:  dataType,
		length:    dataLen + HeadAndCRCLen,
	}
}

// knownFrames is the closed table referenced by the repair ladder:
// heartbeat, short/long status, status update, data response, and the
// two ACK variants (addressed either master-to-master or
// master-to-remote).
var knownFrames = []knownFrame{
	newKnownFrame(TypeCtrl, HeartbeatDataLen, AddrMaster, AddrBroadcast, DataTypeHeartbeat),
	newKnownFrame(TypeStatus2, Status2DataLen, AddrRemote, AddrMaster, DataTypeStatus),
	newKnownFrame(TypeStatus, StatusDataLen, AddrMaster, AddrBroadcast, DataTypeStatus),
	newKnownFrame(TypeStatus, ShortStatusDataLen, AddrMaster, AddrBroadcast, DataTypeShortStatus),
	newKnownFrame(TypeUpdate, UpdateDataLen, AddrMaster, AddrBroadcast, DataTypeStatus),
	newKnownFrame(TypeResData, ResDataDataLen, AddrMaster, AddrRemote, DataTypeDataResponse),
	newKnownFrame(TypeAck, AckDataLen, AddrMaster, AddrMaster, DataTypeAck),
	newKnownFrame(TypeAck, AckDataLen, AddrMaster, AddrRemote, DataTypeAck),
}

// RepairFrame attempts to correct a buffer whose trailing CRC does not
// match the bytes preceding it. It applies a fixed, terminate-on-first-
// success ladder of corrections and returns the repaired buffer and
// true on success, or the original buffer and false if no step in the
// ladder produces a matching CRC. It never invents payload bytes, only
// rewrites header/length fields.
//
// Already-valid input is returned unchanged with ok=true (repair is
// idempotent on valid frames: the CRC check at the top short-circuits
// immediately).
func RepairFrame(buf []byte) (repaired []byte, ok bool) {
	if len(buf) < MinLen-2 {
		return buf, false
	}

	target := readUint16(buf, len(buf)-2)
	if target == CRC16(buf[:len(buf)-2]) {
		return buf, true
	}

	fixed := make([]byte, len(buf))
	copy(fixed, buf)

	if out, ok := addMissingLeadingBytes(fixed, target); ok {
		return out, true
	}

	if len(fixed) < MinLen {
		return buf, false
	}

	if out, ok := fixDeclaredLength(fixed, target); ok {
		return out, true
	}

	if out, ok := fixStaticBytes(fixed, target); ok {
		return out, true
	}

	for _, known := range knownFrames {
		if fixed[OffsetDataLen] != known.dataLen {
			continue
		}
		if out, ok := fixFrameType(fixed, known, target); ok {
			return out, true
		}
		if out, ok := fixDataHeader(fixed, known, target); ok {
			return out, true
		}
	}

	return buf, false
}

func addMissingLeadingBytes(fixed []byte, target uint16) ([]byte, bool) {
	if readUint16(fixed, 0) == FrameBegin {
		return nil, false
	}

	for _, known := range knownFrames {
		switch {
		case fixed[0] == 0x00 && len(fixed) == int(known.length)-1:
			candidate := make([]byte, 0, len(fixed)+1)
			candidate = append(candidate, 0xa0)
			candidate = append(candidate, fixed...)
			if target == CRC16(candidate[:len(candidate)-2]) {
				return candidate, true
			}
			return nil, false
		case fixed[0] == known.frameType && len(fixed) == int(known.length)-2:
			candidate := make([]byte, 0, len(fixed)+2)
			candidate = append(candidate, 0xa0, 0x00)
			candidate = append(candidate, fixed...)
			if target == CRC16(candidate[:len(candidate)-2]) {
				return candidate, true
			}
			return nil, false
		}
	}
	return nil, false
}

func fixDeclaredLength(fixed []byte, target uint16) ([]byte, bool) {
	if int(fixed[OffsetDataLen])+HeadAndCRCLen == len(fixed) {
		return nil, false
	}
	fixed[OffsetDataLen] = byte(len(fixed) - HeadAndCRCLen)
	if target == CRC16(fixed[:len(fixed)-2]) {
		return fixed, true
	}
	return nil, false
}

// fixStaticBytes forces the begin sentinel and the reserved data-
// header byte to their expected constant values. Per spec, the data-
// header byte really is assigned zero here (the original firmware's
// equivalent statement is a no-op comparison; this is the documented
// behavioral fix, not a faithful bug-for-bug port).
func fixStaticBytes(fixed []byte, target uint16) ([]byte, bool) {
	writeUint16(fixed, 0, FrameBegin)
	fixed[OffsetDataHeader] = 0x00
	if target == CRC16(fixed[:len(fixed)-2]) {
		return fixed, true
	}
	return nil, false
}

func fixFrameType(fixed []byte, known knownFrame, target uint16) ([]byte, bool) {
	if fixed[OffsetType] == known.frameType {
		return nil, false
	}
	fixed[OffsetType] = known.frameType
	if target == CRC16(fixed[:len(fixed)-2]) {
		return fixed, true
	}
	return nil, false
}

func fixDataHeader(fixed []byte, known knownFrame, target uint16) ([]byte, bool) {
	writeUint16(fixed, OffsetSrc, known.src)
	writeUint16(fixed, OffsetDst, known.dst)
	writeUint16(fixed, OffsetDataType, known.dataType)
	if target == CRC16(fixed[:len(fixed)-2]) {
		return fixed, true
	}
	return nil, false
}
