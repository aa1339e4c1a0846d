package estia

// Data-request opcodes (offset 17 of a request frame).
const (
	CodeTC  byte = 0x04
	CodeTWI byte = 0x06
	CodeTWO byte = 0x07
	CodeTHO byte = 0x08
	CodeTFI byte = 0x09
	CodeTTW byte = 0x0a
	CodeMIX byte = 0x0b
	CodeLPS byte = 0x0e
	CodeSWVer          byte = 0x0f
	CodeCtrlHWTemp     byte = 0x10
	CodeCtrlZone1Temp  byte = 0x11
	CodeCtrlZone2Temp  byte = 0x12
	CodeWF  byte = 0xc0

	CodeTE  byte = 0x60
	CodeTO  byte = 0x61
	CodeTD  byte = 0x62
	CodeTS  byte = 0x63
	CodeTHS byte = 0x65
	CodeCT  byte = 0x6a
	CodeTL  byte = 0x6d
	CodeCMP byte = 0x70
	CodeFan1 byte = 0x72
	CodeFan2 byte = 0x73
	CodePMV  byte = 0x74
	CodeHPS  byte = 0x7a

	CodeHPOnTime            byte = 0xf0
	CodeHWCmpOnTime         byte = 0xf1
	CodeCoolCmpOnTime       byte = 0xf2
	CodeHeatCmpOnTime       byte = 0xf3
	CodePump1OnTime         byte = 0xf4
	CodeHWEHeaterOnTime     byte = 0xf5
	CodeBackupHeaterOnTime  byte = 0xf6
	CodeBoostHeaterOnTime   byte = 0xf7
)

// RequestEntry is one entry of the request catalog: the wire opcode and
// the display multiplier applied to the raw response value.
type RequestEntry struct {
	Code       byte
	Multiplier float64
}

// RequestsCatalog maps host-facing sensor names to their wire opcode
// and display multiplier. Names outside this map are rejected by
// EnqueueSensorRequests without touching the wire.
var RequestsCatalog = map[string]RequestEntry{
	"tc":                    {CodeTC, 1},
	"twi":                   {CodeTWI, 1},
	"two":                   {CodeTWO, 1},
	"tho":                   {CodeTHO, 1},
	"tfi":                   {CodeTFI, 1},
	"ttw":                   {CodeTTW, 1},
	"mix":                   {CodeMIX, 1},
	"lps":                   {CodeLPS, 10},
	"sw_ver":                {CodeSWVer, 1},
	"ctrl_hw_temp":          {CodeCtrlHWTemp, 1},
	"ctrl_zone1_temp":       {CodeCtrlZone1Temp, 1},
	"ctrl_zone2_temp":       {CodeCtrlZone2Temp, 1},
	"wf":                    {CodeWF, 0.1},
	"te":                    {CodeTE, 1},
	"to":                    {CodeTO, 1},
	"td":                    {CodeTD, 1},
	"ts":                    {CodeTS, 1},
	"ths":                   {CodeTHS, 1},
	"ct":                    {CodeCT, 10},
	"tl":                    {CodeTL, 1},
	"cmp":                   {CodeCMP, 1},
	"fan1":                  {CodeFan1, 1},
	"fan2":                  {CodeFan2, 1},
	"pmv":                   {CodePMV, 10},
	"hps":                   {CodeHPS, 10},
	"hp_on_time":            {CodeHPOnTime, 100},
	"hw_cmp_on_time":        {CodeHWCmpOnTime, 100},
	"cool_cmp_on_time":      {CodeCoolCmpOnTime, 100},
	"heat_cmp_on_time":      {CodeHeatCmpOnTime, 100},
	"pump1_on_time":         {CodePump1OnTime, 100},
	"hw_e_heater_on_time":   {CodeHWEHeaterOnTime, 100},
	"backup_heater_on_time": {CodeBackupHeaterOnTime, 100},
	"boost_heater_on_time":  {CodeBoostHeaterOnTime, 100},
}

// reqDataBase is the fixed 8-byte payload template written at offset 11
// of every data request frame, before the opcode overwrites offset 17.
var reqDataBase = [8]byte{0x00, 0xef, 0x00, 0x2c, 0x08, 0x00, 0x00, 0x00}

const ReqDataCodeOffset = 17

// DataReq builds a data-request frame (21 bytes, data-type
// DATA_REQUEST) for the given opcode.
func DataReq(code byte) *Frame {
	f := NewFrame(TypeReqData, ReqDataLen)
	f.SetSource(AddrRemote, false)
	f.SetDestination(AddrMaster, false)
	f.SetDataType(DataTypeDataRequest, false)
	f.InsertPayload(reqDataBase[:], false)
	f.SetByte(ReqDataCodeOffset, code, true)
	return f
}

const (
	ResDataEmptyOffset = 13
	ResDataValueOffset = 15

	ResDataFlagEmpty byte = 0xa2 // low byte of the 16-bit 0x00a2 sentinel
)

// DataRes is the decoded product of a data-response frame.
type DataRes struct {
	Error FrameError
	Value int16
}

// DecodeDataRes validates buf as a data-response frame (19 bytes,
// data-type DATA_RESPONSE) and, absent the empty-data sentinel at
// offset 13..14, extracts the raw 16-bit reading at offset 15..16.
func DecodeDataRes(buf []byte) DataRes {
	f := NewFrameFromBuffer(buf)
	err := f.CheckFrame(TypeResData, DataTypeDataResponse)
	if err != ErrOK {
		return DataRes{Error: err}
	}
	b := f.Bytes()
	if readUint16(b, ResDataEmptyOffset) == 0x00a2 {
		return DataRes{Error: ErrDataEmpty}
	}
	return DataRes{Error: ErrOK, Value: int16(readUint16(b, ResDataValueOffset))}
}
