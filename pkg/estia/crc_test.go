package estia

import "testing"

func TestCRC16MCRF4XX(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want uint16
	}{
		{
			name: "ack example from protocol capture",
			data: []byte{0xA0, 0x00, 0x18, 0x09, 0x00, 0x08, 0x00, 0x08, 0x00, 0x00, 0xA1, 0x00, 0x41},
			want: 0xC195,
		},
		{
			name: "empty input leaves the init value untouched",
			data: nil,
			want: 0xFFFF,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := CRC16(c.data); got != c.want {
				t.Errorf("CRC16(%x) = %04x, want %04x", c.data, got, c.want)
			}
		})
	}
}

func TestCRC16TableBuiltOnce(t *testing.T) {
	if crc16Table[0] != 0 {
		t.Errorf("crc16Table[0] = %04x, want 0", crc16Table[0])
	}
	// Spot-check a well-known MCRF4XX table entry.
	if crc16Table[1] != 0x1189 {
		t.Errorf("crc16Table[1] = %04x, want 1189", crc16Table[1])
	}
}
