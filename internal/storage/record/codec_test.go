package record

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/arrooney/ex2-services/internal/errors"
)

func sampleRecord() Record {
	var r Record
	r.Header = Header{Timestamp: 1700000000, SlotID: 42}
	r.Athena.Temperature = [6]int16{2150, -300, 0, 1, -1, 32767}
	r.Athena.BootCount = 7
	r.Athena.Uptime = 86400
	r.EPS.BatteryVoltage = 8123
	r.EPS.BatteryCurrent = -512
	r.EPS.OutputStatus = 0xDEADBEEF
	r.EPS.OutputCurrent[9] = 65535
	r.UHF.Frequency = 437875000
	r.UHF.Temperature = 21.5
	r.UHF.RSSI = -110
	r.UHF.CallSign = [6]byte{'V', 'E', '6', 'E', 'X', '2'}
	r.SBand.Frequency = 2228.5
	r.SBand.PAPower = 24
	r.SBand.BatVoltage = 7.9
	return r
}

func TestSize(t *testing.T) {
	if Size != 218 {
		t.Errorf("expected record size=218, got %d", Size)
	}

	total := HeaderSize
	for _, d := range Schema {
		total += d.Size
	}
	if total != Size {
		t.Errorf("schema block sizes sum to %d, record size is %d", total, Size)
	}

	if got := binary.Size(Header{}); got != HeaderSize {
		t.Errorf("expected header size=%d, got %d", HeaderSize, got)
	}
}

func TestSchemaOrderMatchesRecord(t *testing.T) {
	if len(Schema) != NumSubsystems {
		t.Fatalf("expected %d schema entries, got %d", NumSubsystems, len(Schema))
	}
	for i, d := range Schema {
		if int(d.Subsystem) != i {
			t.Errorf("schema[%d] has subsystem %d", i, d.Subsystem)
		}
		var r Record
		if got := binary.Size(r.Block(d.Subsystem)); got != d.Size {
			t.Errorf("%s: expected block size=%d, got %d", d.Name, d.Size, got)
		}
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	r := sampleRecord()

	data := Encode(r)
	if len(data) != Size {
		t.Fatalf("expected %d bytes, got %d", Size, len(data))
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != r {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, r)
	}
}

func TestEncode_HeaderFirst(t *testing.T) {
	r := sampleRecord()
	data := Encode(r)

	if ts := binary.NativeEndian.Uint32(data[0:4]); ts != r.Header.Timestamp {
		t.Errorf("expected timestamp=%d at offset 0, got %d", r.Header.Timestamp, ts)
	}
	if id := binary.NativeEndian.Uint16(data[4:6]); id != r.Header.SlotID {
		t.Errorf("expected slot=%d at offset 4, got %d", r.Header.SlotID, id)
	}
}

func TestDecode_WrongLength(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"header only", HeaderSize},
		{"one short", Size - 1},
		{"one long", Size + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(make([]byte, tt.size))
			if !errors.Is(err, errors.ErrCorruptRecord) {
				t.Errorf("expected ErrCorruptRecord, got %v", err)
			}
		})
	}
}

func TestToWireOrder_Involution(t *testing.T) {
	r := sampleRecord()

	if got := r.ToWireOrder().ToWireOrder(); got != r {
		t.Errorf("double swap changed record:\n got  %+v\n want %+v", got, r)
	}
}

func TestSwapToWire_DoubleSwapIdentity(t *testing.T) {
	r := sampleRecord()

	once, err := SwapToWire(Encode(r))
	if err != nil {
		t.Fatalf("SwapToWire: %v", err)
	}
	if len(once) != Size {
		t.Errorf("swap changed size to %d", len(once))
	}
	twice, err := SwapToWire(once)
	if err != nil {
		t.Fatalf("SwapToWire: %v", err)
	}

	got, err := Decode(twice)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != r {
		t.Errorf("decode(swap(swap(encode(r)))) != r")
	}
}

func TestWirePayload_BigEndian(t *testing.T) {
	r := sampleRecord()
	p := WirePayload(r)

	if ts := binary.BigEndian.Uint32(p[0:4]); ts != r.Header.Timestamp {
		t.Errorf("expected big-endian timestamp=%d, got %d", r.Header.Timestamp, ts)
	}
	if id := binary.BigEndian.Uint16(p[4:6]); id != r.Header.SlotID {
		t.Errorf("expected big-endian slot=%d, got %d", r.Header.SlotID, id)
	}

	// Athena.Temperature[0] is the first field after the header.
	if v := int16(binary.BigEndian.Uint16(p[6:8])); v != r.Athena.Temperature[0] {
		t.Errorf("expected athena temp[0]=%d, got %d", r.Athena.Temperature[0], v)
	}

	// SBand.BatVoltage is float32 at offset Size-8.
	bits := binary.BigEndian.Uint32(p[Size-8 : Size-4])
	if f := math.Float32frombits(bits); f != r.SBand.BatVoltage {
		t.Errorf("expected sband bat voltage=%v, got %v", r.SBand.BatVoltage, f)
	}

	back, err := FromWirePayload(p)
	if err != nil {
		t.Fatalf("FromWirePayload: %v", err)
	}
	if back != r {
		t.Errorf("wire round trip mismatch")
	}
}
