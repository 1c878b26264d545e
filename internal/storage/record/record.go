// Package record defines the housekeeping snapshot and its fixed binary layout.
//
// A Record is a time-order header followed by one fixed-size telemetry block
// per subsystem, in the order given by Schema. The same layout is used for
// persistence (native byte order) and transmission (network byte order), so
// the struct field order below is the on-disk and on-wire order.
package record

import (
	"encoding/binary"
	"fmt"
)

// Subsystem identifies a telemetry block within a Record.
type Subsystem uint8

const (
	// SubsystemAthena is the on-board computer (temperatures, resets, uptime).
	SubsystemAthena Subsystem = iota
	// SubsystemEPS is the electrical power system.
	SubsystemEPS
	// SubsystemUHF is the UHF transceiver.
	SubsystemUHF
	// SubsystemSBand is the S-band transmitter.
	SubsystemSBand

	// NumSubsystems is the number of telemetry blocks in a Record.
	NumSubsystems = 4
)

// String returns the schema name of the subsystem.
func (s Subsystem) String() string {
	if int(s) < len(Schema) {
		return Schema[s].Name
	}
	return fmt.Sprintf("subsystem(%d)", uint8(s))
}

// ParseSubsystem maps a schema name back to its Subsystem.
func ParseSubsystem(name string) (Subsystem, bool) {
	for _, d := range Schema {
		if d.Name == name {
			return d.Subsystem, true
		}
	}
	return 0, false
}

// Header orders records in time and ties them to the slot they were written to.
type Header struct {
	Timestamp uint32 `hk:"timestamp"` // Unix seconds at collection
	SlotID    uint16 `hk:"slot_id"`   // Slot the record was appended to
}

// HeaderSize is the encoded size of Header.
const HeaderSize = 6

// AthenaHousekeeping is the on-board computer block.
type AthenaHousekeeping struct {
	Temperature     [6]int16 `hk:"temp_cdeg"` // centi-degrees C
	BootCount       uint16   `hk:"boot_count"`
	LastResetReason uint8    `hk:"last_reset_reason"`
	OBCMode         uint8    `hk:"obc_mode"`
	Uptime          uint32   `hk:"uptime_s"`
	HeapFree        uint32   `hk:"heap_free"`
}

// EPSHousekeeping is the power system block.
type EPSHousekeeping struct {
	BatteryVoltage  uint16     `hk:"vbatt_mv"`
	BatteryCurrent  int16      `hk:"ibatt_ma"`
	BatteryTemp     [4]int16   `hk:"batt_temp_cdeg"`
	BatteryMode     uint8      `hk:"batt_mode"`
	PowerMode       uint8      `hk:"power_mode"`
	MPPTVoltage     [4]uint16  `hk:"mppt_vin_mv"`
	MPPTCurrent     [4]uint16  `hk:"mppt_iin_ma"`
	OutputVoltage   [10]uint16 `hk:"out_mv"`
	OutputCurrent   [10]uint16 `hk:"out_ma"`
	OutputStatus    uint32     `hk:"out_status"`
	OutputFaults    [10]uint8  `hk:"out_faults"`
	BoardTemp       [4]int16   `hk:"board_temp_cdeg"`
	Uptime          uint32     `hk:"uptime_s"`
	BootCount       uint32     `hk:"boot_count"`
	WatchdogResets  uint16     `hk:"wdt_resets"`
	LastResetReason uint8      `hk:"last_reset_reason"`
	Reserved        uint8      `hk:"reserved"`
}

// UHFHousekeeping is the UHF transceiver block.
type UHFHousekeeping struct {
	Frequency    uint32  `hk:"freq_hz"`
	PipeTimeout  uint32  `hk:"pipe_timeout_s"`
	BeaconPeriod uint32  `hk:"beacon_period_s"`
	AudioPeriod  uint32  `hk:"audio_period_s"`
	Uptime       uint32  `hk:"uptime_s"`
	PacketsOut   uint32  `hk:"pkts_out"`
	PacketsIn    uint32  `hk:"pkts_in"`
	PacketsCRC   uint32  `hk:"pkts_in_crc_err"`
	Temperature  float32 `hk:"temp_c"`
	RSSI         int16   `hk:"rssi_dbm"`
	StatusCode   uint8   `hk:"status"`
	LowPower     uint8   `hk:"low_power"`
	PayloadSize  uint16  `hk:"payload_size"`
	CallSign     [6]byte `hk:"callsign"`
}

// SBandHousekeeping is the S-band transmitter block.
type SBandHousekeeping struct {
	Frequency   float32 `hk:"freq_mhz"`
	PAPower     uint8   `hk:"pa_power"`
	Control     uint8   `hk:"control"`
	Encoder     uint8   `hk:"encoder"`
	Status      uint8   `hk:"status"`
	OutputPower float32 `hk:"out_power_dbm"`
	PATemp      float32 `hk:"pa_temp_c"`
	TopTemp     float32 `hk:"top_temp_c"`
	BottomTemp  float32 `hk:"bottom_temp_c"`
	BatCurrent  float32 `hk:"bat_current_a"`
	BatVoltage  float32 `hk:"bat_voltage_v"`
	PAVoltage   float32 `hk:"pa_voltage_v"`
}

// Record is one housekeeping snapshot.
// Field order is the serialization order and must match Schema.
type Record struct {
	Header Header
	Athena AthenaHousekeeping `hk:"athena"`
	EPS    EPSHousekeeping    `hk:"eps"`
	UHF    UHFHousekeeping    `hk:"uhf"`
	SBand  SBandHousekeeping  `hk:"sband"`
}

// BlockDescriptor describes one telemetry block of the schema.
type BlockDescriptor struct {
	Subsystem Subsystem
	Name      string
	Size      int
}

// Schema is the ordered list of telemetry blocks following the header.
// Persistence and transmission both walk it in this order.
var Schema = []BlockDescriptor{
	{Subsystem: SubsystemAthena, Name: "athena", Size: binary.Size(AthenaHousekeeping{})},
	{Subsystem: SubsystemEPS, Name: "eps", Size: binary.Size(EPSHousekeeping{})},
	{Subsystem: SubsystemUHF, Name: "uhf", Size: binary.Size(UHFHousekeeping{})},
	{Subsystem: SubsystemSBand, Name: "sband", Size: binary.Size(SBandHousekeeping{})},
}

// Size is the encoded length of a Record.
var Size = binary.Size(Record{})

// Block returns a pointer to the telemetry block of the given subsystem,
// or nil for an unknown subsystem.
func (r *Record) Block(s Subsystem) any {
	switch s {
	case SubsystemAthena:
		return &r.Athena
	case SubsystemEPS:
		return &r.EPS
	case SubsystemUHF:
		return &r.UHF
	case SubsystemSBand:
		return &r.SBand
	default:
		return nil
	}
}
