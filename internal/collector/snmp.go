package collector

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/arrooney/ex2-services/config"
	"github.com/arrooney/ex2-services/internal/errors"
	"github.com/arrooney/ex2-services/internal/logging"
	"github.com/arrooney/ex2-services/internal/storage/record"
)

var snmpLog = logging.Component("snmp")

// =============================================================================
// SNMP Configuration
// =============================================================================

// OIDField maps one OID onto a named telemetry field.
type OIDField struct {
	OID   string
	Field string

	// Scale multiplies the polled value before it is stored. Zero means 1.
	Scale float64
}

// SNMPConfig describes an SNMP agent that stands in for a subsystem, as on
// a hardware-in-the-loop bench where the flight hardware is fronted by SNMP.
type SNMPConfig struct {
	Host string
	Port uint16

	// v2c
	Community string

	// v3
	SecurityName  string
	SecurityLevel string
	AuthProtocol  string
	AuthPassword  string
	PrivProtocol  string
	PrivPassword  string
	ContextName   string

	// Timing
	Timeout time.Duration
	Retries int

	Fields []OIDField
}

// Validate checks that the agent and at least one field are set.
func (c *SNMPConfig) Validate() error {
	if c.Host == "" {
		return errors.NewMissingField("snmp host")
	}
	if len(c.Fields) == 0 {
		return errors.NewMissingField("snmp fields")
	}

	isV3 := c.SecurityName != ""
	if !isV3 && c.Community == "" {
		return errors.NewValidation("snmp community", "v2c requires a community string")
	}

	for i, f := range c.Fields {
		if f.OID == "" {
			return errors.NewMissingField(fmt.Sprintf("snmp fields[%d].oid", i))
		}
		if f.Field == "" {
			return errors.NewMissingField(fmt.Sprintf("snmp fields[%d].field", i))
		}
	}
	return nil
}

// =============================================================================
// SNMP Source
// =============================================================================

// SNMPSource fills one subsystem block from SNMP GETs.
type SNMPSource struct {
	subsystem record.Subsystem
	cfg       SNMPConfig
	byOID     map[string]OIDField
}

// NewSNMPSource creates a source that polls cfg into subsystem's block.
// Every field name must exist in the block.
func NewSNMPSource(subsystem record.Subsystem, cfg SNMPConfig) (*SNMPSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var scratch record.Record
	byOID := make(map[string]OIDField, len(cfg.Fields))
	for _, f := range cfg.Fields {
		if err := record.SetField(&scratch, subsystem, f.Field, 0); err != nil {
			return nil, errors.Wrapf(err, "snmp field %s", f.Field)
		}
		byOID[normalizeOID(f.OID)] = f
	}

	return &SNMPSource{subsystem: subsystem, cfg: cfg, byOID: byOID}, nil
}

// Subsystem returns the block this source fills.
func (s *SNMPSource) Subsystem() record.Subsystem { return s.subsystem }

// Collect polls every configured OID. Fields whose OID could not be read
// keep their previous value; the errors are returned together.
func (s *SNMPSource) Collect(ctx context.Context, r *record.Record) error {
	client := s.createClient(ctx)
	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect %s: %w", s.cfg.Host, err)
	}
	defer client.Conn.Close()

	oids := make([]string, 0, len(s.byOID))
	for oid := range s.byOID {
		oids = append(oids, oid)
	}

	var errs []error
	for start := 0; start < len(oids); start += gosnmp.MaxOids {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(start+gosnmp.MaxOids, len(oids))
		pkt, err := client.Get(oids[start:end])
		if err != nil {
			errs = append(errs, fmt.Errorf("get: %w", err))
			continue
		}
		if err := s.apply(r, pkt.Variables); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// apply stores each returned variable into its mapped field.
func (s *SNMPSource) apply(r *record.Record, vars []gosnmp.SnmpPDU) error {
	var errs []error
	for _, v := range vars {
		f, ok := s.byOID[normalizeOID(v.Name)]
		if !ok {
			snmpLog.Debug("ignoring unrequested variable", "oid", v.Name)
			continue
		}

		val, err := variableValue(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s (%s): %w", f.Field, f.OID, err))
			continue
		}
		if f.Scale != 0 {
			val *= f.Scale
		}
		if err := record.SetField(r, s.subsystem, f.Field, val); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// SNMP Client Creation
// =============================================================================

func (s *SNMPSource) createClient(ctx context.Context) *gosnmp.GoSNMP {
	port := s.cfg.Port
	if port == 0 {
		port = 161
	}

	timeout := s.cfg.Timeout
	if timeout == 0 {
		timeout = config.DefaultSNMPTimeout
	}

	retries := s.cfg.Retries
	if retries == 0 {
		retries = config.DefaultSNMPRetries
	}

	client := &gosnmp.GoSNMP{
		Context: ctx,
		Target:  s.cfg.Host,
		Port:    port,
		Timeout: timeout,
		Retries: retries,
		MaxOids: gosnmp.MaxOids,
	}

	if s.cfg.SecurityName != "" {
		client.Version = gosnmp.Version3
		client.SecurityModel = gosnmp.UserSecurityModel
		client.MsgFlags = msgFlags(s.cfg.SecurityLevel)
		client.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 s.cfg.SecurityName,
			AuthenticationProtocol:   authProtocol(s.cfg.AuthProtocol),
			AuthenticationPassphrase: s.cfg.AuthPassword,
			PrivacyProtocol:          privProtocol(s.cfg.PrivProtocol),
			PrivacyPassphrase:        s.cfg.PrivPassword,
		}
		client.ContextName = s.cfg.ContextName
	} else {
		client.Version = gosnmp.Version2c
		client.Community = s.cfg.Community
	}

	return client
}

// =============================================================================
// SNMPv3 Protocol Helpers
// =============================================================================

func msgFlags(level string) gosnmp.SnmpV3MsgFlags {
	switch level {
	case "authNoPriv":
		return gosnmp.AuthNoPriv
	case "authPriv":
		return gosnmp.AuthPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

func authProtocol(protocol string) gosnmp.SnmpV3AuthProtocol {
	switch protocol {
	case "MD5":
		return gosnmp.MD5
	case "SHA":
		return gosnmp.SHA
	case "SHA256":
		return gosnmp.SHA256
	case "SHA512":
		return gosnmp.SHA512
	default:
		return gosnmp.NoAuth
	}
}

func privProtocol(protocol string) gosnmp.SnmpV3PrivProtocol {
	switch protocol {
	case "DES":
		return gosnmp.DES
	case "AES":
		return gosnmp.AES
	case "AES256":
		return gosnmp.AES256
	default:
		return gosnmp.NoPriv
	}
}

// =============================================================================
// Value Helpers
// =============================================================================

// variableValue converts a numeric SNMP variable to float64. Octet strings
// are parsed as decimal text.
func variableValue(v gosnmp.SnmpPDU) (float64, error) {
	switch v.Type {
	case gosnmp.Integer, gosnmp.Counter32, gosnmp.Gauge32, gosnmp.Counter64,
		gosnmp.Uinteger32, gosnmp.TimeTicks:
		f, _ := new(big.Float).SetInt(gosnmp.ToBigInt(v.Value)).Float64()
		return f, nil
	case gosnmp.OpaqueFloat:
		return float64(v.Value.(float32)), nil
	case gosnmp.OpaqueDouble:
		return v.Value.(float64), nil
	case gosnmp.OctetString:
		b, _ := v.Value.([]byte)
		f, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
		if err != nil {
			return 0, errors.NewInvalidValue("octet string", string(b), "not a number")
		}
		return f, nil
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance:
		return 0, errors.NewNotFound("oid", v.Name)
	default:
		return 0, errors.NewInvalidValue("snmp type", v.Type, "unsupported")
	}
}

func normalizeOID(oid string) string {
	return "." + strings.TrimPrefix(oid, ".")
}
