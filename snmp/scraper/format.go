package scraper

import (
	"encoding/binary"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gosnmp/gosnmp"
	gosmitypes "github.com/sleepinggenius2/gosmi/types"

	"snmp-session/snmp"
	"snmp-session/snmp/parse"
)

// formatter renders PDUs the way net-snmp prints them, honouring the -O
// letters of the request.
type formatter struct {
	tree             *parse.Tree
	numericEnums     bool
	fullOids         bool
	numericOids      bool
	numericTimeticks bool
}

func newFormatter(cfg *ClientConfig, tree *parse.Tree) *formatter {
	return &formatter{
		tree:             tree,
		numericEnums:     cfg.Output.Has("e"),
		fullOids:         cfg.Output.Has("f"),
		numericOids:      cfg.Output.Has("n"),
		numericTimeticks: cfg.Output.Has("t"),
	}
}

func (f *formatter) rows(pdus []gosnmp.SnmpPDU) []snmp.ResultRow {
	rows := make([]snmp.ResultRow, 0, len(pdus))
	for i := range pdus {
		rows = append(rows, f.row(&pdus[i]))
	}
	return rows
}

func (f *formatter) row(pdu *gosnmp.SnmpPDU) snmp.ResultRow {
	mib, _, _ := f.tree.FindByOID(pdu.Name)
	oid, index := f.oid(pdu.Name)
	typ, value := f.value(mib, pdu)
	return snmp.ResultRow{OID: oid, Index: index, Type: typ, Value: value}
}

// oid splits a numeric OID into the rendered node name and its index.
// Without a matching MIB node the whole numeric OID is the name.
func (f *formatter) oid(name string) (string, string) {
	name = "." + strings.TrimPrefix(name, ".")
	mib, index, ok := f.tree.FindByOID(name)
	switch {
	case !ok:
		return name, ""
	case f.numericOids:
		return "." + mib.OID, index
	case f.fullOids:
		return f.tree.FullPath(mib.OID), index
	default:
		return mib.QualifiedName(), index
	}
}

func (f *formatter) oidString(name string) string {
	return snmp.AddIndex(f.oid(name))
}

func (f *formatter) value(mib *parse.MibObject, pdu *gosnmp.SnmpPDU) (string, string) {
	switch pdu.Type {
	case gosnmp.Integer:
		n := int(gosnmp.ToBigInt(pdu.Value).Int64())
		if mib != nil && len(mib.Syntax) > 0 && !f.numericEnums {
			return "INTEGER", enumAsString(n, mib.Syntax)
		}
		return "INTEGER", strconv.Itoa(n)
	case gosnmp.OctetString:
		return f.octets(mib, pdu.Value)
	case gosnmp.ObjectIdentifier:
		value, _ := pdu.Value.(string)
		return "OID", f.oidString(value)
	case gosnmp.IPAddress:
		return "IpAddress", fmt.Sprintf("%v", pdu.Value)
	case gosnmp.Counter32:
		return "Counter32", gosnmp.ToBigInt(pdu.Value).String()
	case gosnmp.Gauge32:
		return "Gauge32", gosnmp.ToBigInt(pdu.Value).String()
	case gosnmp.Uinteger32:
		return "UInteger32", gosnmp.ToBigInt(pdu.Value).String()
	case gosnmp.Counter64:
		return "Counter64", gosnmp.ToBigInt(pdu.Value).String()
	case gosnmp.TimeTicks:
		ticks := gosnmp.ToBigInt(pdu.Value).Uint64()
		if f.numericTimeticks {
			return "Timeticks", strconv.FormatUint(ticks, 10)
		}
		return "Timeticks", fmt.Sprintf("(%d) %s", ticks, timeticksAsString(ticks))
	case gosnmp.Opaque, gosnmp.OpaqueFloat, gosnmp.OpaqueDouble:
		return "Opaque", fmt.Sprintf("%v", pdu.Value)
	case gosnmp.Null:
		return "NULL", ""
	case gosnmp.NoSuchObject:
		return snmp.TypeNoSuchObject, "No Such Object available on this agent at this OID"
	case gosnmp.NoSuchInstance:
		return snmp.TypeNoSuchInstance, "No Such Instance currently exists at this OID"
	case gosnmp.EndOfMibView:
		return snmp.TypeEndOfMibView, "No more variables left in this MIB View (It is past the end of the MIB tree)"
	default:
		return pdu.Type.String(), fmt.Sprintf("%v", pdu.Value)
	}
}

func (f *formatter) octets(mib *parse.MibObject, value interface{}) (string, string) {
	bytes, ok := value.([]byte)
	if !ok {
		if s, isString := value.(string); isString {
			bytes = []byte(s)
		}
	}

	if mib != nil {
		if gosmitypes.BaseType(mib.SmiType) == gosmitypes.BaseTypeBits {
			return "BITS", hexString(bytes) + bitsAsString(bytes, mib.Syntax)
		}
		if str, ok := bytesOidsAsString(bytes, mib.Type); ok {
			return "STRING", str
		}
	}
	if isPrintable(bytes) {
		return "STRING", string(bytes)
	}
	return "Hex-STRING", hexString(bytes)
}

func isPrintable(bytes []byte) bool {
	if !utf8.Valid(bytes) {
		return false
	}
	for _, r := range string(bytes) {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func hexString(bytes []byte) string {
	parts := make([]string, len(bytes))
	for i, b := range bytes {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

// bytesOidsAsString renders octet strings whose textual convention has a
// well known display form.
func bytesOidsAsString(bytes []byte, typ string) (string, bool) {
	switch typ {
	case "MacAddress", "PhysAddress":
		if len(bytes) == 0 {
			return "", false
		}
		parts := make([]string, len(bytes))
		for i, o := range bytes {
			parts[i] = fmt.Sprintf("%02X", o)
		}
		return strings.Join(parts, ":"), true
	case "InetAddress", "InetAddressIPv4", "InetAddressIPv6":
		ip := toIp(bytes)
		return ip, ip != ""
	case "TAddress":
		if len(bytes) != 6 {
			return "", false
		}
		return toTAddress(bytes), true
	case "DisplayString", "SnmpAdminString":
		return strings.ToValidUTF8(string(bytes), "�"), true
	case "DateAndTime":
		if len(bytes) < 7 {
			return "", false
		}
		return fmt.Sprintf("%d-%d-%d,%d:%d:%d",
			int(binary.BigEndian.Uint16(bytes[0:2])),
			time.Month(bytes[2]),
			int(bytes[3]),
			int(bytes[4]),
			int(bytes[5]),
			int(bytes[6]),
		), true
	default:
		return "", false
	}
}

func toIp(bytes []byte) string {
	switch len(bytes) {
	case 4:
		return toIpv4(bytes)
	case 16:
		return toIpv6(bytes)
	default:
		return ""
	}
}

func toIpv4(bytes []byte) string {
	parts := make([]string, 4)
	for i, o := range bytes {
		parts[i] = strconv.Itoa(int(o))
	}
	return strings.Join(parts, ".")
}

func toIpv6(bytes []byte) string {
	parts := make([]interface{}, 16)
	for i, o := range bytes {
		parts[i] = o
	}
	return fmt.Sprintf("%02X%02X:%02X%02X:%02X%02X:%02X%02X:%02X%02X:%02X%02X:%02X%02X:%02X%02X", parts...)
}

func toTAddress(bytes []byte) string {
	ip := toIp(bytes[:4])
	port := (int(bytes[4]) << 8) + int(bytes[5])
	return fmt.Sprintf("%s/%d", ip, port)
}

func enumAsString(value int, enumValues map[int]string) string {
	if name, ok := enumValues[value]; ok {
		return fmt.Sprintf("%s(%d)", name, value)
	}
	return strconv.Itoa(value)
}

func bitsAsString(bytes []byte, bitsValues map[int]string) string {
	bits := make([]int, 0, len(bitsValues))
	for k := range bitsValues {
		bits = append(bits, k)
	}
	slices.Sort(bits)

	var ret string
	for _, k := range bits {
		// most significant byte most significant bit, then most significant byte 2nd most significant bit
		if k < len(bytes)*8 && (bytes[k/8]&(128>>(k%8))) != 0 {
			ret += fmt.Sprintf(" %s(%d)", bitsValues[k], k)
		}
	}
	return ret
}

// timeticksAsString renders hundredths of a second as net-snmp does:
// "0:20:34.56" or "2 days, 3:04:05.06".
func timeticksAsString(ticks uint64) string {
	centis := ticks % 100
	secs := ticks / 100
	days, secs := secs/86400, secs%86400
	hours, secs := secs/3600, secs%3600
	minutes, secs := secs/60, secs%60

	clock := fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, secs, centis)
	switch days {
	case 0:
		return clock
	case 1:
		return "1 day, " + clock
	default:
		return fmt.Sprintf("%d days, %s", days, clock)
	}
}
