package scraper

import (
	"encoding/hex"
	"net"
	"strconv"
	"strings"

	"github.com/gosnmp/gosnmp"
	gosmitypes "github.com/sleepinggenius2/gosmi/types"

	"snmp-session/snmp"
	"snmp-session/snmp/parse"
)

// resolveOid turns a textual OID into the numeric form gosnmp sends.
func resolveOid(tree *parse.Tree, oid string) (string, error) {
	resolved, err := tree.Resolve(oid)
	if err != nil {
		return "", snmp.NewNativeError(snmp.NativeUnknownObjectID, "Unknown Object Identifier (%s)", oid)
	}
	return resolved, nil
}

func resolveOids(tree *parse.Tree, oids []string) ([]string, error) {
	out := make([]string, 0, len(oids))
	for _, oid := range oids {
		resolved, err := resolveOid(tree, oid)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}

// setPDUs builds variable bindings from "oid type value" triples.
func setPDUs(tree *parse.Tree, triples []string) ([]gosnmp.SnmpPDU, error) {
	if len(triples)%3 != 0 {
		return nil, parseErr("expected oid type value triples, got %d arguments", len(triples))
	}
	pdus := make([]gosnmp.SnmpPDU, 0, len(triples)/3)
	for i := 0; i < len(triples); i += 3 {
		pdu, err := setPDU(tree, triples[i], triples[i+1], triples[i+2])
		if err != nil {
			return nil, err
		}
		pdus = append(pdus, pdu)
	}
	return pdus, nil
}

func setPDU(tree *parse.Tree, oid, typ, value string) (gosnmp.SnmpPDU, error) {
	name, err := resolveOid(tree, oid)
	if err != nil {
		return gosnmp.SnmpPDU{}, err
	}
	mib, _, _ := tree.FindByOID(name)

	if typ == "=" {
		if typ = mibTypeLetter(mib); typ == "" {
			return gosnmp.SnmpPDU{}, snmp.NewNativeError(snmp.NativeUndeterminedType, "%s: Bad variable type (could not determine type from the MIB)", oid)
		}
	}

	pdu := gosnmp.SnmpPDU{Name: name}
	badValue := func() (gosnmp.SnmpPDU, error) {
		return gosnmp.SnmpPDU{}, parseErr("%s: Bad value %q for type %s", oid, value, typ)
	}

	switch typ {
	case "i":
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			if n, ok := enumValue(mib, value); ok {
				pdu.Type, pdu.Value = gosnmp.Integer, n
				return pdu, nil
			}
			return badValue()
		}
		pdu.Type, pdu.Value = gosnmp.Integer, int(n)
	case "u", "c", "t":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return badValue()
		}
		pdu.Type = map[string]gosnmp.Asn1BER{"u": gosnmp.Gauge32, "c": gosnmp.Counter32, "t": gosnmp.TimeTicks}[typ]
		pdu.Value = uint32(n)
	case "C":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return badValue()
		}
		pdu.Type, pdu.Value = gosnmp.Counter64, n
	case "a":
		ip := net.ParseIP(value)
		if ip == nil || ip.To4() == nil {
			return badValue()
		}
		pdu.Type, pdu.Value = gosnmp.IPAddress, ip.To4().String()
	case "o":
		target, err := resolveOid(tree, value)
		if err != nil {
			return gosnmp.SnmpPDU{}, err
		}
		pdu.Type, pdu.Value = gosnmp.ObjectIdentifier, target
	case "s":
		pdu.Type, pdu.Value = gosnmp.OctetString, value
	case "x":
		raw, err := hex.DecodeString(strings.Join(strings.Fields(value), ""))
		if err != nil {
			return badValue()
		}
		pdu.Type, pdu.Value = gosnmp.OctetString, raw
	case "d":
		var raw []byte
		for _, part := range strings.FieldsFunc(value, func(r rune) bool { return r == '.' || r == ' ' }) {
			b, err := strconv.ParseUint(part, 10, 8)
			if err != nil {
				return badValue()
			}
			raw = append(raw, byte(b))
		}
		pdu.Type, pdu.Value = gosnmp.OctetString, raw
	case "n":
		pdu.Type, pdu.Value = gosnmp.Null, nil
	default:
		return gosnmp.SnmpPDU{}, parseErr("%s: Bad object type: %s", oid, typ)
	}
	return pdu, nil
}

// mibTypeLetter picks the SET type letter for a node from its MIB syntax.
func mibTypeLetter(mib *parse.MibObject) string {
	if mib == nil {
		return ""
	}
	switch mib.Type {
	case "Counter32":
		return "c"
	case "Counter64":
		return "C"
	case "Gauge32", "Unsigned32":
		return "u"
	case "TimeTicks":
		return "t"
	case "IpAddress":
		return "a"
	}
	switch gosmitypes.BaseType(mib.SmiType) {
	case gosmitypes.BaseTypeInteger32, gosmitypes.BaseTypeEnum:
		return "i"
	case gosmitypes.BaseTypeUnsigned32:
		return "u"
	case gosmitypes.BaseTypeUnsigned64:
		return "C"
	case gosmitypes.BaseTypeOctetString:
		return "s"
	case gosmitypes.BaseTypeObjectIdentifier:
		return "o"
	default:
		return ""
	}
}

func enumValue(mib *parse.MibObject, name string) (int, bool) {
	if mib == nil {
		return 0, false
	}
	for value, label := range mib.Syntax {
		if label == name {
			return value, true
		}
	}
	return 0, false
}
