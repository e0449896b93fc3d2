package snmp

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ResultRow is one variable binding as rendered by the engine.
type ResultRow struct {
	OID   string
	Index string
	Type  string
	Value string
}

func (r ResultRow) String() string {
	return fmt.Sprintf("oid: %s, index: %s, type: %s, value: %s", r.OID, r.Index, r.Type, r.Value)
}

// Missing reports whether the agent answered that the node is absent.
func (r ResultRow) Missing() bool {
	return r.Type == TypeNoSuchObject || r.Type == TypeNoSuchInstance
}

var (
	enumValueRe    = regexp.MustCompile(`\((\d+)\)`)
	leadingValueRe = regexp.MustCompile(`^\s*(-?\d+)`)
)

// numericPart pulls the number out of renderings such as "up(1)",
// "(1234) 0:00:12.34" or "60000 milli-seconds".
func numericPart(value string) string {
	if m := enumValueRe.FindStringSubmatch(value); m != nil {
		return m[1]
	}
	if m := leadingValueRe.FindStringSubmatch(value); m != nil {
		return m[1]
	}
	return value
}

// Converted returns the row's value as a Go value chosen by its type:
// int for INTEGER, uint32 for Gauge32/Counter32/Timeticks, uint64 for
// Counter64, []byte for Hex-STRING and OCTETSTR, string otherwise.
func (r ResultRow) Converted() (any, error) {
	switch strings.ToLower(r.Type) {
	case "integer", "integer32":
		n, err := strconv.ParseInt(numericPart(r.Value), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%s conversion error: %w", r.Type, err)
		}
		return int(n), nil
	case "gauge32", "counter32", "timeticks", "unsigned32":
		n, err := strconv.ParseUint(numericPart(r.Value), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%s conversion error: %w", r.Type, err)
		}
		return uint32(n), nil
	case "counter64":
		n, err := strconv.ParseUint(numericPart(r.Value), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s conversion error: %w", r.Type, err)
		}
		return n, nil
	case "hex-string":
		out := []byte{}
		for _, part := range strings.Fields(r.Value) {
			if len(part) > 2 {
				return nil, fmt.Errorf("%s conversion error: malformed hex part %q", r.Type, part)
			}
			if len(part) == 1 {
				part = "0" + part
			}
			b, err := hex.DecodeString(part)
			if err != nil {
				return nil, fmt.Errorf("%s conversion error: malformed hex part %q", r.Type, part)
			}
			out = append(out, b...)
		}
		return out, nil
	case "octetstr":
		return []byte(r.Value), nil
	case "string", "oid", "objid", "objidentity", "ipaddress", "network address", "opaque",
		"bitstring", "bits", "nsapaddress", "null", "other",
		"nosuchobject", "nosuchinstance", "endofmibview":
		return r.Value, nil
	}
	return nil, fmt.Errorf("unknown type conversion for %q", r.Type)
}
