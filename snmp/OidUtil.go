package snmp

import (
	"fmt"
	"strings"
)

// OidReference is an OID split into its name (symbolic or numeric) and the
// instance index that follows it. Index is "" when there is none.
type OidReference struct {
	Root  string
	Index string
}

// String joins root and index back into a single OID.
func (o OidReference) String() string {
	return AddIndex(o.Root, o.Index)
}

type oidMatcher func(raw string) (OidReference, bool)

// Order matters: a module-qualified name also looks like a dotted
// symbolic one once the "::" is treated as a label character.
var oidMatchers = []oidMatcher{
	matchRootOid,
	matchNumericOid,
	matchModuleOid,
	matchDottedOid,
	matchBareOid,
}

// NormalizeOid splits a textual OID into root and index. Recognized forms,
// tried in order: "." alone, numeric (".1.3.6.1.2.1.1.1.0", never split),
// module qualified ("SNMPv2-MIB::sysDescr.0"), dotted symbolic
// (".iso.org.dod.internet.mgmt.mib-2.system.sysContact.0") and a bare name
// ("sysContact.0"). Anything else is returned as the root with an empty
// index. An explicit index is used verbatim and suppresses splitting.
func NormalizeOid(raw string, explicitIndex ...string) OidReference {
	if len(explicitIndex) > 0 {
		return OidReference{Root: raw, Index: explicitIndex[0]}
	}
	for _, match := range oidMatchers {
		if ref, ok := match(raw); ok {
			return ref
		}
	}
	return OidReference{Root: raw}
}

func matchRootOid(raw string) (OidReference, bool) {
	return OidReference{Root: raw}, raw == "."
}

func matchNumericOid(raw string) (OidReference, bool) {
	if !isNumericOid(raw) {
		return OidReference{}, false
	}
	return OidReference{Root: raw}, true
}

func matchModuleOid(raw string) (OidReference, bool) {
	i := strings.Index(raw, "::")
	if i <= 0 {
		return OidReference{}, false
	}
	module, rest := raw[:i], raw[i+2:]
	if !isLabel(module, false) {
		return OidReference{}, false
	}

	name, index, _ := strings.Cut(rest, ".")
	if !isLabel(name, false) || !hasLetter(name) {
		return OidReference{}, false
	}
	return OidReference{Root: module + "::" + name, Index: index}, true
}

func matchDottedOid(raw string) (OidReference, bool) {
	labels, index, ok := splitTrailingIndex(strings.TrimPrefix(raw, "."))
	if !ok || len(labels) < 2 {
		return OidReference{}, false
	}
	for _, label := range labels {
		if !isLabel(label, true) {
			return OidReference{}, false
		}
	}
	if !hasLetter(strings.Join(labels, "")) {
		return OidReference{}, false
	}
	return OidReference{Root: strings.TrimSuffix(raw, "."+index), Index: index}, true
}

func matchBareOid(raw string) (OidReference, bool) {
	name, index, found := strings.Cut(raw, ".")
	if !isLabel(name, true) || !hasLetter(name) {
		return OidReference{}, false
	}
	if found && !isNumericOid(index) {
		return OidReference{}, false
	}
	return OidReference{Root: name, Index: index}, true
}

// splitTrailingIndex separates the trailing run of all-digit labels from s.
func splitTrailingIndex(s string) (labels []string, index string, ok bool) {
	parts := strings.Split(s, ".")
	n := len(parts)
	for n > 0 && isDigits(parts[n-1]) {
		n--
	}
	if n == 0 {
		return nil, "", false
	}
	return parts[:n], strings.Join(parts[n:], "."), true
}

func isNumericOid(s string) bool {
	s = strings.TrimPrefix(s, ".")
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, ".") {
		if !isDigits(part) {
			return false
		}
	}
	return true
}

// isLabel accepts letters, digits, '-' and '_', plus ':' when colons is set.
func isLabel(s string, colons bool) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case isAlnum(r), r == '-', r == '_':
		case r == ':' && colons:
		default:
			return false
		}
	}
	return true
}

func hasLetter(s string) bool {
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
			return true
		}
	}
	return false
}

func AddIndex(oid, index string) string {
	if index == "" {
		return oid
	}

	if strings.HasPrefix(index, ".") {
		return fmt.Sprintf("%s%s", oid, index)
	}

	return fmt.Sprintf("%s.%s", oid, index)
}

// GetIndex returns the part of subOid below parentOid, or "" when subOid is
// not inside parentOid's subtree.
func GetIndex(parentOid, subOid string) string {
	if !strings.HasPrefix(subOid, parentOid+".") {
		return ""
	}

	return subOid[len(parentOid)+1:]
}
