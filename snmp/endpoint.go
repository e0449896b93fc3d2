package snmp

import (
	"net/netip"
	"strings"
)

// Endpoint is a hostname (with any transport prefix and IPv6 brackets kept
// as written) and a separate port.
type Endpoint struct {
	Hostname string
	Port     string
}

// String renders the host token handed to the engine. An unbracketed IPv6
// hostname is bracketed when a port follows it.
func (e Endpoint) String() string {
	if e.Port == "" {
		return e.Hostname
	}
	host := e.Hostname
	if transport, addr := StripTransport(host); !strings.Contains(host, "[") && isIPv6(addr) {
		host = "[" + addr + "]"
		if transport != "" {
			host = transport + ":" + host
		}
	}
	return host + ":" + e.Port
}

// ParseEndpoint splits raw into hostname and embedded port. Accepted forms
// include "localhost", "localhost:161", "2001:db8::1", "[2001:db8::]:161"
// and "udp6:[2001:db8::]:162". A port embedded in raw together with a
// non-empty explicitPort is a conflict.
func ParseEndpoint(raw, explicitPort string) (Endpoint, error) {
	var (
		ep  Endpoint
		err error
	)
	if strings.Contains(raw, "[") {
		ep, err = parseBracketed(raw)
	} else {
		ep, err = parseBare(raw)
	}
	if err != nil {
		return Endpoint{}, err
	}

	if ep.Port != "" && explicitPort != "" {
		return Endpoint{}, parseErrorf("provide either a hostname with the port included (e.g. localhost:1234, [2001:db8::]:161) or hostname and port separately, not both: %q, port %q", raw, explicitPort)
	}
	if ep.Port == "" {
		ep.Port = explicitPort
	}
	return ep, nil
}

func parseBracketed(raw string) (Endpoint, error) {
	open := strings.IndexByte(raw, '[')
	closing := strings.IndexByte(raw, ']')
	if closing < open || strings.Count(raw, "[") != 1 || strings.Count(raw, "]") != 1 {
		return Endpoint{}, parseErrorf("malformed bracketed address %q", raw)
	}

	if prefix := raw[:open]; prefix != "" && !isTransportPrefix(prefix) {
		return Endpoint{}, parseErrorf("malformed transport prefix %q in %q", prefix, raw)
	}

	body := raw[open+1 : closing]
	if !isIPv6(body) {
		return Endpoint{}, parseErrorf("%q is not a valid IPv6 address", body)
	}

	ep := Endpoint{Hostname: raw[:closing+1]}
	switch rest := raw[closing+1:]; {
	case rest == "":
	case rest[0] == ':' && isDigits(rest[1:]):
		ep.Port = rest[1:]
	default:
		return Endpoint{}, parseErrorf("unexpected %q after bracketed address in %q", rest, raw)
	}
	return ep, nil
}

func parseBare(raw string) (Endpoint, error) {
	if strings.Contains(raw, "]") {
		return Endpoint{}, parseErrorf("malformed bracketed address %q", raw)
	}

	// Unbracketed IPv6 literals carry no port, with or without a prefix.
	if isIPv6(raw) {
		return Endpoint{Hostname: raw}, nil
	}
	if i := strings.IndexByte(raw, ':'); i > 0 && isTransportPrefix(raw[:i+1]) && isIPv6(raw[i+1:]) {
		return Endpoint{Hostname: raw}, nil
	}

	i := strings.LastIndexByte(raw, ':')
	if i < 0 || !isDigits(raw[i+1:]) {
		return Endpoint{Hostname: raw}, nil
	}
	return Endpoint{Hostname: raw[:i], Port: raw[i+1:]}, nil
}

// isTransportPrefix matches "udp:", "udp6:", "tcp6:" and the like.
func isTransportPrefix(s string) bool {
	if len(s) < 2 || s[len(s)-1] != ':' {
		return false
	}
	for _, r := range s[:len(s)-1] {
		if !isAlnum(r) {
			return false
		}
	}
	return true
}

// StripTransport removes a leading transport prefix and IPv6 brackets from
// a hostname, returning the prefix without its colon.
func StripTransport(hostname string) (transport, address string) {
	address = hostname
	if open := strings.IndexByte(address, '['); open >= 0 {
		if open > 0 {
			transport = strings.TrimSuffix(address[:open], ":")
		}
		address = strings.TrimSuffix(address[open+1:], "]")
		return transport, address
	}
	if i := strings.IndexByte(address, ':'); i > 0 && isTransportPrefix(address[:i+1]) {
		if rest := address[i+1:]; !isIPv6(address) && rest != "" {
			return address[:i], rest
		}
	}
	return "", address
}

func isIPv6(s string) bool {
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Is6()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isAlnum(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}
