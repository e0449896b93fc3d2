package scraper

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"snmp-session/set"
	"snmp-session/snmp"
)

const (
	Version1   = "1"
	Versionv2c = "2c"
	Version3   = "3"

	defaultPort     = 161
	defaultTrapPort = 162
	// Same as net-snmp when no -Cr is given.
	defaultMaxRepetitions = 10
)

// ClientConfig is the argument vector rendered by snmp.RenderArgs, parsed
// back into typed settings.
type ClientConfig struct {
	Target    string
	Port      uint16
	Transport string
	Version   string
	// version 1 && 2
	Community string

	// version 3
	// optional value: noAuthNoPriv|authNoPriv|authPriv
	SecLevel string
	SecName  string
	// optional value: ""|MD5|SHA|SHA-224|SHA-256|SHA-384|SHA-512
	AuthenticationProtocol   string
	AuthenticationPassphrase string
	// optional value: ""|DES|AES|AES-192|AES-256|AES-192C|AES-256C
	PrivacyProtocol   string
	PrivacyPassphrase string
	// raw engine ids, hex decoded
	SecurityEngineID string
	ContextEngineID  string
	ContextName      string
	EngineBoots      uint32
	EngineTime       uint32

	Timeout        time.Duration
	Retries        int
	MaxRepetitions uint32

	LoadMibs       []string
	MibDirectories []string
	// -O letters: e, f, n, t
	Output set.Set[string]

	Context context.Context
}

// mibKey identifies the MIB set a config needs.
func (c *ClientConfig) mibKey() string {
	return strings.Join(c.LoadMibs, ":") + "|" + strings.Join(c.MibDirectories, ":")
}

func parseErr(format string, args ...any) error {
	return snmp.NewNativeError(snmp.NativeParse, format, args...)
}

// ParseArgs parses a net-snmp style argument vector. The last non-flag
// token is the agent address.
func ParseArgs(args []string) (*ClientConfig, error) {
	cfg := &ClientConfig{
		Version: Version3,
		Retries: snmp.DefaultRetries,
		Timeout: snmp.DefaultTimeout,
		Output:  set.New[string](),
	}

	var host string
	for i := 0; i < len(args); i++ {
		flag := args[i]
		if strings.HasPrefix(flag, "-Cr") {
			n, err := strconv.ParseUint(flag[3:], 10, 32)
			if err != nil {
				return nil, parseErr("invalid max repetitions %q", flag)
			}
			cfg.MaxRepetitions = uint32(n)
			continue
		}
		if !strings.HasPrefix(flag, "-") {
			if host != "" {
				return nil, parseErr("unexpected argument %q", flag)
			}
			host = flag
			continue
		}
		if i+1 >= len(args) {
			return nil, parseErr("missing value for %s", flag)
		}
		i++
		if err := cfg.apply(flag, args[i]); err != nil {
			return nil, err
		}
	}

	if host == "" {
		return nil, parseErr("no agent address given")
	}
	if err := cfg.setHost(host); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ClientConfig) apply(flag, value string) error {
	switch flag {
	case "-A":
		c.AuthenticationPassphrase = value
	case "-a":
		c.AuthenticationProtocol = value
	case "-Z":
		boots, t, ok := strings.Cut(value, ",")
		b, err1 := strconv.ParseUint(boots, 10, 32)
		tm, err2 := strconv.ParseUint(t, 10, 32)
		if !ok || err1 != nil || err2 != nil {
			return parseErr("invalid boots time %q", value)
		}
		c.EngineBoots, c.EngineTime = uint32(b), uint32(tm)
	case "-c":
		c.Community = value
	case "-n":
		c.ContextName = value
	case "-E":
		id, err := decodeEngineID(value)
		if err != nil {
			return err
		}
		c.ContextEngineID = id
	case "-m":
		c.LoadMibs = strings.Split(value, ":")
	case "-M":
		c.MibDirectories = strings.Split(value, ":")
	case "-X":
		c.PrivacyPassphrase = value
	case "-x":
		c.PrivacyProtocol = value
	case "-r":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return parseErr("invalid retries %q", value)
		}
		c.Retries = n
	case "-e":
		id, err := decodeEngineID(value)
		if err != nil {
			return err
		}
		c.SecurityEngineID = id
	case "-l":
		c.SecLevel = value
	case "-u":
		c.SecName = value
	case "-t":
		secs, err := strconv.ParseFloat(value, 64)
		if err != nil || secs < 0 {
			return parseErr("invalid timeout %q", value)
		}
		c.Timeout = time.Duration(secs * float64(time.Second))
	case "-v":
		switch value {
		case Version1, Versionv2c, Version3:
			c.Version = value
		default:
			return parseErr("invalid version %q, support (1/2c/3)", value)
		}
	case "-O":
		for _, letter := range value {
			switch letter {
			case 'e', 'f', 'n', 't':
				c.Output.Add(string(letter))
			default:
				return parseErr("unsupported output option %q", letter)
			}
		}
	default:
		return parseErr("unknown option %s", flag)
	}
	return nil
}

func (c *ClientConfig) setHost(host string) error {
	ep, err := snmp.ParseEndpoint(host, "")
	if err != nil {
		return parseErr("%v", err)
	}
	transport, address := snmp.StripTransport(ep.Hostname)
	switch strings.ToLower(transport) {
	case "", "udp":
		c.Transport = "udp"
	case "udp6", "udpv6", "udpipv6":
		c.Transport = "udp6"
	case "tcp":
		c.Transport = "tcp"
	case "tcp6", "tcpv6", "tcpipv6":
		c.Transport = "tcp6"
	default:
		return parseErr("unsupported transport %q", transport)
	}
	c.Target = address

	if ep.Port != "" {
		port, err := strconv.ParseUint(ep.Port, 10, 16)
		if err != nil || port == 0 {
			return parseErr("invalid port %q", ep.Port)
		}
		c.Port = uint16(port)
	}
	return nil
}

func decodeEngineID(id string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(id), "0x"))
	if err != nil {
		return "", parseErr("invalid engine id %q: %v", id, err)
	}
	return string(raw), nil
}

func (c *ClientConfig) String() string {
	return fmt.Sprintf("target=%s port=%d transport=%s version=%s", c.Target, c.Port, c.Transport, c.Version)
}
