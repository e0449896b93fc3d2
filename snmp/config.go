package snmp

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Version is the canonical SNMP version token: "1", "2c" or "3".
type Version string

const (
	Version1   Version = "1"
	Versionv2c Version = "2c"
	Version3   Version = "3"
)

// ParseVersion accepts the canonical tokens only. The integer alias 2 for
// 2c is handled by VersionFromInt.
func ParseVersion(s string) (Version, error) {
	switch v := Version(strings.ToLower(s)); v {
	case Version1, Versionv2c, Version3:
		return v, nil
	}
	return "", parseErrorf("invalid version %q, support (1/2c/3)", s)
}

// VersionFromInt maps 1, 2 and 3 onto their canonical versions.
func VersionFromInt(n int) (Version, error) {
	switch n {
	case 1:
		return Version1, nil
	case 2:
		return Versionv2c, nil
	case 3:
		return Version3, nil
	}
	return "", parseErrorf("invalid version %d, support (1/2/3)", n)
}

func (v Version) valid() bool {
	return v == Version1 || v == Versionv2c || v == Version3
}

// UsesCommunity reports whether v authenticates with a community string.
func (v Version) UsesCommunity() bool {
	return v == Version1 || v == Versionv2c
}

// SecurityLevel is the SNMPv3 USM message security level.
type SecurityLevel int

const (
	NoAuthNoPriv SecurityLevel = iota
	AuthNoPriv
	AuthPriv
)

var securityLevelNames = []string{"noAuthNoPriv", "authNoPriv", "authPriv"}

func (l SecurityLevel) String() string {
	if l < 0 || int(l) >= len(securityLevelNames) {
		return "SecurityLevel(" + strconv.Itoa(int(l)) + ")"
	}
	return securityLevelNames[l]
}

// ParseSecurityLevel accepts noAuthNoPriv|authNoPriv|authPriv, any case.
func ParseSecurityLevel(s string) (SecurityLevel, error) {
	switch strings.ToLower(s) {
	case "", "noauthnopriv":
		return NoAuthNoPriv, nil
	case "authnopriv":
		return AuthNoPriv, nil
	case "authpriv":
		return AuthPriv, nil
	}
	return 0, parseErrorf("invalid security level %q, support (noAuthNoPriv|authNoPriv|authPriv)", s)
}

// AuthProtocol is the USM authentication protocol. AuthNone renders as an
// absent -a flag.
type AuthProtocol int

const (
	AuthNone AuthProtocol = iota
	MD5
	SHA
	SHA224
	SHA256
	SHA384
	SHA512
)

var authProtocolNames = []string{"", "MD5", "SHA", "SHA-224", "SHA-256", "SHA-384", "SHA-512"}

func (p AuthProtocol) String() string {
	if p < 0 || int(p) >= len(authProtocolNames) {
		return "AuthProtocol(" + strconv.Itoa(int(p)) + ")"
	}
	return authProtocolNames[p]
}

// ParseAuthProtocol accepts ""|none|MD5|SHA|SHA-224|SHA-256|SHA-384|SHA-512;
// the hyphen is optional.
func ParseAuthProtocol(s string) (AuthProtocol, error) {
	switch strings.ReplaceAll(strings.ToLower(s), "-", "") {
	case "", "none":
		return AuthNone, nil
	case "md5":
		return MD5, nil
	case "sha", "sha1":
		return SHA, nil
	case "sha224":
		return SHA224, nil
	case "sha256":
		return SHA256, nil
	case "sha384":
		return SHA384, nil
	case "sha512":
		return SHA512, nil
	}
	return 0, parseErrorf("invalid auth protocol %q, support (\"\"|MD5|SHA|SHA-224|SHA-256|SHA-384|SHA-512)", s)
}

// PrivacyProtocol is the USM privacy protocol. PrivNone renders as an absent
// -x flag.
type PrivacyProtocol int

const (
	PrivNone PrivacyProtocol = iota
	DES
	AES
	AES192
	AES256
	AES192C
	AES256C
)

var privacyProtocolNames = []string{"", "DES", "AES", "AES-192", "AES-256", "AES-192C", "AES-256C"}

func (p PrivacyProtocol) String() string {
	if p < 0 || int(p) >= len(privacyProtocolNames) {
		return "PrivacyProtocol(" + strconv.Itoa(int(p)) + ")"
	}
	return privacyProtocolNames[p]
}

// ParsePrivacyProtocol accepts ""|none|DES|AES|AES-192|AES-256|AES-192C|AES-256C;
// the hyphen is optional.
func ParsePrivacyProtocol(s string) (PrivacyProtocol, error) {
	switch strings.ReplaceAll(strings.ToLower(s), "-", "") {
	case "", "none":
		return PrivNone, nil
	case "des":
		return DES, nil
	case "aes", "aes128":
		return AES, nil
	case "aes192":
		return AES192, nil
	case "aes256":
		return AES256, nil
	case "aes192c":
		return AES192C, nil
	case "aes256c":
		return AES256C, nil
	}
	return 0, parseErrorf("invalid privacy protocol %q, support (\"\"|DES|AES|AES-192|AES-256|AES-192C|AES-256C)", s)
}

// Display holds the independent output toggles rendered as -O flags.
type Display struct {
	PrintEnumsNumerically     bool `yaml:"print_enums_numerically"`
	PrintFullOids             bool `yaml:"print_full_oids"`
	PrintOidsNumerically      bool `yaml:"print_oids_numerically"`
	PrintTimeticksNumerically bool `yaml:"print_timeticks_numerically"`
}

// Security is the per-version credential set: Community for SNMPv1/v2c,
// USM for SNMPv3.
type Security interface {
	securityModel() string
}

// Community carries SNMPv1/v2c credentials.
type Community struct {
	Community string
}

func (Community) securityModel() string { return "community" }

// USM carries SNMPv3 user-based security model parameters.
type USM struct {
	Username          string
	Level             SecurityLevel
	AuthProtocol      AuthProtocol
	AuthPassphrase    string
	PrivacyProtocol   PrivacyProtocol
	PrivacyPassphrase string
	// SecurityEngineID and ContextEngineID are hex strings.
	SecurityEngineID string
	ContextEngineID  string
	Context          string
	// BootsTime is "<boots>,<time>".
	BootsTime string
}

func (USM) securityModel() string { return "usm" }

func (u USM) validate() error {
	if u.Level < NoAuthNoPriv || u.Level > AuthPriv {
		return parseErrorf("invalid security level %v", u.Level)
	}
	if u.AuthProtocol < AuthNone || u.AuthProtocol > SHA512 {
		return parseErrorf("invalid auth protocol %v", u.AuthProtocol)
	}
	if u.PrivacyProtocol < PrivNone || u.PrivacyProtocol > AES256C {
		return parseErrorf("invalid privacy protocol %v", u.PrivacyProtocol)
	}

	hasAuth, hasPriv := u.AuthProtocol != AuthNone, u.PrivacyProtocol != PrivNone
	switch u.Level {
	case NoAuthNoPriv:
		if hasAuth || hasPriv {
			return parseErrorf("security level noAuthNoPriv does not allow auth protocol %q or privacy protocol %q", u.AuthProtocol, u.PrivacyProtocol)
		}
	case AuthNoPriv:
		if !hasAuth {
			return parseErrorf("security level authNoPriv requires an auth protocol")
		}
		if hasPriv {
			return parseErrorf("security level authNoPriv does not allow privacy protocol %q", u.PrivacyProtocol)
		}
	case AuthPriv:
		if !hasAuth || !hasPriv {
			return parseErrorf("security level authPriv requires both an auth and a privacy protocol")
		}
	}

	if err := validateEngineID("security engine id", u.SecurityEngineID); err != nil {
		return err
	}
	if err := validateEngineID("context engine id", u.ContextEngineID); err != nil {
		return err
	}
	if u.BootsTime != "" {
		boots, t, ok := strings.Cut(u.BootsTime, ",")
		if !ok || !isDigits(boots) || !isDigits(t) {
			return parseErrorf("invalid boots time %q, expected <boots>,<time>", u.BootsTime)
		}
	}
	return nil
}

func validateEngineID(what, id string) error {
	if id == "" {
		return nil
	}
	raw := strings.TrimPrefix(strings.ToLower(id), "0x")
	if _, err := hex.DecodeString(raw); err != nil || raw == "" {
		return parseErrorf("invalid %s %q, expected a hex string", what, id)
	}
	return nil
}

const (
	DefaultHostname  = "localhost"
	DefaultCommunity = "public"
	DefaultRetries   = 3
	DefaultTimeout   = time.Second
)

// Config is the full parameter set for one SNMP endpoint and credential
// combination.
type Config struct {
	Hostname string
	// Port is empty when the engine default applies.
	Port     string
	Version  Version
	Security Security

	Retries uint
	Timeout time.Duration

	LoadMibs       []string
	MibDirectories []string
	Display        Display

	// MaxRepeaters sets GETBULK max-repetitions; 0 leaves the engine default.
	MaxRepeaters uint
}

// DefaultConfig mirrors the classic session defaults: SNMPv3 noAuthNoPriv
// against localhost, 3 retries, 1 second timeout.
func DefaultConfig() Config {
	return Config{
		Hostname: DefaultHostname,
		Version:  Version3,
		Security: USM{},
		Retries:  DefaultRetries,
		Timeout:  DefaultTimeout,
	}
}

// NewCommunityConfig returns defaults for an SNMPv1 or SNMPv2c endpoint.
func NewCommunityConfig(hostname string, version Version, community string) Config {
	c := DefaultConfig()
	c.Hostname = hostname
	c.Version = version
	c.Security = Community{Community: community}
	return c
}

// NewUSMConfig returns defaults for an SNMPv3 endpoint.
func NewUSMConfig(hostname string, usm USM) Config {
	c := DefaultConfig()
	c.Hostname = hostname
	c.Security = usm
	return c
}

// FormatPort renders a numeric port in the Config's string form.
func FormatPort(port uint16) string {
	return strconv.FormatUint(uint64(port), 10)
}

// Clone returns a deep copy.
func (c *Config) Clone() Config {
	out := *c
	if c.LoadMibs != nil {
		out.LoadMibs = append([]string(nil), c.LoadMibs...)
	}
	if c.MibDirectories != nil {
		out.MibDirectories = append([]string(nil), c.MibDirectories...)
	}
	return out
}

// USM returns the SNMPv3 parameters, if c carries them.
func (c *Config) USM() (USM, bool) {
	u, ok := c.Security.(USM)
	return u, ok
}

// Community returns the community string, if c carries one.
func (c *Config) Community() (string, bool) {
	comm, ok := c.Security.(Community)
	return comm.Community, ok
}

// Validate checks every cross-field rule. It does not modify c.
func (c *Config) Validate() error {
	if !c.Version.valid() {
		return parseErrorf("invalid version %q, support (1/2c/3)", c.Version)
	}
	if c.Hostname == "" {
		return parseErrorf("hostname is required")
	}
	if _, err := ParseEndpoint(c.Hostname, c.Port); err != nil {
		return err
	}
	if c.Port != "" {
		if n, err := strconv.ParseUint(c.Port, 10, 16); err != nil || n == 0 {
			return parseErrorf("invalid port %q", c.Port)
		}
	}
	if c.Timeout < 0 {
		return parseErrorf("invalid timeout %s", c.Timeout)
	}
	for _, mib := range c.LoadMibs {
		if mib == "" || strings.Contains(mib, ":") {
			return parseErrorf("invalid mib name %q", mib)
		}
	}

	switch sec := c.Security.(type) {
	case Community:
		if !c.Version.UsesCommunity() {
			return parseErrorf("community credentials are only valid for SNMPv1/v2c, version is %q", c.Version)
		}
	case USM:
		if c.Version != Version3 {
			return parseErrorf("SNMPv3 security parameters are not valid for version %q", c.Version)
		}
		return sec.validate()
	case nil:
		return parseErrorf("security parameters are required for version %q", c.Version)
	default:
		return parseErrorf("unsupported security parameters %T", sec)
	}
	return nil
}

// normalize moves a port embedded in the hostname into Port.
func (c *Config) normalize() error {
	ep, err := ParseEndpoint(c.Hostname, c.Port)
	if err != nil {
		return err
	}
	c.Hostname, c.Port = ep.Hostname, ep.Port
	return nil
}

// Endpoint returns the host token parts.
func (c *Config) Endpoint() Endpoint {
	return Endpoint{Hostname: c.Hostname, Port: c.Port}
}
