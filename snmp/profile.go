package snmp

import (
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// profile is the YAML form of a Config. SNMPv3 fields are flat, as in the
// session constructor, and must stay unset for SNMPv1/v2c profiles.
type profile struct {
	Hostname       string       `yaml:"hostname"`
	Port           yamlPort     `yaml:"port"`
	Version        *yamlVersion `yaml:"version"`
	Community      *string      `yaml:"community"`
	Retries        *uint        `yaml:"retries"`
	Timeout        *float64     `yaml:"timeout"`
	LoadMibs       []string     `yaml:"load_mibs"`
	MibDirectories []string     `yaml:"mib_directories"`
	Display        Display      `yaml:"display"`
	MaxRepeaters   uint         `yaml:"max_repeaters"`

	SecurityUsername  string `yaml:"security_username"`
	SecurityLevel     string `yaml:"security_level"`
	AuthProtocol      string `yaml:"auth_protocol"`
	AuthPassphrase    string `yaml:"auth_passphrase"`
	PrivacyProtocol   string `yaml:"privacy_protocol"`
	PrivacyPassphrase string `yaml:"privacy_passphrase"`
	SecurityEngineID  string `yaml:"security_engine_id"`
	ContextEngineID   string `yaml:"context_engine_id"`
	Context           string `yaml:"context"`
	BootsTime         string `yaml:"boots_time"`
}

// yamlVersion keeps the integer/string distinction: 2 means 2c, "2" is
// rejected.
type yamlVersion Version

func (v *yamlVersion) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return parseErrorf("line %d: version must be a scalar", node.Line)
	}
	var (
		ver Version
		err error
	)
	if node.Tag == "!!int" {
		var n int
		if err = node.Decode(&n); err != nil {
			return err
		}
		ver, err = VersionFromInt(n)
	} else {
		ver, err = ParseVersion(node.Value)
	}
	if err != nil {
		return err
	}
	*v = yamlVersion(ver)
	return nil
}

// yamlPort accepts 161 or "161".
type yamlPort string

func (p *yamlPort) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return parseErrorf("line %d: port must be a scalar", node.Line)
	}
	*p = yamlPort(node.Value)
	return nil
}

// LoadProfiles decodes a YAML document mapping profile names to session
// configurations. Every profile is validated.
func LoadProfiles(r io.Reader) (map[string]Config, error) {
	var raw map[string]profile
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]Config{}, nil
		}
		var classified *Error
		if errors.As(err, &classified) {
			return nil, err
		}
		return nil, &Error{Kind: KindParse, Msg: fmt.Sprintf("decode profiles: %v", err), Err: err}
	}

	configs := make(map[string]Config, len(raw))
	for name, p := range raw {
		cfg, err := p.config()
		if err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
		configs[name] = cfg
	}
	return configs, nil
}

func (p *profile) config() (Config, error) {
	cfg := DefaultConfig()
	if p.Hostname != "" {
		cfg.Hostname = p.Hostname
	}
	cfg.Port = string(p.Port)
	if p.Version != nil {
		cfg.Version = Version(*p.Version)
	}
	if p.Retries != nil {
		cfg.Retries = *p.Retries
	}
	if p.Timeout != nil {
		if *p.Timeout < 0 {
			return Config{}, parseErrorf("invalid timeout %s", FormatSeconds(*p.Timeout))
		}
		cfg.Timeout = time.Duration(*p.Timeout * float64(time.Second))
	}
	cfg.LoadMibs = p.LoadMibs
	cfg.MibDirectories = p.MibDirectories
	cfg.Display = p.Display
	cfg.MaxRepeaters = p.MaxRepeaters

	usm, err := p.usm()
	if err != nil {
		return Config{}, err
	}
	if cfg.Version.UsesCommunity() {
		if usm != (USM{}) {
			return Config{}, parseErrorf("SNMPv3 security parameters are not valid for version %q", cfg.Version)
		}
		community := DefaultCommunity
		if p.Community != nil {
			community = *p.Community
		}
		cfg.Security = Community{Community: community}
	} else {
		if p.Community != nil {
			return Config{}, parseErrorf("community is not valid for version %q", cfg.Version)
		}
		cfg.Security = usm
	}

	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (p *profile) usm() (USM, error) {
	level, err := ParseSecurityLevel(p.SecurityLevel)
	if err != nil {
		return USM{}, err
	}
	auth, err := ParseAuthProtocol(p.AuthProtocol)
	if err != nil {
		return USM{}, err
	}
	priv, err := ParsePrivacyProtocol(p.PrivacyProtocol)
	if err != nil {
		return USM{}, err
	}
	return USM{
		Username:          p.SecurityUsername,
		Level:             level,
		AuthProtocol:      auth,
		AuthPassphrase:    p.AuthPassphrase,
		PrivacyProtocol:   priv,
		PrivacyPassphrase: p.PrivacyPassphrase,
		SecurityEngineID:  p.SecurityEngineID,
		ContextEngineID:   p.ContextEngineID,
		Context:           p.Context,
		BootsTime:         p.BootsTime,
	}, nil
}
