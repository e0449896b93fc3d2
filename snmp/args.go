package snmp

import (
	"fmt"
	"strconv"
	"strings"
)

// Command line flags understood by the engine, net-snmp style.
const (
	flagAuthPassphrase    = "-A"
	flagAuthProtocol      = "-a"
	flagBootsTime         = "-Z"
	flagCommunity         = "-c"
	flagContext           = "-n"
	flagContextEngineID   = "-E"
	flagLoadMibs          = "-m"
	flagMibDirectories    = "-M"
	flagPrivacyPassphrase = "-X"
	flagPrivacyProtocol   = "-x"
	flagRetries           = "-r"
	flagSecurityEngineID  = "-e"
	flagSecurityLevel     = "-l"
	flagSecurityUsername  = "-u"
	flagMaxRepeaters      = "-Cr"
	flagTimeout           = "-t"
	flagVersion           = "-v"
	flagOutput            = "-O"
)

// RenderArgs serializes cfg into the engine's argument vector. The token
// order is fixed: the parameter flags in the order listed above, each pair
// omitted when its value is empty, then one "-O <letter>" pair per enabled
// display toggle (e, f, n, t), then the host[:port] token.
//
// cfg must be valid; an invalid configuration is a programming error.
func RenderArgs(cfg *Config) []string {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("snmp: rendering invalid config: %v", err))
	}

	var (
		args = make([]string, 0, 32)
		usm  USM
		comm Community
	)
	switch sec := cfg.Security.(type) {
	case USM:
		usm = sec
	case Community:
		comm = sec
	}

	add := func(flag, value string) {
		if value != "" {
			args = append(args, flag, value)
		}
	}

	add(flagAuthPassphrase, usm.AuthPassphrase)
	add(flagAuthProtocol, usm.AuthProtocol.String())
	add(flagBootsTime, usm.BootsTime)
	add(flagCommunity, comm.Community)
	add(flagContext, usm.Context)
	add(flagContextEngineID, usm.ContextEngineID)
	add(flagLoadMibs, strings.Join(cfg.LoadMibs, ":"))
	add(flagMibDirectories, strings.Join(cfg.MibDirectories, ":"))
	add(flagPrivacyPassphrase, usm.PrivacyPassphrase)
	add(flagPrivacyProtocol, usm.PrivacyProtocol.String())
	add(flagRetries, strconv.FormatUint(uint64(cfg.Retries), 10))
	add(flagSecurityEngineID, usm.SecurityEngineID)
	if cfg.Version == Version3 {
		add(flagSecurityLevel, usm.Level.String())
	}
	add(flagSecurityUsername, usm.Username)
	if cfg.MaxRepeaters > 0 {
		args = append(args, flagMaxRepeaters+strconv.FormatUint(uint64(cfg.MaxRepeaters), 10))
	}
	add(flagTimeout, FormatSeconds(cfg.Timeout.Seconds()))
	add(flagVersion, string(cfg.Version))

	display := cfg.Display
	for _, opt := range []struct {
		on     bool
		letter string
	}{
		{display.PrintEnumsNumerically, "e"},
		{display.PrintFullOids, "f"},
		{display.PrintOidsNumerically, "n"},
		{display.PrintTimeticksNumerically, "t"},
	} {
		if opt.on {
			args = append(args, flagOutput, opt.letter)
		}
	}

	return append(args, cfg.Endpoint().String())
}

// FormatSeconds renders seconds as a plain decimal: 1, 0.5, 2.25.
func FormatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', -1, 64)
}
