package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"snmp-session/snmp"
)

type SNMPScraper interface {
	Connect() error
	Close() error
	Get([]string) (*gosnmp.SnmpPacket, error)
	GetNext([]string) (*gosnmp.SnmpPacket, error)
	GetBulk([]string, uint8, uint32) (*gosnmp.SnmpPacket, error)
	Set([]gosnmp.SnmpPDU) (*gosnmp.SnmpPacket, error)
	WalkAll(string) ([]gosnmp.SnmpPDU, error)
	BulkWalkAll(string) ([]gosnmp.SnmpPDU, error)
	SendTrap(gosnmp.SnmpTrap) (*gosnmp.SnmpPacket, error)
}

var _ SNMPScraper = (*GoSNMPWrapper)(nil)

// NewGoSNMP configures a handler from config. Transport and Context are
// not part of gosnmp.Handler and must already be set on client. usm, when
// non-nil, seeds the authoritative engine parameters discovered by an
// earlier request to the same agent.
func NewGoSNMP(config *ClientConfig, client gosnmp.Handler, usm *usmState) (*GoSNMPWrapper, error) {
	client.SetTarget(config.Target)
	client.SetPort(config.Port)
	client.SetTimeout(config.Timeout)
	client.SetRetries(config.Retries)
	client.SetExponentialTimeout(false)
	client.SetMaxRepetitions(config.MaxRepetitions)

	switch config.Version {
	case Version3:
		client.SetVersion(gosnmp.Version3)
	case Versionv2c:
		client.SetVersion(gosnmp.Version2c)
	case Version1:
		client.SetVersion(gosnmp.Version1)
	default:
		return nil, parseErr("invalid version %q, support (1/2c/3)", config.Version)
	}

	if config.Version != Version3 {
		client.SetCommunity(config.Community)
		return &GoSNMPWrapper{c: client}, nil
	}

	client.SetSecurityModel(gosnmp.UserSecurityModel)
	usp := &gosnmp.UsmSecurityParameters{
		UserName:                 config.SecName,
		AuthoritativeEngineID:    config.SecurityEngineID,
		AuthoritativeEngineBoots: config.EngineBoots,
		AuthoritativeEngineTime:  config.EngineTime,
	}
	if usm != nil && usp.AuthoritativeEngineID == "" {
		usp.AuthoritativeEngineID = usm.engineID
		usp.AuthoritativeEngineBoots = usm.boots
		usp.AuthoritativeEngineTime = usm.time
	}
	auth, priv := false, false

	// noAuthNoPriv|authNoPriv|authPriv
	switch strings.ToLower(config.SecLevel) {
	case "", "noauthnopriv":
		client.SetMsgFlags(gosnmp.NoAuthNoPriv)
	case "authnopriv":
		client.SetMsgFlags(gosnmp.AuthNoPriv)
		auth = true
	case "authpriv":
		client.SetMsgFlags(gosnmp.AuthPriv)
		auth = true
		priv = true
	default:
		return nil, parseErr("invalid secLevel %q, support (noAuthNoPriv|authNoPriv|authPriv)", config.SecLevel)
	}

	if auth {
		usp.AuthenticationPassphrase = config.AuthenticationPassphrase

		// ""|MD5|SHA|SHA-224|SHA-256|SHA-384|SHA-512
		switch strings.ReplaceAll(strings.ToLower(config.AuthenticationProtocol), "-", "") {
		case "":
			usp.AuthenticationProtocol = gosnmp.NoAuth
		case "md5":
			usp.AuthenticationProtocol = gosnmp.MD5
		case "sha":
			usp.AuthenticationProtocol = gosnmp.SHA
		case "sha224":
			usp.AuthenticationProtocol = gosnmp.SHA224
		case "sha256":
			usp.AuthenticationProtocol = gosnmp.SHA256
		case "sha384":
			usp.AuthenticationProtocol = gosnmp.SHA384
		case "sha512":
			usp.AuthenticationProtocol = gosnmp.SHA512
		default:
			return nil, parseErr("invalid authProtocol %q, support (\"\"|MD5|SHA|SHA-224|SHA-256|SHA-384|SHA-512)", config.AuthenticationProtocol)
		}
	}

	if priv {
		usp.PrivacyPassphrase = config.PrivacyPassphrase

		// ""|DES|AES|AES-192|AES-256|AES-192C|AES-256C
		switch strings.ReplaceAll(strings.ToLower(config.PrivacyProtocol), "-", "") {
		case "":
			usp.PrivacyProtocol = gosnmp.NoPriv
		case "des":
			usp.PrivacyProtocol = gosnmp.DES
		case "aes":
			usp.PrivacyProtocol = gosnmp.AES
		case "aes192":
			usp.PrivacyProtocol = gosnmp.AES192
		case "aes192c":
			usp.PrivacyProtocol = gosnmp.AES192C
		case "aes256":
			usp.PrivacyProtocol = gosnmp.AES256
		case "aes256c":
			usp.PrivacyProtocol = gosnmp.AES256C
		default:
			return nil, parseErr("invalid privProtocol %q, support (\"\"|DES|AES|AES-192|AES-256|AES-192C|AES-256C)", config.PrivacyProtocol)
		}
	}

	client.SetSecurityParameters(usp)
	client.SetContextName(config.ContextName)
	client.SetContextEngineID(config.ContextEngineID)

	return &GoSNMPWrapper{c: client}, nil
}

// GoSNMPWrapper implement SNMPScraper. Every error it returns is a
// *snmp.NativeError, or the context error when the request was cancelled.
type GoSNMPWrapper struct {
	c gosnmp.Handler
}

func (gs *GoSNMPWrapper) Connect() error {
	if err := gs.c.Connect(); err != nil {
		return gs.tag(err, "error connecting to target %s", gs.c.Target())
	}
	return nil
}

func (gs *GoSNMPWrapper) Close() error {
	return gs.c.Close()
}

func (gs *GoSNMPWrapper) Get(oids []string) (*gosnmp.SnmpPacket, error) {
	slog.Debug("Getting OIDS", "oids", oids)
	st := time.Now()

	results, err := gs.c.Get(oids)
	if err != nil {
		return nil, gs.tag(err, "error getting from target %s", gs.c.Target())
	}

	slog.Debug("Get of OIDs completed", "oids", oids, "duration", time.Since(st))
	return results, nil
}

func (gs *GoSNMPWrapper) GetNext(oids []string) (*gosnmp.SnmpPacket, error) {
	slog.Debug("Getting next OIDS", "oids", oids)
	st := time.Now()

	results, err := gs.c.GetNext(oids)
	if err != nil {
		return nil, gs.tag(err, "error getting next from target %s", gs.c.Target())
	}

	slog.Debug("GetNext of OIDs completed", "oids", oids, "duration", time.Since(st))
	return results, nil
}

func (gs *GoSNMPWrapper) GetBulk(oids []string, nonRepeaters uint8, maxRepetitions uint32) (*gosnmp.SnmpPacket, error) {
	if gs.c.Version() == gosnmp.Version1 {
		return nil, snmp.NewNativeError(snmp.NativePacket, "Cannot send V2 PDU on V1 session")
	}
	slog.Debug("Getting bulk OIDS", "oids", oids, "non_repeaters", nonRepeaters, "max_repetitions", maxRepetitions)
	st := time.Now()

	results, err := gs.c.GetBulk(oids, nonRepeaters, maxRepetitions)
	if err != nil {
		return nil, gs.tag(err, "error getting bulk from target %s", gs.c.Target())
	}

	slog.Debug("GetBulk of OIDs completed", "oids", oids, "duration", time.Since(st))
	return results, nil
}

func (gs *GoSNMPWrapper) Set(pdus []gosnmp.SnmpPDU) (*gosnmp.SnmpPacket, error) {
	slog.Debug("Setting OIDS", "count", len(pdus))
	st := time.Now()

	results, err := gs.c.Set(pdus)
	if err != nil {
		return nil, gs.tag(err, "error setting on target %s", gs.c.Target())
	}

	slog.Debug("Set of OIDs completed", "count", len(pdus), "duration", time.Since(st))
	return results, nil
}

func (gs *GoSNMPWrapper) WalkAll(oid string) ([]gosnmp.SnmpPDU, error) {
	slog.Debug("Walking subtree", "oid", oid)
	st := time.Now()

	results, err := gs.c.WalkAll(oid)
	if err != nil {
		return nil, gs.tag(err, "error walking target %s", gs.c.Target())
	}

	slog.Debug("Walk of subtree completed", "oid", oid, "duration", time.Since(st))
	return results, nil
}

func (gs *GoSNMPWrapper) BulkWalkAll(oid string) ([]gosnmp.SnmpPDU, error) {
	if gs.c.Version() == gosnmp.Version1 {
		return nil, snmp.NewNativeError(snmp.NativePacket, "Cannot send V2 PDU on V1 session")
	}
	slog.Debug("Bulk walking subtree", "oid", oid)
	st := time.Now()

	results, err := gs.c.BulkWalkAll(oid)
	if err != nil {
		return nil, gs.tag(err, "error bulk walking target %s", gs.c.Target())
	}

	slog.Debug("Bulk walk of subtree completed", "oid", oid, "duration", time.Since(st))
	return results, nil
}

func (gs *GoSNMPWrapper) SendTrap(trap gosnmp.SnmpTrap) (*gosnmp.SnmpPacket, error) {
	slog.Debug("Sending trap", "variables", len(trap.Variables), "inform", trap.IsInform)
	st := time.Now()

	result, err := gs.c.SendTrap(trap)
	if err != nil {
		return nil, gs.tag(err, "error sending trap to target %s", gs.c.Target())
	}

	slog.Debug("Trap sent", "duration", time.Since(st))
	return result, nil
}

// usm returns the authoritative engine parameters the handler ended up
// with, if it is an SNMPv3 handler.
func (gs *GoSNMPWrapper) usm() (*usmState, bool) {
	if gs.c.Version() != gosnmp.Version3 {
		return nil, false
	}
	usp, ok := gs.c.SecurityParameters().(*gosnmp.UsmSecurityParameters)
	if !ok || usp.AuthoritativeEngineID == "" {
		return nil, false
	}
	return &usmState{
		engineID: usp.AuthoritativeEngineID,
		boots:    usp.AuthoritativeEngineBoots,
		time:     usp.AuthoritativeEngineTime,
	}, true
}

// tag converts a gosnmp failure into a native error signal. Context
// cancellation is returned as is.
func (gs *GoSNMPWrapper) tag(err error, format string, args ...any) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	msg := func() string {
		return fmt.Sprintf(format, args...) + ": " + err.Error()
	}

	var (
		dnsErr *net.DNSError
		netErr net.Error
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return snmp.NewNativeError(snmp.NativeTimeout, "%s", msg())
	case errors.As(err, &dnsErr):
		return snmp.NewNativeError(snmp.NativeConnection, "%s", msg())
	case errors.As(err, &netErr) && netErr.Timeout():
		return snmp.NewNativeError(snmp.NativeTimeout, "%s", msg())
	case errors.As(err, &netErr):
		return snmp.NewNativeError(snmp.NativeConnection, "%s", msg())
	case isPacketError(err):
		return snmp.NewNativeError(snmp.NativePacket, "%s", msg())
	// gosnmp builds these two with fmt.Errorf and no sentinel to match.
	case strings.Contains(err.Error(), "request timeout"):
		return snmp.NewNativeError(snmp.NativeTimeout, "%s", msg())
	case strings.Contains(err.Error(), "marshal"):
		return snmp.NewNativeError(snmp.NativePacket, "%s", msg())
	default:
		return snmp.NewNativeError(snmp.NativeGeneric, "%s", msg())
	}
}

// packetErrors are the USM report and BER decoding failures gosnmp returns
// for a response it cannot accept.
var packetErrors = []error{
	gosnmp.ErrFloatBufferTooShort,
	gosnmp.ErrFloatTooLarge,
	gosnmp.ErrIntegerTooLarge,
	gosnmp.ErrInvalidOidLength,
	gosnmp.ErrInvalidPacketLength,
	gosnmp.ErrZeroByteBuffer,
	gosnmp.ErrZeroLenInteger,
	gosnmp.ErrDecryption,
	gosnmp.ErrInvalidMsgs,
	gosnmp.ErrNotInTimeWindow,
	gosnmp.ErrUnknownEngineID,
	gosnmp.ErrUnknownPDUHandlers,
	gosnmp.ErrUnknownReportPDU,
	gosnmp.ErrUnknownSecurityLevel,
	gosnmp.ErrUnknownSecurityModels,
	gosnmp.ErrUnknownUsername,
	gosnmp.ErrWrongDigest,
}

func isPacketError(err error) bool {
	for _, target := range packetErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
