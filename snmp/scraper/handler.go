package scraper

import (
	"time"

	"github.com/gosnmp/gosnmp"
)

// goSNMPHandler exposes a gosnmp.GoSNMP as a gosnmp.Handler. Unlike
// gosnmp.NewHandler it is built from a ClientConfig, so fields the Handler
// interface has no setter for (Transport, Context) reach the connection.
type goSNMPHandler struct {
	gosnmp.GoSNMP
}

var _ gosnmp.Handler = (*goSNMPHandler)(nil)

func newGoSNMPHandler(config *ClientConfig) gosnmp.Handler {
	return &goSNMPHandler{
		gosnmp.GoSNMP{
			Transport: config.Transport,
			Context:   config.Context,
			Port:      gosnmp.Default.Port,
			Community: gosnmp.Default.Community,
			Version:   gosnmp.Default.Version,
			Timeout:   gosnmp.Default.Timeout,
			Retries:   gosnmp.Default.Retries,
			MaxOids:   gosnmp.Default.MaxOids,
		},
	}
}

func (x *goSNMPHandler) Target() string {
	return x.GoSNMP.Target
}

func (x *goSNMPHandler) SetTarget(target string) {
	x.GoSNMP.Target = target
}

func (x *goSNMPHandler) Port() uint16 {
	return x.GoSNMP.Port
}

func (x *goSNMPHandler) SetPort(port uint16) {
	x.GoSNMP.Port = port
}

func (x *goSNMPHandler) Community() string {
	return x.GoSNMP.Community
}

func (x *goSNMPHandler) SetCommunity(community string) {
	x.GoSNMP.Community = community
}

func (x *goSNMPHandler) Version() gosnmp.SnmpVersion {
	return x.GoSNMP.Version
}

func (x *goSNMPHandler) SetVersion(version gosnmp.SnmpVersion) {
	x.GoSNMP.Version = version
}

func (x *goSNMPHandler) Timeout() time.Duration {
	return x.GoSNMP.Timeout
}

func (x *goSNMPHandler) SetTimeout(timeout time.Duration) {
	x.GoSNMP.Timeout = timeout
}

func (x *goSNMPHandler) Retries() int {
	return x.GoSNMP.Retries
}

func (x *goSNMPHandler) SetRetries(retries int) {
	x.GoSNMP.Retries = retries
}

func (x *goSNMPHandler) GetExponentialTimeout() bool {
	return x.GoSNMP.ExponentialTimeout
}

func (x *goSNMPHandler) SetExponentialTimeout(value bool) {
	x.GoSNMP.ExponentialTimeout = value
}

func (x *goSNMPHandler) Logger() gosnmp.Logger {
	return x.GoSNMP.Logger
}

func (x *goSNMPHandler) SetLogger(logger gosnmp.Logger) {
	x.GoSNMP.Logger = logger
}

func (x *goSNMPHandler) MaxOids() int {
	return x.GoSNMP.MaxOids
}

func (x *goSNMPHandler) SetMaxOids(maxOids int) {
	x.GoSNMP.MaxOids = maxOids
}

// MaxRepetitions wraps to 0 at max int32, as gosnmp does.
func (x *goSNMPHandler) MaxRepetitions() uint32 {
	return x.GoSNMP.MaxRepetitions & 0x7FFFFFFF
}

func (x *goSNMPHandler) SetMaxRepetitions(maxRepetitions uint32) {
	x.GoSNMP.MaxRepetitions = maxRepetitions & 0x7FFFFFFF
}

func (x *goSNMPHandler) NonRepeaters() int {
	return x.GoSNMP.NonRepeaters
}

func (x *goSNMPHandler) SetNonRepeaters(nonRepeaters int) {
	x.GoSNMP.NonRepeaters = nonRepeaters
}

func (x *goSNMPHandler) MsgFlags() gosnmp.SnmpV3MsgFlags {
	return x.GoSNMP.MsgFlags
}

func (x *goSNMPHandler) SetMsgFlags(msgFlags gosnmp.SnmpV3MsgFlags) {
	x.GoSNMP.MsgFlags = msgFlags
}

func (x *goSNMPHandler) SecurityModel() gosnmp.SnmpV3SecurityModel {
	return x.GoSNMP.SecurityModel
}

func (x *goSNMPHandler) SetSecurityModel(securityModel gosnmp.SnmpV3SecurityModel) {
	x.GoSNMP.SecurityModel = securityModel
}

func (x *goSNMPHandler) SecurityParameters() gosnmp.SnmpV3SecurityParameters {
	return x.GoSNMP.SecurityParameters
}

func (x *goSNMPHandler) SetSecurityParameters(securityParameters gosnmp.SnmpV3SecurityParameters) {
	x.GoSNMP.SecurityParameters = securityParameters
}

func (x *goSNMPHandler) ContextEngineID() string {
	return x.GoSNMP.ContextEngineID
}

func (x *goSNMPHandler) SetContextEngineID(contextEngineID string) {
	x.GoSNMP.ContextEngineID = contextEngineID
}

func (x *goSNMPHandler) ContextName() string {
	return x.GoSNMP.ContextName
}

func (x *goSNMPHandler) SetContextName(contextName string) {
	x.GoSNMP.ContextName = contextName
}

func (x *goSNMPHandler) Close() error {
	if x.GoSNMP.Conn == nil {
		return nil
	}
	return x.GoSNMP.Conn.Close()
}
