package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/gosnmp/gosnmp"
	gosmitypes "github.com/sleepinggenius2/gosmi/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	snmpmock "github.com/gosnmp/gosnmp/mocks"

	"snmp-session/snmp"
	"snmp-session/snmp/parse"
)

func newTestEngine(t *testing.T, version gosnmp.SnmpVersion) (*Engine, *snmpmock.MockHandler) {
	ctrl := gomock.NewController(t)
	m := snmpmock.NewMockHandler(ctrl)

	m.EXPECT().SetTarget(gomock.Any()).AnyTimes()
	m.EXPECT().SetPort(gomock.Any()).AnyTimes()
	m.EXPECT().SetTimeout(gomock.Any()).AnyTimes()
	m.EXPECT().SetRetries(gomock.Any()).AnyTimes()
	m.EXPECT().SetExponentialTimeout(gomock.Any()).AnyTimes()
	m.EXPECT().SetMaxRepetitions(gomock.Any()).AnyTimes()
	m.EXPECT().SetVersion(gomock.Any()).AnyTimes()
	m.EXPECT().SetCommunity(gomock.Any()).AnyTimes()
	m.EXPECT().SetSecurityModel(gomock.Any()).AnyTimes()
	m.EXPECT().SetMsgFlags(gomock.Any()).AnyTimes()
	m.EXPECT().SetSecurityParameters(gomock.Any()).AnyTimes()
	m.EXPECT().SetContextName(gomock.Any()).AnyTimes()
	m.EXPECT().SetContextEngineID(gomock.Any()).AnyTimes()
	m.EXPECT().Target().Return("localhost").AnyTimes()
	m.EXPECT().Version().Return(version).AnyTimes()
	m.EXPECT().Connect().Return(nil).AnyTimes()
	m.EXPECT().Close().Return(nil).AnyTimes()

	e := NewEngine()
	e.newSnmpClient = func(*ClientConfig) gosnmp.Handler { return m }
	return e, m
}

func communityArgs(t *testing.T, version snmp.Version, display snmp.Display) []string {
	cfg := snmp.NewCommunityConfig("localhost:11161", version, "public")
	cfg.Display = display
	require.NoError(t, cfg.Validate())
	return snmp.RenderArgs(&cfg)
}

func mibArgs(t *testing.T, e *Engine, display snmp.Display) []string {
	tree := parse.NewTree()
	for _, mib := range []*parse.MibObject{
		{Name: "iso", Module: "SNMPv2-SMI", OID: "1"},
		{Name: "org", Module: "SNMPv2-SMI", OID: "1.3", ParentOID: "1"},
		{Name: "dod", Module: "SNMPv2-SMI", OID: "1.3.6", ParentOID: "1.3"},
		{Name: "internet", Module: "SNMPv2-SMI", OID: "1.3.6.1", ParentOID: "1.3.6"},
		{Name: "mgmt", Module: "SNMPv2-SMI", OID: "1.3.6.1.2", ParentOID: "1.3.6.1"},
		{Name: "mib-2", Module: "SNMPv2-SMI", OID: "1.3.6.1.2.1", ParentOID: "1.3.6.1.2"},
		{Name: "system", Module: "SNMPv2-MIB", OID: "1.3.6.1.2.1.1", ParentOID: "1.3.6.1.2.1"},
		{Name: "sysDescr", Module: "SNMPv2-MIB", OID: "1.3.6.1.2.1.1.1", ParentOID: "1.3.6.1.2.1.1", Type: "DisplayString"},
		{Name: "sysUpTime", Module: "SNMPv2-MIB", OID: "1.3.6.1.2.1.1.3", ParentOID: "1.3.6.1.2.1.1", Type: "TimeTicks"},
		{Name: "sysContact", Module: "SNMPv2-MIB", OID: "1.3.6.1.2.1.1.4", ParentOID: "1.3.6.1.2.1.1", Type: "DisplayString", SmiType: int(gosmitypes.BaseTypeOctetString)},
		{Name: "ifAdminStatus", Module: "IF-MIB", OID: "1.3.6.1.2.1.2.2.1.7", Type: "Enumeration", SmiType: int(gosmitypes.BaseTypeEnum),
			Syntax: map[int]string{1: "up", 2: "down", 3: "testing"}},
	} {
		tree.Add(mib)
	}
	e.loadMibs = func(dirs, modules []string) (*parse.Tree, error) {
		return tree, nil
	}

	cfg := snmp.NewCommunityConfig("localhost", snmp.Versionv2c, "public")
	cfg.LoadMibs = []string{"SNMPv2-MIB", "IF-MIB"}
	cfg.Display = display
	return snmp.RenderArgs(&cfg)
}

func nativeKind(t *testing.T, err error) snmp.NativeKind {
	t.Helper()
	var native *snmp.NativeError
	require.ErrorAs(t, err, &native)
	return native.Kind
}

func TestEngine_Get_V2cMissingObjectIsRow(t *testing.T) {
	e, m := newTestEngine(t, gosnmp.Version2c)
	m.EXPECT().Get([]string{".1.3.6.1.2.1.1.1.0", ".1.3.6.1.2.1.1.99.0"}).Return(&gosnmp.SnmpPacket{
		Variables: []gosnmp.SnmpPDU{
			{Name: ".1.3.6.1.2.1.1.1.0", Type: gosnmp.OctetString, Value: []byte("Linux agent 5.15")},
			{Name: ".1.3.6.1.2.1.1.99.0", Type: gosnmp.NoSuchObject},
		},
	}, nil)

	rows, err := e.Execute(context.Background(), snmp.OpGet,
		communityArgs(t, snmp.Versionv2c, snmp.Display{}),
		[]string{".1.3.6.1.2.1.1.1.0", "1.3.6.1.2.1.1.99.0"})
	require.NoError(t, err)

	assert.Equal(t, []snmp.ResultRow{
		{OID: ".1.3.6.1.2.1.1.1.0", Type: "STRING", Value: "Linux agent 5.15"},
		{OID: ".1.3.6.1.2.1.1.99.0", Type: snmp.TypeNoSuchObject, Value: "No Such Object available on this agent at this OID"},
	}, rows)
	assert.True(t, rows[1].Missing())
}

func TestEngine_Get_V1NoSuchName(t *testing.T) {
	e, m := newTestEngine(t, gosnmp.Version1)
	m.EXPECT().Get([]string{".1.3.6.1.2.1.1.99.0"}).Return(&gosnmp.SnmpPacket{
		Error:      gosnmp.NoSuchName,
		ErrorIndex: 1,
		Variables: []gosnmp.SnmpPDU{
			{Name: ".1.3.6.1.2.1.1.99.0", Type: gosnmp.Null},
		},
	}, nil)

	_, err := e.Execute(context.Background(), snmp.OpGet,
		communityArgs(t, snmp.Version1, snmp.Display{}), []string{".1.3.6.1.2.1.1.99.0"})
	require.Error(t, err)
	assert.Equal(t, snmp.NativeNoSuchName, nativeKind(t, err))
	assert.Contains(t, err.Error(), ".1.3.6.1.2.1.1.99.0")
	assert.ErrorIs(t, snmp.Classify(err), snmp.ErrNoSuchName)
}

func TestEngine_Get_PacketError(t *testing.T) {
	e, m := newTestEngine(t, gosnmp.Version2c)
	m.EXPECT().Get(gomock.Any()).Return(&gosnmp.SnmpPacket{Error: gosnmp.GenErr}, nil)

	_, err := e.Execute(context.Background(), snmp.OpGet,
		communityArgs(t, snmp.Versionv2c, snmp.Display{}), []string{".1.3.6.1.2.1.1.1.0"})
	assert.Equal(t, snmp.NativePacket, nativeKind(t, err))
}

func TestEngine_Get_TransportErrors(t *testing.T) {
	tests := map[string]struct {
		err  error
		want snmp.NativeKind
	}{
		"retries exhausted": {err: errors.New("request timeout (after 3 retries)"), want: snmp.NativeTimeout},
		"deadline":          {err: context.DeadlineExceeded, want: snmp.NativeTimeout},
		"other":             {err: errors.New("wrong digests, possible wrong authentication key"), want: snmp.NativeGeneric},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			e, m := newTestEngine(t, gosnmp.Version2c)
			m.EXPECT().Get(gomock.Any()).Return(nil, tc.err)

			_, err := e.Execute(context.Background(), snmp.OpGet,
				communityArgs(t, snmp.Versionv2c, snmp.Display{}), []string{".1.3.6.1.2.1.1.1.0"})
			assert.Equal(t, tc.want, nativeKind(t, err))
		})
	}

	t.Run("timeouts are connection errors", func(t *testing.T) {
		e, m := newTestEngine(t, gosnmp.Version2c)
		m.EXPECT().Get(gomock.Any()).Return(nil, errors.New("request timeout (after 3 retries)"))

		_, err := e.Execute(context.Background(), snmp.OpGet,
			communityArgs(t, snmp.Versionv2c, snmp.Display{}), []string{".1.3.6.1.2.1.1.1.0"})
		classified := snmp.Classify(err)
		assert.ErrorIs(t, classified, snmp.ErrTimeout)
		assert.ErrorIs(t, classified, snmp.ErrConnection)
	})

	t.Run("cancellation passes through", func(t *testing.T) {
		e, m := newTestEngine(t, gosnmp.Version2c)
		m.EXPECT().Get(gomock.Any()).Return(nil, context.Canceled)

		_, err := e.Execute(context.Background(), snmp.OpGet,
			communityArgs(t, snmp.Versionv2c, snmp.Display{}), []string{".1.3.6.1.2.1.1.1.0"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestEngine_UnknownSymbol(t *testing.T) {
	e, _ := newTestEngine(t, gosnmp.Version2c)

	_, err := e.Execute(context.Background(), snmp.OpGet,
		communityArgs(t, snmp.Versionv2c, snmp.Display{}), []string{"sysDescr.0"})
	assert.Equal(t, snmp.NativeUnknownObjectID, nativeKind(t, err))
	assert.ErrorIs(t, snmp.Classify(err), snmp.ErrUnknownObjectID)
}

func TestEngine_GetBulk(t *testing.T) {
	e, m := newTestEngine(t, gosnmp.Version2c)
	m.EXPECT().GetBulk([]string{".1.3.6.1.2.1.1"}, uint8(1), uint32(5)).Return(&gosnmp.SnmpPacket{
		Variables: []gosnmp.SnmpPDU{
			{Name: ".1.3.6.1.2.1.1.3.0", Type: gosnmp.TimeTicks, Value: uint32(123456)},
		},
	}, nil)

	rows, err := e.Execute(context.Background(), snmp.OpGetBulk,
		communityArgs(t, snmp.Versionv2c, snmp.Display{}), []string{"-Cn1", "-Cr5", ".1.3.6.1.2.1.1"})
	require.NoError(t, err)
	assert.Equal(t, []snmp.ResultRow{
		{OID: ".1.3.6.1.2.1.1.3.0", Type: "Timeticks", Value: "(123456) 0:20:34.56"},
	}, rows)
}

func TestEngine_GetBulk_V1(t *testing.T) {
	e, _ := newTestEngine(t, gosnmp.Version1)

	_, err := e.Execute(context.Background(), snmp.OpGetBulk,
		communityArgs(t, snmp.Version1, snmp.Display{}), []string{".1.3.6.1.2.1.1"})
	require.Error(t, err)
	assert.Equal(t, snmp.NativePacket, nativeKind(t, err))
	assert.Equal(t, "Cannot send V2 PDU on V1 session", err.Error())
}

func TestEngine_Set(t *testing.T) {
	e, m := newTestEngine(t, gosnmp.Version2c)
	want := []gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.2.1.1.4.0", Type: gosnmp.OctetString, Value: "ops@example.com"},
		{Name: ".1.3.6.1.4.1.9999.1.0", Type: gosnmp.Integer, Value: 5},
		{Name: ".1.3.6.1.4.1.9999.2.0", Type: gosnmp.OctetString, Value: []byte{0xde, 0xad}},
		{Name: ".1.3.6.1.4.1.9999.3.0", Type: gosnmp.Gauge32, Value: uint32(7)},
		{Name: ".1.3.6.1.4.1.9999.4.0", Type: gosnmp.IPAddress, Value: "10.0.0.1"},
	}
	m.EXPECT().Set(want).Return(&gosnmp.SnmpPacket{Variables: want[:1]}, nil)

	rows, err := e.Execute(context.Background(), snmp.OpSet,
		communityArgs(t, snmp.Versionv2c, snmp.Display{}), []string{
			".1.3.6.1.2.1.1.4.0", "s", "ops@example.com",
			".1.3.6.1.4.1.9999.1.0", "i", "5",
			".1.3.6.1.4.1.9999.2.0", "x", "DE AD",
			".1.3.6.1.4.1.9999.3.0", "u", "7",
			".1.3.6.1.4.1.9999.4.0", "a", "10.0.0.1",
		})
	require.NoError(t, err)
	assert.Equal(t, []snmp.ResultRow{{OID: ".1.3.6.1.2.1.1.4.0", Type: "STRING", Value: "ops@example.com"}}, rows)
}

func TestEngine_Set_UndeterminedType(t *testing.T) {
	e, _ := newTestEngine(t, gosnmp.Version2c)

	_, err := e.Execute(context.Background(), snmp.OpSet,
		communityArgs(t, snmp.Versionv2c, snmp.Display{}), []string{".1.3.6.1.4.1.9999.1.0", "=", "5"})
	assert.Equal(t, snmp.NativeUndeterminedType, nativeKind(t, err))
	assert.ErrorIs(t, snmp.Classify(err), snmp.ErrUndeterminedType)
}

func TestEngine_Set_TypeFromMib(t *testing.T) {
	e, m := newTestEngine(t, gosnmp.Version2c)
	m.EXPECT().Set([]gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.2.1.1.4.0", Type: gosnmp.OctetString, Value: "noc"},
		{Name: ".1.3.6.1.2.1.2.2.1.7.3", Type: gosnmp.Integer, Value: 2},
	}).Return(&gosnmp.SnmpPacket{}, nil)

	_, err := e.Execute(context.Background(), snmp.OpSet, mibArgs(t, e, snmp.Display{}), []string{
		"SNMPv2-MIB::sysContact.0", "=", "noc",
		"ifAdminStatus.3", "=", "down",
	})
	require.NoError(t, err)
}

func TestEngine_Set_BadValue(t *testing.T) {
	e, _ := newTestEngine(t, gosnmp.Version2c)

	_, err := e.Execute(context.Background(), snmp.OpSet,
		communityArgs(t, snmp.Versionv2c, snmp.Display{}), []string{".1.3.6.1.4.1.9999.1.0", "i", "five"})
	assert.Equal(t, snmp.NativeParse, nativeKind(t, err))
}

func TestEngine_Walk_Formatting(t *testing.T) {
	pdus := []gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.2.1.1.1.0", Type: gosnmp.OctetString, Value: []byte("router")},
		{Name: ".1.3.6.1.2.1.1.3.0", Type: gosnmp.TimeTicks, Value: uint32(8640123)},
		{Name: ".1.3.6.1.2.1.2.2.1.7.2", Type: gosnmp.Integer, Value: 1},
		{Name: ".1.3.6.1.2.1.2.2.1.99.1", Type: gosnmp.OctetString, Value: []byte{0x00, 0x1a, 0xff}},
	}

	tests := map[string]struct {
		display snmp.Display
		want    []snmp.ResultRow
	}{
		"default": {
			want: []snmp.ResultRow{
				{OID: "SNMPv2-MIB::sysDescr", Index: "0", Type: "STRING", Value: "router"},
				{OID: "SNMPv2-MIB::sysUpTime", Index: "0", Type: "Timeticks", Value: "(8640123) 1 day, 0:00:01.23"},
				{OID: "IF-MIB::ifAdminStatus", Index: "2", Type: "INTEGER", Value: "up(1)"},
				{OID: "SNMPv2-SMI::mib-2", Index: "2.2.1.99.1", Type: "Hex-STRING", Value: "00 1A FF"},
			},
		},
		"numeric": {
			display: snmp.Display{PrintEnumsNumerically: true, PrintOidsNumerically: true, PrintTimeticksNumerically: true},
			want: []snmp.ResultRow{
				{OID: ".1.3.6.1.2.1.1.1", Index: "0", Type: "STRING", Value: "router"},
				{OID: ".1.3.6.1.2.1.1.3", Index: "0", Type: "Timeticks", Value: "8640123"},
				{OID: ".1.3.6.1.2.1.2.2.1.7", Index: "2", Type: "INTEGER", Value: "1"},
				{OID: ".1.3.6.1.2.1", Index: "2.2.1.99.1", Type: "Hex-STRING", Value: "00 1A FF"},
			},
		},
		"full oids": {
			display: snmp.Display{PrintFullOids: true},
			want: []snmp.ResultRow{
				{OID: ".iso.org.dod.internet.mgmt.mib-2.system.sysDescr", Index: "0", Type: "STRING", Value: "router"},
				{OID: ".iso.org.dod.internet.mgmt.mib-2.system.sysUpTime", Index: "0", Type: "Timeticks", Value: "(8640123) 1 day, 0:00:01.23"},
				{OID: ".iso.org.dod.internet.mgmt.mib-2.2.2.1.ifAdminStatus", Index: "2", Type: "INTEGER", Value: "up(1)"},
				{OID: ".iso.org.dod.internet.mgmt.mib-2", Index: "2.2.1.99.1", Type: "Hex-STRING", Value: "00 1A FF"},
			},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			e, m := newTestEngine(t, gosnmp.Version2c)
			m.EXPECT().BulkWalkAll(".1.3.6.1.2.1").Return(pdus, nil)

			rows, err := e.Execute(context.Background(), snmp.OpBulkWalk, mibArgs(t, e, tc.display), []string{"mib-2"})
			require.NoError(t, err)
			assert.Equal(t, tc.want, rows)
		})
	}
}

func TestEngine_Walk(t *testing.T) {
	e, m := newTestEngine(t, gosnmp.Version1)
	m.EXPECT().WalkAll(".1.3.6.1.2.1.1").Return([]gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.2.1.1.5.0", Type: gosnmp.OctetString, Value: []byte("core-1")},
		{Name: ".1.3.6.1.2.1.1.2.0", Type: gosnmp.ObjectIdentifier, Value: ".1.3.6.1.4.1.8072.3.2.10"},
	}, nil)

	rows, err := e.Execute(context.Background(), snmp.OpWalk,
		communityArgs(t, snmp.Version1, snmp.Display{}), []string{".1.3.6.1.2.1.1"})
	require.NoError(t, err)
	assert.Equal(t, []snmp.ResultRow{
		{OID: ".1.3.6.1.2.1.1.5.0", Type: "STRING", Value: "core-1"},
		{OID: ".1.3.6.1.2.1.1.2.0", Type: "OID", Value: ".1.3.6.1.4.1.8072.3.2.10"},
	}, rows)
}

func TestEngine_Trap(t *testing.T) {
	e, m := newTestEngine(t, gosnmp.Version2c)

	var sent gosnmp.SnmpTrap
	m.EXPECT().SendTrap(gomock.Any()).DoAndReturn(func(trap gosnmp.SnmpTrap) (*gosnmp.SnmpPacket, error) {
		sent = trap
		return nil, nil
	})

	_, err := e.Execute(context.Background(), snmp.OpTrap,
		communityArgs(t, snmp.Versionv2c, snmp.Display{}),
		[]string{"42", ".1.3.6.1.6.3.1.1.5.3", ".1.3.6.1.2.1.2.2.1.1.2", "i", "2"})
	require.NoError(t, err)

	assert.Equal(t, []gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.2.1.1.3.0", Type: gosnmp.TimeTicks, Value: uint32(42)},
		{Name: ".1.3.6.1.6.3.1.1.4.1.0", Type: gosnmp.ObjectIdentifier, Value: ".1.3.6.1.6.3.1.1.5.3"},
		{Name: ".1.3.6.1.2.1.2.2.1.1.2", Type: gosnmp.Integer, Value: 2},
	}, sent.Variables)
}

func TestEngine_TrapV1(t *testing.T) {
	e, m := newTestEngine(t, gosnmp.Version1)

	var sent gosnmp.SnmpTrap
	m.EXPECT().SendTrap(gomock.Any()).DoAndReturn(func(trap gosnmp.SnmpTrap) (*gosnmp.SnmpPacket, error) {
		sent = trap
		return nil, nil
	})

	_, err := e.Execute(context.Background(), snmp.OpTrap,
		communityArgs(t, snmp.Version1, snmp.Display{}),
		[]string{".1.3.6.1.4.1.8072", "10.0.0.5", "6", "17", "100"})
	require.NoError(t, err)

	assert.Equal(t, ".1.3.6.1.4.1.8072", sent.Enterprise)
	assert.Equal(t, "10.0.0.5", sent.AgentAddress)
	assert.Equal(t, 6, sent.GenericTrap)
	assert.Equal(t, 17, sent.SpecificTrap)
	assert.Equal(t, uint(100), sent.Timestamp)
	assert.Empty(t, sent.Variables)
}

func TestEngine_TrapDefaultPort(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := snmpmock.NewMockHandler(ctrl)
	m.EXPECT().SetPort(uint16(162))
	m.EXPECT().SetTarget("localhost")
	m.EXPECT().SetTimeout(time.Second)
	m.EXPECT().SetRetries(3)
	m.EXPECT().SetExponentialTimeout(false)
	m.EXPECT().SetMaxRepetitions(uint32(0))
	m.EXPECT().SetVersion(gosnmp.Version2c)
	m.EXPECT().SetCommunity("public")
	m.EXPECT().Connect().Return(nil)
	m.EXPECT().Close().Return(nil)
	m.EXPECT().Version().Return(gosnmp.Version2c).AnyTimes()
	m.EXPECT().SendTrap(gomock.Any()).Return(nil, nil)

	e := NewEngine()
	e.newSnmpClient = func(*ClientConfig) gosnmp.Handler { return m }

	cfg := snmp.NewCommunityConfig("localhost", snmp.Versionv2c, "public")
	_, err := e.Execute(context.Background(), snmp.OpTrap, snmp.RenderArgs(&cfg), []string{"", ".1.3.6.1.6.3.1.1.5.1"})
	require.NoError(t, err)
}

func TestEngine_USMCache(t *testing.T) {
	e, m := newTestEngine(t, gosnmp.Version3)
	m.EXPECT().Get(gomock.Any()).Return(&gosnmp.SnmpPacket{}, nil)
	m.EXPECT().SecurityParameters().Return(&gosnmp.UsmSecurityParameters{
		UserName:                 "monitor",
		AuthoritativeEngineID:    "\x80\x00\x1f\x88",
		AuthoritativeEngineBoots: 4,
		AuthoritativeEngineTime:  1200,
	})

	cfg := snmp.NewUSMConfig("localhost", snmp.USM{Username: "monitor"})
	_, err := e.Execute(context.Background(), snmp.OpGet, snmp.RenderArgs(&cfg), []string{".1.3.6.1.2.1.1.1.0"})
	require.NoError(t, err)

	key := usmKey{username: "monitor", transport: "udp", target: "localhost", port: 161}
	assert.Equal(t, &usmState{engineID: "\x80\x00\x1f\x88", boots: 4, time: 1200}, e.cachedUSM(key))

	e.InvalidateSecurityCache("other")
	assert.NotNil(t, e.cachedUSM(key))
	e.InvalidateSecurityCache("monitor")
	assert.Nil(t, e.cachedUSM(key))
}

// Two sessions with the same username on different agents must not seed
// each other's handlers, whatever order their invalidations and
// operations interleave in.
func TestEngine_USMCacheScopedToAgent(t *testing.T) {
	ctrl := gomock.NewController(t)
	e := NewEngine()

	seeded := make(map[string]string)
	e.newSnmpClient = func(cfg *ClientConfig) gosnmp.Handler {
		m := snmpmock.NewMockHandler(ctrl)
		m.EXPECT().SetTarget(cfg.Target)
		m.EXPECT().SetPort(gomock.Any())
		m.EXPECT().SetTimeout(gomock.Any())
		m.EXPECT().SetRetries(gomock.Any())
		m.EXPECT().SetExponentialTimeout(false)
		m.EXPECT().SetMaxRepetitions(gomock.Any())
		m.EXPECT().SetVersion(gosnmp.Version3)
		m.EXPECT().SetSecurityModel(gosnmp.UserSecurityModel)
		m.EXPECT().SetMsgFlags(gosnmp.NoAuthNoPriv)
		m.EXPECT().SetSecurityParameters(gomock.Any()).Do(func(p gosnmp.SnmpV3SecurityParameters) {
			seeded[cfg.Target] = p.(*gosnmp.UsmSecurityParameters).AuthoritativeEngineID
		})
		m.EXPECT().SetContextName(gomock.Any())
		m.EXPECT().SetContextEngineID(gomock.Any())
		m.EXPECT().Target().Return(cfg.Target).AnyTimes()
		m.EXPECT().Version().Return(gosnmp.Version3).AnyTimes()
		m.EXPECT().Connect().Return(nil)
		m.EXPECT().Close().Return(nil)
		m.EXPECT().Get(gomock.Any()).Return(&gosnmp.SnmpPacket{}, nil)
		m.EXPECT().SecurityParameters().Return(&gosnmp.UsmSecurityParameters{
			UserName:              "admin",
			AuthoritativeEngineID: "engine-" + cfg.Target,
		})
		return m
	}

	get := func(host string) {
		cfg := snmp.NewUSMConfig(host, snmp.USM{Username: "admin"})
		_, err := e.Execute(context.Background(), snmp.OpGet, snmp.RenderArgs(&cfg), []string{".1.3.6.1.2.1.1.1.0"})
		require.NoError(t, err)
	}

	// Session A invalidates, then session B completes a full operation
	// before A reaches the engine.
	e.InvalidateSecurityCache("admin")
	e.InvalidateSecurityCache("admin")
	get("hostB")
	get("hostA")
	assert.Equal(t, "", seeded["hostA"], "hostA was seeded with another agent's engine id")

	// A repeat operation on hostB reuses what hostB itself reported.
	get("hostB")
	assert.Equal(t, "engine-hostB", seeded["hostB"])

	e.InvalidateSecurityCache("admin")
	get("hostA")
	assert.Equal(t, "", seeded["hostA"])
}

func TestEngine_TransportAndContextReachHandler(t *testing.T) {
	e, m := newTestEngine(t, gosnmp.Version2c)
	m.EXPECT().Get(gomock.Any()).Return(&gosnmp.SnmpPacket{}, nil)

	var got *ClientConfig
	e.newSnmpClient = func(cfg *ClientConfig) gosnmp.Handler {
		got = cfg
		return m
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := snmp.NewCommunityConfig("tcp:[2001:db8::1]:1161", snmp.Versionv2c, "public")
	_, err := e.Execute(ctx, snmp.OpGet, snmp.RenderArgs(&cfg), []string{".1.3.6.1.2.1.1.1.0"})
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "tcp", got.Transport)
	assert.Equal(t, "2001:db8::1", got.Target)
	assert.Equal(t, ctx, got.Context)

	h := newGoSNMPHandler(got).(*goSNMPHandler)
	assert.Equal(t, "tcp", h.GoSNMP.Transport)
	assert.Equal(t, ctx, h.GoSNMP.Context)
}

func TestEngine_MibTreeCached(t *testing.T) {
	e, m := newTestEngine(t, gosnmp.Version2c)
	m.EXPECT().Get(gomock.Any()).Return(&gosnmp.SnmpPacket{}, nil).Times(2)

	args := mibArgs(t, e, snmp.Display{})
	loads := 0
	load := e.loadMibs
	e.loadMibs = func(dirs, modules []string) (*parse.Tree, error) {
		loads++
		assert.Equal(t, []string{"SNMPv2-MIB", "IF-MIB"}, modules)
		return load(dirs, modules)
	}

	for i := 0; i < 2; i++ {
		_, err := e.Execute(context.Background(), snmp.OpGet, args, []string{"sysDescr.0"})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, loads)
}
