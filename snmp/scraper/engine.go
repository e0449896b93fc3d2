package scraper

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/gosnmp/gosnmp"

	"snmp-session/snmp"
	"snmp-session/snmp/parse"
)

const (
	oidSysUpTimeInstance = ".1.3.6.1.2.1.1.3.0"
	oidSnmpTrapOID       = ".1.3.6.1.6.3.1.1.4.1.0"
)

// usmState is the authoritative engine information discovered for a user.
type usmState struct {
	engineID string
	boots    uint32
	time     uint32
}

// usmKey scopes discovered engine information to one user on one agent.
// Sessions that share a username but talk to different agents never see
// each other's engine id.
type usmKey struct {
	username        string
	transport       string
	target          string
	port            uint16
	contextEngineID string
}

func usmKeyFor(cfg *ClientConfig) usmKey {
	return usmKey{
		username:        cfg.SecName,
		transport:       cfg.Transport,
		target:          cfg.Target,
		port:            cfg.Port,
		contextEngineID: cfg.ContextEngineID,
	}
}

// Engine executes snmp operations with gosnmp.
type Engine struct {
	newSnmpClient func(config *ClientConfig) gosnmp.Handler
	loadMibs      func(dirs, modules []string) (*parse.Tree, error)

	usmMu sync.Mutex
	usm   map[usmKey]usmState

	mibMu sync.Mutex
	mibs  map[string]*parse.Tree
}

var _ snmp.Engine = (*Engine)(nil)

func NewEngine() *Engine {
	return &Engine{
		newSnmpClient: newGoSNMPHandler,
		loadMibs:      parse.Load,
		usm:           make(map[usmKey]usmState),
		mibs:          make(map[string]*parse.Tree),
	}
}

// InvalidateSecurityCache forgets the engine id, boots and time
// discovered for username on every agent.
func (e *Engine) InvalidateSecurityCache(username string) {
	e.usmMu.Lock()
	defer e.usmMu.Unlock()
	for key := range e.usm {
		if key.username == username {
			delete(e.usm, key)
		}
	}
}

func (e *Engine) cachedUSM(key usmKey) *usmState {
	e.usmMu.Lock()
	defer e.usmMu.Unlock()
	if state, ok := e.usm[key]; ok {
		return &state
	}
	return nil
}

func (e *Engine) storeUSM(key usmKey, state *usmState) {
	e.usmMu.Lock()
	defer e.usmMu.Unlock()
	e.usm[key] = *state
}

// mibTree returns the MIB tree for the -m/-M settings of cfg, loading it
// once per distinct combination.
func (e *Engine) mibTree(cfg *ClientConfig) (*parse.Tree, error) {
	if len(cfg.LoadMibs) == 0 && len(cfg.MibDirectories) == 0 {
		return parse.NewTree(), nil
	}

	e.mibMu.Lock()
	defer e.mibMu.Unlock()

	key := cfg.mibKey()
	if tree, ok := e.mibs[key]; ok {
		return tree, nil
	}

	modules := cfg.LoadMibs
	if len(modules) == 0 {
		modules = []string{parse.LoadAll}
	}
	tree, err := e.loadMibs(cfg.MibDirectories, modules)
	if err != nil {
		return nil, snmp.NewNativeError(snmp.NativeGeneric, "failed to load mibs: %v", err)
	}
	slog.Debug("Loaded mibs", "modules", tree.Modules(), "nodes", tree.Len())
	e.mibs[key] = tree
	return tree, nil
}

// Execute runs op against the agent described by argv.
func (e *Engine) Execute(ctx context.Context, op snmp.Operation, argv, opArgs []string) ([]snmp.ResultRow, error) {
	cfg, err := ParseArgs(argv)
	if err != nil {
		return nil, err
	}
	cfg.Context = ctx

	if cfg.Port == 0 {
		cfg.Port = defaultPort
		if op == snmp.OpTrap {
			cfg.Port = defaultTrapPort
		}
	}

	var bulk bulkOptions
	if op == snmp.OpGetBulk || op == snmp.OpBulkWalk {
		if bulk, opArgs, err = parseBulkOptions(opArgs); err != nil {
			return nil, err
		}
		if bulk.maxRepetitions > 0 {
			cfg.MaxRepetitions = bulk.maxRepetitions
		}
		if cfg.MaxRepetitions == 0 {
			cfg.MaxRepetitions = defaultMaxRepetitions
		}
	}

	tree, err := e.mibTree(cfg)
	if err != nil {
		return nil, err
	}

	var cached *usmState
	if cfg.Version == Version3 {
		cached = e.cachedUSM(usmKeyFor(cfg))
	}
	client, err := NewGoSNMP(cfg, e.newSnmpClient(cfg), cached)
	if err != nil {
		return nil, err
	}
	slog.Debug("Connecting to agent", "op", op, "config", cfg.String())
	if err = client.Connect(); err != nil {
		return nil, err
	}
	defer func() {
		_ = client.Close()
	}()

	r := &request{
		cfg:    cfg,
		tree:   tree,
		client: client,
		format: newFormatter(cfg, tree),
	}

	var rows []snmp.ResultRow
	switch op {
	case snmp.OpGet:
		rows, err = r.get(client.Get, opArgs)
	case snmp.OpGetNext:
		rows, err = r.get(client.GetNext, opArgs)
	case snmp.OpGetBulk:
		rows, err = r.get(func(oids []string) (*gosnmp.SnmpPacket, error) {
			return client.GetBulk(oids, bulk.nonRepeaters, cfg.MaxRepetitions)
		}, opArgs)
	case snmp.OpSet:
		rows, err = r.set(opArgs)
	case snmp.OpWalk:
		rows, err = r.walk(client.WalkAll, opArgs)
	case snmp.OpBulkWalk:
		rows, err = r.walk(client.BulkWalkAll, opArgs)
	case snmp.OpTrap:
		err = r.trap(opArgs)
	default:
		err = parseErr("unsupported operation %q", op)
	}
	if err != nil {
		return nil, err
	}

	if state, ok := client.usm(); ok {
		e.storeUSM(usmKeyFor(cfg), state)
	}
	return rows, nil
}

type bulkOptions struct {
	nonRepeaters   uint8
	maxRepetitions uint32
}

// parseBulkOptions consumes leading -Cn<N> and -Cr<N> arguments.
func parseBulkOptions(args []string) (bulkOptions, []string, error) {
	var opts bulkOptions
	for len(args) > 0 && strings.HasPrefix(args[0], "-C") {
		opt := args[0]
		switch {
		case strings.HasPrefix(opt, "-Cn"):
			n, err := strconv.ParseUint(opt[3:], 10, 8)
			if err != nil {
				return opts, nil, parseErr("invalid non-repeaters %q", opt)
			}
			opts.nonRepeaters = uint8(n)
		case strings.HasPrefix(opt, "-Cr"):
			n, err := strconv.ParseUint(opt[3:], 10, 32)
			if err != nil {
				return opts, nil, parseErr("invalid max repetitions %q", opt)
			}
			opts.maxRepetitions = uint32(n)
		default:
			return opts, nil, parseErr("unknown option %s", opt)
		}
		args = args[1:]
	}
	return opts, args, nil
}

type request struct {
	cfg    *ClientConfig
	tree   *parse.Tree
	client *GoSNMPWrapper
	format *formatter
}

func (r *request) get(send func([]string) (*gosnmp.SnmpPacket, error), oids []string) ([]snmp.ResultRow, error) {
	if len(oids) == 0 {
		return nil, parseErr("no object identifiers given")
	}
	resolved, err := resolveOids(r.tree, oids)
	if err != nil {
		return nil, err
	}
	packet, err := send(resolved)
	if err != nil {
		return nil, err
	}
	if err = r.checkPacket(packet); err != nil {
		return nil, err
	}
	return r.format.rows(packet.Variables), nil
}

func (r *request) set(triples []string) ([]snmp.ResultRow, error) {
	if len(triples) == 0 {
		return nil, parseErr("no variables to set")
	}
	pdus, err := setPDUs(r.tree, triples)
	if err != nil {
		return nil, err
	}
	packet, err := r.client.Set(pdus)
	if err != nil {
		return nil, err
	}
	if err = r.checkPacket(packet); err != nil {
		return nil, err
	}
	return r.format.rows(packet.Variables), nil
}

func (r *request) walk(walk func(string) ([]gosnmp.SnmpPDU, error), oids []string) ([]snmp.ResultRow, error) {
	if len(oids) == 0 {
		oids = []string{"."}
	}
	resolved, err := resolveOids(r.tree, oids)
	if err != nil {
		return nil, err
	}
	var rows []snmp.ResultRow
	for _, oid := range resolved {
		pdus, err := walk(oid)
		if err != nil {
			return nil, err
		}
		rows = append(rows, r.format.rows(pdus)...)
	}
	return rows, nil
}

func (r *request) trap(args []string) error {
	var trap gosnmp.SnmpTrap
	if r.cfg.Version == Version1 {
		if len(args) < 5 {
			return parseErr("expected enterprise, agent, generic, specific and uptime, got %d arguments", len(args))
		}
		enterprise, err := resolveOid(r.tree, args[0])
		if err != nil {
			return err
		}
		generic, err1 := strconv.Atoi(args[2])
		specific, err2 := strconv.Atoi(args[3])
		uptime, err3 := parseUptime(args[4])
		if err1 != nil || err2 != nil || err3 != nil {
			return parseErr("invalid trap arguments %q", args[:5])
		}
		trap = gosnmp.SnmpTrap{
			Enterprise:   enterprise,
			AgentAddress: args[1],
			GenericTrap:  generic,
			SpecificTrap: specific,
			Timestamp:    uint(uptime),
		}
		args = args[5:]
	} else {
		if len(args) < 2 {
			return parseErr("expected uptime and trap oid, got %d arguments", len(args))
		}
		uptime, err := parseUptime(args[0])
		if err != nil {
			return parseErr("invalid uptime %q", args[0])
		}
		trapOID, err := resolveOid(r.tree, args[1])
		if err != nil {
			return err
		}
		trap.Variables = []gosnmp.SnmpPDU{
			{Name: oidSysUpTimeInstance, Type: gosnmp.TimeTicks, Value: uptime},
			{Name: oidSnmpTrapOID, Type: gosnmp.ObjectIdentifier, Value: trapOID},
		}
		args = args[2:]
	}

	pdus, err := setPDUs(r.tree, args)
	if err != nil {
		return err
	}
	trap.Variables = append(trap.Variables, pdus...)

	_, err = r.client.SendTrap(trap)
	return err
}

// parseUptime accepts hundredths of a second; empty means zero.
func parseUptime(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	return uint32(n), err
}

// checkPacket turns an error status in a response into a native error.
// SNMPv1 agents report missing objects as noSuchName.
func (r *request) checkPacket(packet *gosnmp.SnmpPacket) error {
	if packet == nil || packet.Error == gosnmp.NoError {
		return nil
	}

	failed := ""
	if i := int(packet.ErrorIndex); i > 0 && i <= len(packet.Variables) {
		failed = r.format.oidString(packet.Variables[i-1].Name)
	}

	if packet.Error == gosnmp.NoSuchName && r.cfg.Version == Version1 {
		return snmp.NewNativeError(snmp.NativeNoSuchName, "There is no such variable name in this MIB. Failed object: %s", failed)
	}
	return snmp.NewNativeError(snmp.NativePacket, "Error in packet. Reason: %v Failed object: %s", packet.Error, failed)
}
