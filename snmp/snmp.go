package snmp

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

type SnmpClient interface {
	Get(ctx context.Context, oids ...string) ([]ResultRow, error)
	GetNext(ctx context.Context, oids ...string) ([]ResultRow, error)
	GetBulk(ctx context.Context, nonRepeaters, maxRepetitions uint, oids ...string) ([]ResultRow, error)
	Set(ctx context.Context, oid, typ, value string) ([]ResultRow, error)
	SetMultiple(ctx context.Context, reqs ...SetRequest) ([]ResultRow, error)
	Walk(ctx context.Context, oid string) ([]ResultRow, error)
	BulkWalk(ctx context.Context, oids ...string) ([]ResultRow, error)
	SendTrap(ctx context.Context, trap Trap) error
	Close() error
}

var _ SnmpClient = (*Session)(nil)

// SetRequest is one variable binding to write. Type is a net-snmp type
// letter (i u s x d n o t a c C) or "=" to take the type from the MIB.
type SetRequest struct {
	OID   string
	Type  string
	Value string
}

// Trap describes a notification. Uptime, TrapOID and Variables are used for
// SNMPv2c/v3; SNMPv1 traps use Enterprise, Agent, Generic and Specific
// instead of TrapOID.
type Trap struct {
	Uptime    string
	TrapOID   string
	Variables []SetRequest

	Enterprise string
	Agent      string
	Generic    int
	Specific   int
}

// Session owns one Config and its rendered argument vector. All methods are
// safe for concurrent use; a failed mutation leaves the session unchanged.
type Session struct {
	mu     sync.RWMutex
	cfg    Config
	args   []string
	engine Engine
}

// NewSession validates cfg and renders its argument vector.
func NewSession(cfg Config, engine Engine) (*Session, error) {
	if engine == nil {
		return nil, fmt.Errorf("snmp: nil engine")
	}
	next := cfg.Clone()
	if err := next.normalize(); err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return &Session{cfg: next, args: RenderArgs(&next), engine: engine}, nil
}

//////////////////////////////// Getters //////////////////////////////////////

// Config returns a copy of the committed configuration.
func (s *Session) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Args returns a copy of the rendered argument vector.
func (s *Session) Args() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.args...)
}

func (s *Session) Hostname() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Hostname
}

func (s *Session) Port() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Port
}

func (s *Session) Version() Version {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Version
}

// Community returns "" on SNMPv3 sessions.
func (s *Session) Community() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	comm, _ := s.cfg.Community()
	return comm
}

// USM returns the zero USM on SNMPv1/v2c sessions.
func (s *Session) USM() USM {
	s.mu.RLock()
	defer s.mu.RUnlock()
	usm, _ := s.cfg.USM()
	return usm
}

func (s *Session) Retries() uint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Retries
}

func (s *Session) Timeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Timeout
}

func (s *Session) Display() Display {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Display
}

//////////////////////////////// Setters //////////////////////////////////////

// Update applies fn to a copy of the configuration and commits it only if
// the result is valid. Use it to change several fields at once, e.g. moving
// from noAuthNoPriv to authPriv.
//
// fn runs with the session's write lock held and must not call any method
// of the same Session; doing so deadlocks.
func (s *Session) Update(fn func(cfg *Config) error) error {
	prev, next, err := s.commit(fn)
	if err != nil {
		return err
	}
	s.invalidateOnSecurityChange(prev, next)
	return nil
}

func (s *Session) commit(fn func(cfg *Config) error) (prev, next Config, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next = s.cfg.Clone()
	if err = fn(&next); err != nil {
		return Config{}, Config{}, err
	}
	if err = next.normalize(); err != nil {
		return Config{}, Config{}, err
	}
	if err = next.Validate(); err != nil {
		return Config{}, Config{}, err
	}

	prev = s.cfg
	s.cfg, s.args = next, RenderArgs(&next)
	slog.Debug("SNMP session updated", "args", redact(s.args))
	return prev, next.Clone(), nil
}

// invalidateOnSecurityChange drops the engine's cached USM state for the
// old and new usernames whenever SNMPv3 credentials changed.
func (s *Session) invalidateOnSecurityChange(prev, next Config) {
	oldUSM, oldOK := prev.USM()
	newUSM, newOK := next.USM()
	if !newOK || (oldOK && oldUSM == newUSM) {
		return
	}
	if oldOK && oldUSM.Username != newUSM.Username {
		s.engine.InvalidateSecurityCache(oldUSM.Username)
	}
	s.engine.InvalidateSecurityCache(newUSM.Username)
}

// SetHostname replaces the hostname. A port embedded in hostname is moved to
// Port and conflicts with an already configured port.
func (s *Session) SetHostname(hostname string) error {
	return s.Update(func(cfg *Config) error {
		cfg.Hostname = hostname
		return nil
	})
}

// SetEndpoint replaces hostname and port together.
func (s *Session) SetEndpoint(hostname, port string) error {
	return s.Update(func(cfg *Config) error {
		cfg.Hostname, cfg.Port = hostname, port
		return nil
	})
}

func (s *Session) SetPort(port string) error {
	return s.Update(func(cfg *Config) error {
		cfg.Port = port
		return nil
	})
}

// SetPortNumber is SetPort for an integer port; 0 clears it.
func (s *Session) SetPortNumber(port uint16) error {
	p := ""
	if port != 0 {
		p = FormatPort(port)
	}
	return s.SetPort(p)
}

// SetVersion changes the protocol version. Moving between the community
// and USM families replaces the credentials with the new family's defaults.
func (s *Session) SetVersion(version Version) error {
	return s.Update(func(cfg *Config) error {
		if !version.valid() {
			return parseErrorf("invalid version %q, support (1/2c/3)", version)
		}
		switch {
		case version.UsesCommunity() && !cfg.Version.UsesCommunity():
			cfg.Security = Community{Community: DefaultCommunity}
		case version == Version3 && cfg.Version != Version3:
			cfg.Security = USM{}
		}
		cfg.Version = version
		return nil
	})
}

// SetVersionString accepts "1", "2c" or "3".
func (s *Session) SetVersionString(version string) error {
	v, err := ParseVersion(version)
	if err != nil {
		return err
	}
	return s.SetVersion(v)
}

// SetVersionNumber accepts 1, 2 (meaning 2c) or 3.
func (s *Session) SetVersionNumber(version int) error {
	v, err := VersionFromInt(version)
	if err != nil {
		return err
	}
	return s.SetVersion(v)
}

func (s *Session) SetCommunity(community string) error {
	return s.Update(func(cfg *Config) error {
		if _, ok := cfg.Security.(Community); !ok {
			return parseErrorf("community is not valid for version %q", cfg.Version)
		}
		cfg.Security = Community{Community: community}
		return nil
	})
}

// updateUSM applies fn to the SNMPv3 parameters. On SNMPv1/v2c sessions a
// change that leaves the zero USM untouched is accepted as a no-op; anything
// else is a ParseError.
func (s *Session) updateUSM(field string, fn func(u *USM)) error {
	return s.Update(func(cfg *Config) error {
		usm, ok := cfg.USM()
		if !ok {
			var scratch USM
			fn(&scratch)
			if scratch != (USM{}) {
				return parseErrorf("%s is only valid for SNMPv3, version is %q", field, cfg.Version)
			}
			return nil
		}
		fn(&usm)
		cfg.Security = usm
		return nil
	})
}

func (s *Session) SetSecurityUsername(username string) error {
	return s.updateUSM("security username", func(u *USM) { u.Username = username })
}

func (s *Session) SetSecurityLevel(level SecurityLevel) error {
	return s.updateUSM("security level", func(u *USM) { u.Level = level })
}

func (s *Session) SetAuthProtocol(protocol AuthProtocol) error {
	return s.updateUSM("auth protocol", func(u *USM) { u.AuthProtocol = protocol })
}

func (s *Session) SetAuthPassphrase(passphrase string) error {
	return s.updateUSM("auth passphrase", func(u *USM) { u.AuthPassphrase = passphrase })
}

func (s *Session) SetPrivacyProtocol(protocol PrivacyProtocol) error {
	return s.updateUSM("privacy protocol", func(u *USM) { u.PrivacyProtocol = protocol })
}

func (s *Session) SetPrivacyPassphrase(passphrase string) error {
	return s.updateUSM("privacy passphrase", func(u *USM) { u.PrivacyPassphrase = passphrase })
}

func (s *Session) SetSecurityEngineID(id string) error {
	return s.updateUSM("security engine id", func(u *USM) { u.SecurityEngineID = id })
}

func (s *Session) SetContextEngineID(id string) error {
	return s.updateUSM("context engine id", func(u *USM) { u.ContextEngineID = id })
}

func (s *Session) SetContext(name string) error {
	return s.updateUSM("context", func(u *USM) { u.Context = name })
}

func (s *Session) SetBootsTime(bootsTime string) error {
	return s.updateUSM("boots time", func(u *USM) { u.BootsTime = bootsTime })
}

func (s *Session) SetRetries(retries uint) error {
	return s.Update(func(cfg *Config) error {
		cfg.Retries = retries
		return nil
	})
}

// SetRetriesString accepts a decimal retry count.
func (s *Session) SetRetriesString(retries string) error {
	n, err := strconv.ParseUint(retries, 10, 0)
	if err != nil {
		return parseErrorf("invalid retries %q", retries)
	}
	return s.SetRetries(uint(n))
}

func (s *Session) SetTimeout(timeout time.Duration) error {
	return s.Update(func(cfg *Config) error {
		cfg.Timeout = timeout
		return nil
	})
}

// SetTimeoutSeconds accepts fractional seconds, e.g. 0.5.
func (s *Session) SetTimeoutSeconds(seconds float64) error {
	if seconds < 0 {
		return parseErrorf("invalid timeout %s", FormatSeconds(seconds))
	}
	return s.SetTimeout(time.Duration(seconds * float64(time.Second)))
}

func (s *Session) SetLoadMibs(mibs ...string) error {
	return s.Update(func(cfg *Config) error {
		cfg.LoadMibs = append([]string(nil), mibs...)
		return nil
	})
}

func (s *Session) SetMibDirectories(dirs ...string) error {
	return s.Update(func(cfg *Config) error {
		cfg.MibDirectories = append([]string(nil), dirs...)
		return nil
	})
}

func (s *Session) SetDisplay(display Display) error {
	return s.Update(func(cfg *Config) error {
		cfg.Display = display
		return nil
	})
}

func (s *Session) SetMaxRepeaters(n uint) error {
	return s.Update(func(cfg *Config) error {
		cfg.MaxRepeaters = n
		return nil
	})
}

//////////////////////////////// Operations ///////////////////////////////////

func (s *Session) Get(ctx context.Context, oids ...string) ([]ResultRow, error) {
	return s.execute(ctx, OpGet, oids)
}

func (s *Session) GetNext(ctx context.Context, oids ...string) ([]ResultRow, error) {
	return s.execute(ctx, OpGetNext, oids)
}

// GetBulk issues a GETBULK. A zero maxRepetitions leaves the session's
// MaxRepeaters (or the engine default) in effect.
func (s *Session) GetBulk(ctx context.Context, nonRepeaters, maxRepetitions uint, oids ...string) ([]ResultRow, error) {
	opArgs := make([]string, 0, len(oids)+2)
	opArgs = append(opArgs, "-Cn"+strconv.FormatUint(uint64(nonRepeaters), 10))
	if maxRepetitions > 0 {
		opArgs = append(opArgs, "-Cr"+strconv.FormatUint(uint64(maxRepetitions), 10))
	}
	return s.execute(ctx, OpGetBulk, append(opArgs, oids...))
}

func (s *Session) Set(ctx context.Context, oid, typ, value string) ([]ResultRow, error) {
	return s.SetMultiple(ctx, SetRequest{OID: oid, Type: typ, Value: value})
}

func (s *Session) SetMultiple(ctx context.Context, reqs ...SetRequest) ([]ResultRow, error) {
	if len(reqs) == 0 {
		return nil, parseErrorf("no variables to set")
	}
	return s.execute(ctx, OpSet, flattenSetRequests(nil, reqs))
}

func (s *Session) Walk(ctx context.Context, oid string) ([]ResultRow, error) {
	if oid == "" {
		oid = "."
	}
	return s.execute(ctx, OpWalk, []string{oid})
}

func (s *Session) BulkWalk(ctx context.Context, oids ...string) ([]ResultRow, error) {
	return s.execute(ctx, OpBulkWalk, oids)
}

// SendTrap sends an SNMPv1 trap or an SNMPv2 notification, depending on the
// version of the configuration snapshot the request is sent with.
func (s *Session) SendTrap(ctx context.Context, trap Trap) error {
	_, err := s.executeFor(ctx, OpTrap, func(version Version) ([]string, error) {
		var opArgs []string
		if version == Version1 {
			opArgs = []string{
				trap.Enterprise,
				trap.Agent,
				strconv.Itoa(trap.Generic),
				strconv.Itoa(trap.Specific),
				trap.Uptime,
			}
		} else {
			if trap.TrapOID == "" {
				return nil, parseErrorf("trap oid is required")
			}
			opArgs = []string{trap.Uptime, trap.TrapOID}
		}
		return flattenSetRequests(opArgs, trap.Variables), nil
	})
	return err
}

// Close is a no-op; the engine opens and closes its transport per request.
func (s *Session) Close() error {
	return nil
}

func (s *Session) execute(ctx context.Context, op Operation, opArgs []string) ([]ResultRow, error) {
	return s.executeFor(ctx, op, func(Version) ([]string, error) {
		return opArgs, nil
	})
}

// executeFor builds the operation arguments from the same configuration
// snapshot the argv is taken from.
func (s *Session) executeFor(ctx context.Context, op Operation, build func(version Version) ([]string, error)) ([]ResultRow, error) {
	s.mu.RLock()
	args := append([]string(nil), s.args...)
	version := s.cfg.Version
	usm, isV3 := s.cfg.USM()
	s.mu.RUnlock()

	opArgs, err := build(version)
	if err != nil {
		return nil, err
	}

	// SNMPv3 requests never reuse discovered USM state.
	if isV3 {
		s.engine.InvalidateSecurityCache(usm.Username)
	}

	slog.Debug("Executing SNMP operation", "op", op, "args", opArgs)
	st := time.Now()
	rows, err := s.engine.Execute(ctx, op, args, opArgs)
	if err != nil {
		return nil, Classify(err)
	}
	slog.Debug("SNMP operation completed", "op", op, "rows", len(rows), "duration", time.Since(st))
	return rows, nil
}

func flattenSetRequests(dst []string, reqs []SetRequest) []string {
	for _, r := range reqs {
		dst = append(dst, r.OID, r.Type, r.Value)
	}
	return dst
}

// redact hides passphrases and community strings in logged argument
// vectors.
func redact(args []string) []string {
	out := append([]string(nil), args...)
	for i := 0; i+1 < len(out); i++ {
		switch out[i] {
		case flagAuthPassphrase, flagPrivacyPassphrase, flagCommunity:
			out[i+1] = "******"
		}
	}
	return out
}
