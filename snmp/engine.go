package snmp

import "context"

// Operation names one SNMP request kind.
type Operation string

const (
	OpGet      Operation = "GET"
	OpGetNext  Operation = "GETNEXT"
	OpGetBulk  Operation = "GETBULK"
	OpSet      Operation = "SET"
	OpWalk     Operation = "WALK"
	OpBulkWalk Operation = "BULKWALK"
	OpTrap     Operation = "TRAP"
)

// Engine executes SNMP operations described by a rendered argument vector.
//
// argv is the output of RenderArgs. opArgs carries the per-operation
// suffix: OIDs, "oid type value" triples for SET and TRAP, optionally
// preceded by -Cn<N>/-Cr<N> for the bulk operations. Failures are reported
// as *NativeError.
type Engine interface {
	Execute(ctx context.Context, op Operation, argv, opArgs []string) ([]ResultRow, error)
	// InvalidateSecurityCache drops any cached USM state for username.
	InvalidateSecurityCache(username string)
}

// Row types reported for absent nodes by SNMPv2c/v3 agents. SNMPv1 agents
// answer with a noSuchName error instead.
const (
	TypeNoSuchObject   = "NOSUCHOBJECT"
	TypeNoSuchInstance = "NOSUCHINSTANCE"
	TypeEndOfMibView   = "ENDOFMIBVIEW"
)
