package parse

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sleepinggenius2/gosmi"
	"github.com/sleepinggenius2/gosmi/smi"
	"github.com/sleepinggenius2/gosmi/types"

	"snmp-session/set"
	"snmp-session/snmp"
)

// LoadAll as the only module name loads every MIB file found in the
// search directories.
const LoadAll = "ALL"

type MibObject struct {
	Name      string
	Module    string
	OID       string
	ParentOID string
	Type      string
	SmiType   int
	Syntax    map[int]string
	Access    string
}

// QualifiedName returns MODULE::name.
func (m *MibObject) QualifiedName() string {
	if m.Module == "" {
		return m.Name
	}
	return m.Module + "::" + m.Name
}

// Tree is an immutable snapshot of loaded MIB nodes, indexed by name,
// module-qualified name and numeric OID (without a leading dot).
type Tree struct {
	byName      map[string]*MibObject
	byQualified map[string]*MibObject
	byOID       map[string]*MibObject
	modules     set.Set[string]
}

func NewTree() *Tree {
	return &Tree{
		byName:      make(map[string]*MibObject, 1024),
		byQualified: make(map[string]*MibObject, 1024),
		byOID:       make(map[string]*MibObject, 1024),
		modules:     set.New[string](),
	}
}

// Add indexes mib. The first module to define a bare name keeps it.
func (t *Tree) Add(mib *MibObject) {
	t.byOID[mib.OID] = mib
	if _, ok := t.byName[mib.Name]; !ok {
		t.byName[mib.Name] = mib
	}
	if mib.Module != "" {
		t.byQualified[mib.QualifiedName()] = mib
		t.modules.Add(mib.Module)
	}
}

// Len is the number of distinct OIDs in the tree.
func (t *Tree) Len() int {
	return len(t.byOID)
}

// Modules lists the loaded module names in order.
func (t *Tree) Modules() []string {
	return t.modules.Sorted()
}

// Find looks up a node by bare or module-qualified name.
func (t *Tree) Find(name string) (*MibObject, bool) {
	if strings.Contains(name, "::") {
		v, ok := t.byQualified[name]
		return v, ok
	}
	v, ok := t.byName[name]
	return v, ok
}

// FindByOID returns the deepest node containing oid and the remaining
// index below it.
func (t *Tree) FindByOID(oid string) (mib *MibObject, index string, ok bool) {
	oid = strings.TrimPrefix(oid, ".")
	for prefix := oid; prefix != ""; {
		if mib, ok = t.byOID[prefix]; ok {
			if len(prefix) < len(oid) {
				index = oid[len(prefix)+1:]
			}
			return mib, index, true
		}
		i := strings.LastIndexByte(prefix, '.')
		if i < 0 {
			break
		}
		prefix = prefix[:i]
	}
	return nil, "", false
}

// Resolve turns a symbolic OID (name, MODULE::name or a dotted path of
// labels such as .iso.org.dod.internet.mgmt.mib-2.system.sysDescr), with
// an optional numeric index, into a numeric OID with a leading dot. The
// name and index are split the way snmp.NormalizeOid splits them.
func (t *Tree) Resolve(oid string) (string, error) {
	if oid == "" || oid == "." {
		return ".", nil
	}
	ref := snmp.NormalizeOid(oid)
	if isNumeric(ref.Root) {
		numeric := strings.TrimPrefix(ref.Root, ".")
		if _, err := types.OidFromString(numeric); err != nil {
			return "", fmt.Errorf("invalid object identifier %s: %w", oid, err)
		}
		return "." + numeric, nil
	}
	if ref.Index != "" && !isNumeric(ref.Index) {
		return "", fmt.Errorf("unknown object identifier: %s", oid)
	}

	// MODULE::name is a single label; a dotted path ends in the node's name
	// and the rest of it only has to agree with the tree.
	labels := strings.Split(strings.TrimPrefix(ref.Root, "."), ".")
	if strings.Contains(ref.Root, "::") {
		labels = []string{ref.Root}
	}
	mib, ok := t.Find(labels[len(labels)-1])
	if !ok {
		return "", fmt.Errorf("unknown object identifier: %s", oid)
	}
	if len(labels) > 1 && !t.pathMatches(mib, labels) {
		return "", fmt.Errorf("unknown object identifier: %s", oid)
	}

	return "." + snmp.AddIndex(mib.OID, ref.Index), nil
}

func (t *Tree) pathMatches(mib *MibObject, labels []string) bool {
	node := mib
	for i := len(labels) - 1; i >= 0; i-- {
		if node == nil {
			return false
		}
		if labels[i] != node.Name && labels[i] != lastArc(node.OID) {
			return false
		}
		node = t.byOID[node.ParentOID]
	}
	return true
}

// FullPath renders oid as a dotted label path, e.g.
// .iso.org.dod.internet.mgmt.mib-2.system.sysDescr.0. Arcs without a
// known node stay numeric, as does the index below the deepest node.
func (t *Tree) FullPath(oid string) string {
	_, index, ok := t.FindByOID(oid)
	if !ok {
		return oid
	}
	arcs := strings.Split(strings.TrimPrefix(oid, "."), ".")
	known := len(arcs)
	if index != "" {
		known -= strings.Count(index, ".") + 1
	}

	var b strings.Builder
	for i, arc := range arcs {
		b.WriteString(".")
		if i < known {
			if mib, ok := t.byOID[strings.Join(arcs[:i+1], ".")]; ok {
				b.WriteString(mib.Name)
				continue
			}
		}
		b.WriteString(arc)
	}
	return b.String()
}

// gosmi keeps its state in package globals.
var smiMu sync.Mutex

// Load parses the named MIB modules from dirs. With modules == [LoadAll]
// every regular file in dirs is loaded. Modules that fail to load are
// logged and skipped.
func Load(dirs, modules []string) (*Tree, error) {
	smiMu.Lock()
	defer smiMu.Unlock()

	gosmi.Init()
	defer gosmi.Exit()
	for _, dir := range dirs {
		gosmi.AppendPath(dir)
	}

	var loaded set.Set[string]
	if len(modules) == 1 && strings.EqualFold(modules[0], LoadAll) {
		loaded = set.New[string]()
		for _, dir := range dirs {
			mods, err := load(dir)
			if err != nil {
				return nil, err
			}
			for m := range mods {
				loaded.Add(m)
			}
		}
	} else {
		loaded = loadModules(modules)
	}

	tree := NewTree()
	buildMibObject(tree, loaded)
	return tree, nil
}

func load(dir string) (set.Set[string], error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read mib directory %s: %w", dir, err)
	}

	var failLoad []string
	var successLoad = set.New[string]()
	for _, entry := range dirEntries {
		info, err := entry.Info()
		if err != nil {
			failLoad = append(failLoad, entry.Name())
			continue
		}

		// skipping subdirectory and symlink
		if info.Mode().IsRegular() {
			moduleName, err := gosmi.LoadModule(filepath.Join(dir, info.Name()))
			if err != nil {
				failLoad = append(failLoad, info.Name())
			} else {
				successLoad.Add(moduleName)
			}
		}
	}

	if len(failLoad) > 0 {
		slog.Warn("Failed to load mibs", "dir", dir, "count", len(failLoad), "files", strings.Join(failLoad, ","))
	}
	return successLoad, nil
}

func loadModules(modules []string) set.Set[string] {
	var failLoad []string
	successLoad := set.New[string]()
	for _, module := range modules {
		moduleName, err := gosmi.LoadModule(module)
		if err != nil {
			failLoad = append(failLoad, module)
			continue
		}
		successLoad.Add(moduleName)
	}
	if len(failLoad) > 0 {
		slog.Warn("Failed to load mibs", "count", len(failLoad), "modules", strings.Join(failLoad, ","))
	}

	// Imports are loaded implicitly and contribute nodes too.
	for _, m := range gosmi.GetLoadedModules() {
		successLoad.Add(m.Name)
	}
	return successLoad
}

func buildMibObject(tree *Tree, modules set.Set[string]) {
	for _, module := range modules.Sorted() {
		m, err := gosmi.GetModule(module)
		if err != nil {
			slog.Warn("Failed to get module information", "module", module, "err", err)
			continue
		}

		for _, node := range m.GetNodes() {
			if node.OidLen == 0 || node.Name == "zeroDotZero" {
				continue
			}

			mib := &MibObject{
				Name:   node.Name,
				Module: module,
				OID:    node.Oid.String(),
				Access: node.Access.String(),
			}
			if node.Type != nil {
				mib.Type = node.Type.Name
				mib.SmiType = int(node.Type.BaseType)
				nodeEnum := node.Type.Enum
				switch node.Type.BaseType {
				case types.BaseTypeEnum, types.BaseTypeBits:
					if nodeEnum != nil && len(nodeEnum.Values) != 0 {
						mib.Syntax = make(map[int]string, len(nodeEnum.Values))
						for _, value := range nodeEnum.Values {
							mib.Syntax[int(value.Value)] = value.Name
						}
					}
				}
			}
			if parent := smi.GetParentNode(node.GetRaw()); parent != nil {
				mib.ParentOID = parent.Oid.String()
			}

			tree.Add(mib)
		}
	}
}

func isNumeric(s string) bool {
	s = strings.TrimPrefix(s, ".")
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

func lastArc(oid string) string {
	return oid[strings.LastIndexByte(oid, '.')+1:]
}
