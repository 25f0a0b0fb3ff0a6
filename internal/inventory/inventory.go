// Package inventory reads and writes the ini inventory consumed by the
// remote deploy script.
//
// The [node] section holds one key per host whose value is
// "name,address,password,iface1,iface2". Multi-node inventories also carry
// a [global] section with the keepalived vip and router id.
package inventory

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/ini.v1"
)

const (
	sectionNode   = "node"
	sectionGlobal = "global"

	keyVIP      = "vip"
	keyRouterID = "keepalived_router_id"

	// SingleNodeKey is the only [node] key of an all-in-one inventory.
	SingleNodeKey = "node"
)

// Node is one host entry.
type Node struct {
	Name         string
	Address      string
	Password     string
	PrimaryNIC   string
	SecondaryNIC string
}

// String renders the entry as the comma separated [node] value.
func (n Node) String() string {
	return strings.Join([]string{n.Name, n.Address, n.Password, n.PrimaryNIC, n.SecondaryNIC}, ",")
}

// ParseNode parses a [node] value.
func ParseNode(value string) (Node, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 5 {
		return Node{}, fmt.Errorf("invalid node entry %q: want 5 comma separated fields, got %d", value, len(parts))
	}
	return Node{
		Name:         parts[0],
		Address:      parts[1],
		Password:     parts[2],
		PrimaryNIC:   parts[3],
		SecondaryNIC: parts[4],
	}, nil
}

// Global is the [global] section of a multi-node inventory.
type Global struct {
	VIP      string
	RouterID string
}

// File is an inventory loaded from disk.
type File struct {
	path string
	cfg  *ini.File
}

// loadOptions keeps '#' and ';' as part of values. Passwords may contain
// either, and the deploy script reads values verbatim, so saved values must
// never be quoted.
var loadOptions = ini.LoadOptions{IgnoreInlineComment: true}

// Load reads an existing inventory template.
func Load(path string) (*File, error) {
	cfg, err := ini.LoadSources(loadOptions, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load inventory %s: %w", path, err)
	}
	return &File{path: path, cfg: cfg}, nil
}

// Path is the file the inventory is saved to.
func (f *File) Path() string {
	return f.path
}

// SetNode sets one [node] key.
func (f *File) SetNode(key string, n Node) {
	f.cfg.Section(sectionNode).Key(key).SetValue(n.String())
}

// SetGlobal sets the keepalived settings of a multi-node inventory.
func (f *File) SetGlobal(g Global) {
	sec := f.cfg.Section(sectionGlobal)
	sec.Key(keyVIP).SetValue(g.VIP)
	sec.Key(keyRouterID).SetValue(g.RouterID)
}

// Save writes the inventory back to its path.
func (f *File) Save() error {
	if err := f.cfg.SaveTo(f.path); err != nil {
		return fmt.Errorf("failed to save inventory %s: %w", f.path, err)
	}
	return nil
}

// Entry is one [node] key and its parsed value.
type Entry struct {
	Key  string
	Node Node
}

// Nodes returns the [node] entries in file order.
func (f *File) Nodes() ([]Entry, error) {
	sec, err := f.cfg.GetSection(sectionNode)
	if err != nil {
		return nil, nil
	}
	var entries []Entry
	var errs []error
	for _, key := range sec.Keys() {
		n, err := ParseNode(key.Value())
		if err != nil {
			errs = append(errs, fmt.Errorf("key %s: %w", key.Name(), err))
			continue
		}
		entries = append(entries, Entry{Key: key.Name(), Node: n})
	}
	return entries, errors.Join(errs...)
}

// Global returns the [global] settings. Missing keys are empty.
func (f *File) Global() Global {
	sec, err := f.cfg.GetSection(sectionGlobal)
	if err != nil {
		return Global{}
	}
	return Global{
		VIP:      sec.Key(keyVIP).String(),
		RouterID: sec.Key(keyRouterID).String(),
	}
}

// Bytes renders the inventory as it would be saved.
func (f *File) Bytes() ([]byte, error) {
	var b strings.Builder
	if _, err := f.cfg.WriteTo(&b); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}
