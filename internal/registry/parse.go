package registry

import (
	"bytes"
	"fmt"
	"strings"
)

// The registry file is a sequence of typed blocks. Each block starts
// with "<backend>: <id>", carries indented "key value" properties, and
// ends at a blank line:
//
//	dir: HDD-3A
//		path /mnt/pve/HDD-3A
//		content images,rootdir
//		nodes pve3
//		shared 0
//
// Entries we do not manage (other backends, shared storages) must
// survive a rewrite byte-for-byte in meaning, so unknown keys are kept
// in order.

// Parse reads every block in the registry file.
func Parse(data []byte) ([]Unit, error) {
	var units []Unit
	var cur *Unit

	lines := strings.Split(string(data), "\n")
	for n, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if cur != nil {
				units = append(units, *cur)
				cur = nil
			}
			continue
		}

		indented := line[0] == ' ' || line[0] == '\t'
		if !indented {
			if cur != nil {
				units = append(units, *cur)
				cur = nil
			}
			backend, id, ok := strings.Cut(trimmed, ":")
			if !ok || strings.TrimSpace(id) == "" {
				return nil, fmt.Errorf("line %d: malformed block header %q", n+1, trimmed)
			}
			cur = &Unit{Backend: Backend(strings.TrimSpace(backend)), ID: strings.TrimSpace(id)}
			continue
		}

		if cur == nil {
			return nil, fmt.Errorf("line %d: property %q outside of a block", n+1, trimmed)
		}
		key, value, _ := strings.Cut(trimmed, " ")
		cur.setProperty(key, strings.TrimSpace(value))
	}
	if cur != nil {
		units = append(units, *cur)
	}
	return units, nil
}

func (u *Unit) setProperty(key, value string) {
	switch key {
	case "path":
		u.Path = value
	case "vgname":
		u.VolumeGroup = value
	case "thinpool":
		u.ThinPool = value
	case "server":
		u.Server = value
	case "export":
		u.Export = value
	case "options":
		u.Options = value
	case "content":
		u.Content = value
	case "nodes":
		u.Nodes = splitNodes(value)
	case "shared":
		v := value == "1"
		u.Shared = &v
	default:
		u.Extra = append(u.Extra, [2]string{key, value})
	}
}

func splitNodes(value string) []string {
	var nodes []string
	for _, n := range strings.Split(value, ",") {
		if n = strings.TrimSpace(n); n != "" {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// Encode renders units back into the block format. Property order is
// canonical; blocks are separated by a single blank line.
func Encode(units []Unit) []byte {
	var buf bytes.Buffer
	for i, u := range units {
		if i > 0 {
			buf.WriteByte('\n')
		}
		fmt.Fprintf(&buf, "%s: %s\n", u.Backend, u.ID)
		writeProp(&buf, "path", u.Path)
		writeProp(&buf, "vgname", u.VolumeGroup)
		writeProp(&buf, "thinpool", u.ThinPool)
		writeProp(&buf, "export", u.Export)
		writeProp(&buf, "server", u.Server)
		writeProp(&buf, "options", u.Options)
		writeProp(&buf, "content", u.Content)
		writeProp(&buf, "nodes", strings.Join(u.Nodes, ","))
		if u.Shared != nil {
			shared := "0"
			if *u.Shared {
				shared = "1"
			}
			writeProp(&buf, "shared", shared)
		}
		for _, kv := range u.Extra {
			writeProp(&buf, kv[0], kv[1])
		}
	}
	return buf.Bytes()
}

func writeProp(buf *bytes.Buffer, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(buf, "\t%s %s\n", key, value)
}
