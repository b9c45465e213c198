// Package label implements the storage naming scheme for node-local
// storage units. A label has the form KIND-NODELETTER (e.g. "HDD-2C"):
// the kind of backing media, the node's identity digit, and a letter
// that makes the name unique on that node.
//
// Labels are shared between partition names, volume group names, and
// storage registry IDs, so allocation has to consider all of them.
package label

import (
	"fmt"
	"regexp"
)

// Kind is the media class encoded in a storage label.
type Kind string

const (
	KindHDD Kind = "HDD" // rotational disk
	KindSSD Kind = "SSD" // solid-state disk
	KindNFS Kind = "NFS" // network filesystem export
)

// Pattern matches a well-formed storage label: KIND-DIGITLETTER.
var Pattern = regexp.MustCompile(`^(HDD|SSD|NFS)-[0-9][A-Z]$`)

// Label identifies one storage unit on one node.
type Label struct {
	Kind      Kind
	NodeDigit byte // '0'..'9'
	Letter    byte // 'A'..'Z'
}

// String renders the label in its canonical KIND-NODELETTER form.
func (l Label) String() string {
	return fmt.Sprintf("%s-%c%c", l.Kind, l.NodeDigit, l.Letter)
}

// Parse parses a canonical label string.
func Parse(s string) (Label, error) {
	if !Pattern.MatchString(s) {
		return Label{}, fmt.Errorf("invalid storage label %q (want KIND-DIGITLETTER, e.g. HDD-2C)", s)
	}
	dash := len(s) - 3 // "-NC" suffix
	return Label{
		Kind:      Kind(s[:dash]),
		NodeDigit: s[dash+1],
		Letter:    s[dash+2],
	}, nil
}

// IsLabel reports whether s has the shape of a storage label. Filters
// with this shape are treated as storage-name filters rather than
// device paths.
func IsLabel(s string) bool {
	return Pattern.MatchString(s)
}

// NextLetter returns the lowest letter A-Z not used by any existing
// name of the form KIND-DIGITLETTER for the given kind and node digit.
// The existing set should contain both partition labels and volume
// group names; entries that are not labels are ignored.
//
// Allocation is deterministic: the same existing set always yields the
// same letter.
func NextLetter(kind Kind, nodeDigit byte, existing []string) (byte, error) {
	var used [26]bool
	for _, name := range existing {
		l, err := Parse(name)
		if err != nil {
			continue
		}
		if l.Kind == kind && l.NodeDigit == nodeDigit {
			used[l.Letter-'A'] = true
		}
	}
	for i := range used {
		if !used[i] {
			return byte('A' + i), nil
		}
	}
	return 0, fmt.Errorf("all 26 %s labels for node %c are in use", kind, nodeDigit)
}

// Next allocates the next free label for the given kind and node digit.
func Next(kind Kind, nodeDigit byte, existing []string) (Label, error) {
	letter, err := NextLetter(kind, nodeDigit, existing)
	if err != nil {
		return Label{}, err
	}
	return Label{Kind: kind, NodeDigit: nodeDigit, Letter: letter}, nil
}

// ThinPoolName returns the deterministic thin-pool name for a label.
// Format: data-<digit><lowercase letter> (e.g. "data-3a").
func (l Label) ThinPoolName() string {
	return fmt.Sprintf("data-%c%c", l.NodeDigit, l.Letter+('a'-'A'))
}
