package engine

import (
	"github.com/robertsinfosec/proxstor/internal/inspect"
	"github.com/robertsinfosec/proxstor/internal/label"
	"github.com/robertsinfosec/proxstor/internal/lvm"
	"github.com/robertsinfosec/proxstor/internal/registry"
)

// diskState tracks a disk through the reconciliation decision:
//
//	unclassified -> classified -> labeledCorrectly -> healed
//	                           -> unlabeled        -> recreated
//
// unclassified disks never leave the first state; nothing destructive
// happens to a disk whose media class is unknown.
type diskState int

const (
	stateUnclassified diskState = iota
	stateClassified
	stateLabeledCorrectly
	stateUnlabeled
	stateHealed
	stateRecreated
)

func (s diskState) String() string {
	switch s {
	case stateUnclassified:
		return "unclassified"
	case stateClassified:
		return "classified"
	case stateLabeledCorrectly:
		return "labeled-correctly"
	case stateUnlabeled:
		return "unlabeled"
	case stateHealed:
		return "healed"
	case stateRecreated:
		return "recreated"
	}
	return "invalid"
}

// action is what reconciliation will do to a disk.
type action int

const (
	actionSkip action = iota
	actionHeal
	actionRecreate
)

// decision is the planned outcome for one disk.
type decision struct {
	disk   inspect.Disk
	class  inspect.Class
	state  diskState
	action action

	// heal fields
	lab     label.Label
	current registry.Backend // backend detected from on-disk structures
	pool    string           // thin pool name, when current is lvmthin

	// recreate fields
	stale string // registry ID to remove before provisioning

	reason string
}

// world is the observed host state the transition function runs
// against.
type world struct {
	digit byte
	units map[string]registry.Unit
	vgs   map[string]lvm.VG
	pools map[string]string // vg name -> thin pool name
}

// evaluate runs one disk through the transition table. explicit means
// the operator forced this disk in scope with --all or a filter that
// selects it; forced disks are recreated even when correctly labeled.
func evaluate(d inspect.Disk, class inspect.Class, explicit bool, w world) decision {
	dec := decision{disk: d, class: class, state: stateUnclassified}

	kind, ok := class.LabelKind()
	if !ok {
		dec.action = actionSkip
		dec.reason = "media class could not be determined; classification is never guessed"
		return dec
	}
	dec.state = stateClassified

	lab, err := label.Parse(d.StorageLabel())
	correct := err == nil && lab.Kind == kind && lab.NodeDigit == w.digit
	if !correct || explicit {
		dec.state = stateUnlabeled
		dec.action = actionRecreate
		if err == nil {
			// A well-formed label on a disk being recreated leaves a
			// stale registry entry behind.
			dec.stale = lab.String()
		}
		switch {
		case explicit:
			dec.reason = "operator forced recreation"
		case err != nil:
			dec.reason = "no storage label on disk"
		default:
			dec.reason = "label does not match this disk's class and node"
		}
		return dec
	}

	dec.state = stateLabeledCorrectly
	dec.action = actionHeal
	dec.lab = lab
	dec.current = detectBackend(lab, w)
	dec.pool = w.pools[lab.String()]
	dec.reason = "label intact; healing mount and registry state"
	return dec
}

// detectBackend infers a correctly-labeled disk's backend from its
// on-disk structures: a volume group named after the label means a
// volume backend (thin when its pool exists), anything else is a
// directory unit.
func detectBackend(lab label.Label, w world) registry.Backend {
	if _, ok := w.vgs[lab.String()]; ok {
		if w.pools[lab.String()] != "" {
			return registry.BackendLVMThin
		}
		return registry.BackendLVM
	}
	return registry.BackendDir
}
