package ir

import "fmt"

// AttrKind enumerates the closed set of recognized attributes. Unrecognized
// attribute names are rejected at construction instead of being carried as
// free-form strings.
type AttrKind int

const (
	// AttrBound supplies the trip count required to promote a while loop.
	AttrBound AttrKind = iota
	// AttrPromotable records a proven latency on a node not yet rewritten.
	AttrPromotable
	// AttrPromoted marks a node that has been rewritten to its static form.
	AttrPromoted
	// AttrNewFSM forces a dedicated state register for a control subtree.
	AttrNewFSM
	// AttrStatic declares or records a compiled latency on a group or
	// component.
	AttrStatic
)

func (k AttrKind) String() string {
	switch k {
	case AttrBound:
		return "bound"
	case AttrPromotable:
		return "promotable"
	case AttrPromoted:
		return "promoted"
	case AttrNewFSM:
		return "new_fsm"
	case AttrStatic:
		return "static"
	default:
		return fmt.Sprintf("attr(%d)", int(k))
	}
}

// ParseAttrKind resolves an attribute name; unknown names are an error.
func ParseAttrKind(name string) (AttrKind, error) {
	switch name {
	case "bound":
		return AttrBound, nil
	case "promotable":
		return AttrPromotable, nil
	case "promoted":
		return AttrPromoted, nil
	case "new_fsm":
		return AttrNewFSM, nil
	case "static":
		return AttrStatic, nil
	default:
		return 0, fmt.Errorf("unrecognized attribute %q", name)
	}
}

// AttrSet maps recognized attributes to their integer payload. Attributes
// without a payload store 1.
type AttrSet map[AttrKind]int

// Has reports whether the attribute is present.
func (s AttrSet) Has(k AttrKind) bool {
	if s == nil {
		return false
	}
	_, ok := s[k]
	return ok
}

// Get returns the payload of an attribute and whether it is present.
func (s AttrSet) Get(k AttrKind) (int, bool) {
	if s == nil {
		return 0, false
	}
	v, ok := s[k]
	return v, ok
}

// Set stores an attribute payload, allocating the set if needed.
func (s *AttrSet) Set(k AttrKind, v int) {
	if *s == nil {
		*s = AttrSet{}
	}
	(*s)[k] = v
}

// Clear removes an attribute.
func (s AttrSet) Clear(k AttrKind) {
	delete(s, k)
}

// Clone copies the set.
func (s AttrSet) Clone() AttrSet {
	out := AttrSet{}
	for k, v := range s {
		out[k] = v
	}
	return out
}
