// Package optimiser glues the SPSO engine, the durable store, and the task
// farm together: it turns configured compiler flags into search
// dimensions, renders a swarm position back into a command-line fragment,
// and carries fitness reports between the three.
package optimiser

import (
	"fmt"
	"strings"

	"github.com/j-r-jones/optsearch/logging"
	"github.com/j-r-jones/optsearch/spso"
)

// FlagKind distinguishes the three flag shapes a compiler option can take.
// Kept as a tagged variant rather than an interface hierarchy: spec.md §9
// explicitly rejects polymorphism here in favor of a closed, inspectable
// union.
type FlagKind int

const (
	OnOff FlagKind = iota
	List
	Range
)

func (k FlagKind) String() string {
	switch k {
	case OnOff:
		return "on-off"
	case List:
		return "list"
	case Range:
		return "range"
	default:
		return "unknown"
	}
}

// Flag is one configured compiler option. Only the fields relevant to Kind
// are meaningful; the rest are zero. UID must be unique within a flag set
// and is used verbatim as the resulting spso.Dimension's UID.
type Flag struct {
	UID  int64
	Name string
	Kind FlagKind

	Prefix    string
	NegPrefix string // OnOff only

	Separator string
	Values    []string // List only

	Min, Max int // Range only
	Default  int // Range only, used only to repair a degenerate Min/Max

	DependsOn    []string
	DependedOnBy []string
}

// FlagToDimension converts one configured Flag into the integer dimension
// SPSO searches over, per the per-kind rules in SPEC_FULL.md 4.6.
func FlagToDimension(f Flag) spso.Dimension {
	switch f.Kind {
	case OnOff:
		return spso.Dimension{UID: f.UID, Name: f.Name, Min: 0, Max: 2}
	case List:
		return spso.Dimension{UID: f.UID, Name: f.Name, Min: 0, Max: len(f.Values)}
	case Range:
		lo, hi := f.Min, f.Max
		if hi <= lo {
			if f.Default > lo {
				hi = 2 * f.Default
			} else {
				hi = 100
			}
			logging.Warnf("optimiser: flag %q has degenerate range [%d,%d], substituting max=%d", f.Name, f.Min, f.Max, hi)
		}
		return spso.Dimension{UID: f.UID, Name: f.Name, Min: lo, Max: hi + 1}
	default:
		return spso.Dimension{UID: f.UID, Name: f.Name, Min: 0, Max: 1}
	}
}

// RenderFragment renders the command-line fragment for flag f at value v,
// or the empty string if v yields no fragment (a List/Range value out of
// range, or a separator-less List).
func RenderFragment(f Flag, v int) string {
	switch f.Kind {
	case OnOff:
		switch v {
		case 1:
			return f.Prefix + f.Name
		case 0:
			return f.NegPrefix + f.Name
		default:
			return ""
		}
	case List:
		if v < 0 || v >= len(f.Values) || f.Separator == "" {
			return ""
		}
		return f.Prefix + f.Name + f.Separator + f.Values[v]
	case Range:
		if v < f.Min || v > f.Max {
			return ""
		}
		return fmt.Sprintf("%s%s%s%d", f.Prefix, f.Name, f.Separator, v)
	default:
		return ""
	}
}

// RenderPosition renders every flag in flags against the matching
// component of pos (flags and pos must be the same length and in
// dimension order) into the space-separated command-line string a worker
// passes as FLAGS to its scripts.
func RenderPosition(flags []Flag, pos spso.Position) string {
	parts := make([]string, 0, len(flags))
	for i, f := range flags {
		if i >= len(pos) {
			break
		}
		frag := RenderFragment(f, pos[i])
		if frag == "" {
			logging.Debugf("optimiser: flag %q produced an empty fragment at value %d, skipping", f.Name, pos[i])
			continue
		}
		parts = append(parts, frag)
	}
	return strings.Join(parts, " ")
}
