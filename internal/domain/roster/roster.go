// Package roster holds the roster domain: players bound to starter and bench
// slots, and the copy-on-write view the UI renders.
package roster

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Location is where a slot lives.
type Location string

const (
	Starter Location = "STARTER"
	Bench   Location = "BENCH"
)

// StarterSlots is the number of on-court slots, one per position.
const StarterSlots = 5

// Positions lists the starter positions in slot order.
var Positions = []string{"PG", "SG", "SF", "PF", "C"} //nolint:gochecknoglobals // fixed position table

// ParseLocation accepts STARTER or BENCH in any case.
func ParseLocation(s string) (Location, error) {
	switch Location(strings.ToUpper(strings.TrimSpace(s))) {
	case Starter:
		return Starter, nil
	case Bench:
		return Bench, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidLocation, s)
	}
}

// SlotRef addresses one roster position.
type SlotRef struct {
	Location Location `json:"location"`
	Slot     int      `json:"slot"`
}

func (r SlotRef) String() string {
	return strings.ToLower(string(r.Location)) + "-" + strconv.Itoa(r.Slot)
}

// ParseSlotRef reads the "starter-3" / "bench-0" form produced by String.
func ParseSlotRef(s string) (SlotRef, error) {
	loc, idx, ok := strings.Cut(s, "-")
	if !ok {
		return SlotRef{}, fmt.Errorf("%w: %q", ErrInvalidSlot, s)
	}
	l, err := ParseLocation(loc)
	if err != nil {
		return SlotRef{}, err
	}
	n, err := strconv.Atoi(idx)
	if err != nil || n < 0 {
		return SlotRef{}, fmt.Errorf("%w: %q", ErrInvalidSlot, s)
	}
	return SlotRef{Location: l, Slot: n}, nil
}

// Player is immutable for the lifetime of a session.
type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Pos      string `json:"pos"`
	Overall  int    `json:"overall"`
	ImageURL string `json:"imageUrl"`
	Salary   string `json:"salary,omitempty"`
	Price    string `json:"price,omitempty"`
	Offense  *int   `json:"offense,omitempty"`
	Defense  *int   `json:"defense,omitempty"`
}

// Rating returns a pointer suitable for Offense or Defense.
func Rating(v int) *int { return &v }

// Slot binds a player to a position.
type Slot struct {
	Location Location `json:"location"`
	Slot     int      `json:"slot"`
	Player   Player   `json:"player"`
}

// Ref returns the slot address.
func (s Slot) Ref() SlotRef { return SlotRef{Location: s.Location, Slot: s.Slot} }

// View is the client side copy of a roster. Treat it as a value: every
// mutation goes through Swap, which returns a fresh copy.
type View struct {
	Starters []Slot `json:"starters"`
	Bench    []Slot `json:"bench"`
}

// Clone copies both slot collections so the receiver stays valid.
func (v View) Clone() View {
	out := View{
		Starters: make([]Slot, len(v.Starters)),
		Bench:    make([]Slot, len(v.Bench)),
	}
	copy(out.Starters, v.Starters)
	copy(out.Bench, v.Bench)
	return out
}

// Empty reports whether the view has no slots at all.
func (v View) Empty() bool { return len(v.Starters) == 0 && len(v.Bench) == 0 }

func (v View) collection(loc Location) []Slot {
	if loc == Starter {
		return v.Starters
	}
	if loc == Bench {
		return v.Bench
	}
	return nil
}

func (v View) index(ref SlotRef) int {
	for i, s := range v.collection(ref.Location) {
		if s.Slot == ref.Slot {
			return i
		}
	}
	return -1
}

// Find returns the slot at ref.
func (v View) Find(ref SlotRef) (Slot, bool) {
	i := v.index(ref)
	if i < 0 {
		return Slot{}, false
	}
	return v.collection(ref.Location)[i], true
}

// Swap returns a copy of v with the players at from and to exchanged.
// Slot identities stay put. A swap of a slot with itself is a copy.
func (v View) Swap(from, to SlotRef) (View, error) {
	fi, ti := v.index(from), v.index(to)
	if fi < 0 {
		return View{}, fmt.Errorf("swap %s: %w", from, ErrInvalidSlot)
	}
	if ti < 0 {
		return View{}, fmt.Errorf("swap %s: %w", to, ErrInvalidSlot)
	}
	out := v.Clone()
	a := &out.collection(from.Location)[fi]
	b := &out.collection(to.Location)[ti]
	a.Player, b.Player = b.Player, a.Player
	return out, nil
}

// Slots returns starters followed by bench.
func (v View) Slots() []Slot {
	out := make([]Slot, 0, len(v.Starters)+len(v.Bench))
	out = append(out, v.Starters...)
	return append(out, v.Bench...)
}

// Sorted returns a copy with both collections ordered by slot index.
func (v View) Sorted() View {
	out := v.Clone()
	sort.SliceStable(out.Starters, func(i, j int) bool { return out.Starters[i].Slot < out.Starters[j].Slot })
	sort.SliceStable(out.Bench, func(i, j int) bool { return out.Bench[i].Slot < out.Bench[j].Slot })
	return out
}

// Validate checks that every (location, slot) pair is unique, lives in the
// collection matching its location, and that no player occupies two slots.
func (v View) Validate() error {
	if len(v.Starters) > StarterSlots {
		return fmt.Errorf("%w: %d starters", ErrInconsistent, len(v.Starters))
	}
	seenSlot := make(map[SlotRef]struct{}, len(v.Starters)+len(v.Bench))
	seenPlayer := make(map[string]SlotRef, len(v.Starters)+len(v.Bench))
	check := func(loc Location, slots []Slot) error {
		for _, s := range slots {
			if s.Location != loc {
				return fmt.Errorf("%w: %s listed under %s", ErrInconsistent, s.Ref(), loc)
			}
			if s.Slot < 0 || (loc == Starter && s.Slot >= StarterSlots) {
				return fmt.Errorf("%w: %s out of range", ErrInconsistent, s.Ref())
			}
			if _, dup := seenSlot[s.Ref()]; dup {
				return fmt.Errorf("%w: duplicate slot %s", ErrInconsistent, s.Ref())
			}
			seenSlot[s.Ref()] = struct{}{}
			if s.Player.ID == "" {
				continue
			}
			if other, dup := seenPlayer[s.Player.ID]; dup {
				return fmt.Errorf("%w: player %s in %s and %s", ErrInconsistent, s.Player.ID, other, s.Ref())
			}
			seenPlayer[s.Player.ID] = s.Ref()
		}
		return nil
	}
	if err := check(Starter, v.Starters); err != nil {
		return err
	}
	return check(Bench, v.Bench)
}
