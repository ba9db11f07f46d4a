package macro

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/anicolao/gofugue/internal/pattern"
)

// Store owns every macro, keyed by serial number. All secondary indexes
// (name, key, hook, priority-ordered trigger list) are maintained on every
// mutation.
type Store struct {
	macros  map[int]*Macro
	byName  map[string]int
	byKey   map[string]int
	ordered []int // trigger candidates: priority desc, then num desc
	serial  int
	rng     *xorshift
}

// NewStore returns an empty store. The probability generator is seeded from
// OS entropy here, once per store.
func NewStore() *Store {
	var seed [8]byte
	if _, err := crand.Read(seed[:]); err != nil {
		// crypto/rand read failure means the OS entropy source is broken;
		// nothing sensible to fall back to.
		panic(fmt.Sprintf("seeding macro PRNG: %v", err))
	}
	return &Store{
		macros: make(map[int]*Macro),
		byName: make(map[string]int),
		byKey:  make(map[string]int),
		rng:    newXorshift(binary.LittleEndian.Uint64(seed[:])),
	}
}

// Len returns the number of stored macros.
func (s *Store) Len() int { return len(s.macros) }

// Define creates a macro from spec and returns its serial number. A name
// collision replaces the existing macro; the replacement keeps the old
// macro's slot in trigger order only when the priority is unchanged,
// otherwise it is reinserted with a fresh serial.
func (s *Store) Define(spec Spec) (int, error) {
	var pat *pattern.Pattern
	if spec.PatternText != "" {
		var err error
		pat, err = pattern.Compile(spec.Mode, spec.PatternText)
		if err != nil {
			return 0, err
		}
	}
	chance := spec.Chance
	if chance == 0 {
		chance = 100
	}

	m := &Macro{
		Name:        spec.Name,
		Pattern:     pat,
		Hooks:       spec.Hooks,
		Key:         spec.Key,
		Body:        spec.Body,
		Priority:    spec.Priority,
		Chance:      chance,
		World:       spec.World,
		Attr:        spec.Attr,
		Flags:       spec.Flags,
		ExpireAfter: spec.ExpireAfter,
	}

	if spec.Name != "" {
		if oldNum, ok := s.byName[spec.Name]; ok {
			old := s.macros[oldNum]
			if old.Priority == spec.Priority {
				// Same priority: replace in place, keeping the trigger slot.
				m.Num = oldNum
				s.removeIndexes(old)
				s.macros[oldNum] = m
				s.addIndexes(m)
				return oldNum, nil
			}
			s.remove(oldNum)
		}
	}

	s.serial++
	m.Num = s.serial
	s.macros[m.Num] = m
	s.addIndexes(m)
	return m.Num, nil
}

// Get returns the macro with the given serial, or nil.
func (s *Store) Get(num int) *Macro { return s.macros[num] }

// FindByName returns the named macro, or nil.
func (s *Store) FindByName(name string) *Macro {
	if num, ok := s.byName[name]; ok {
		return s.macros[num]
	}
	return nil
}

// FindBinding returns the macro bound to key, or nil.
func (s *Store) FindBinding(key string) *Macro {
	if num, ok := s.byKey[key]; ok {
		return s.macros[num]
	}
	return nil
}

// FindTriggers returns the triggers that fire for line in the given world:
// every matching fall-through trigger in priority order, then the first
// matching non-fall-through, at which point collection stops. The returned
// slice is a snapshot; bodies that mutate the store during dispatch do not
// affect it.
func (s *Store) FindTriggers(line, world string) []*Macro {
	var out []*Macro
	for _, num := range s.ordered {
		m := s.macros[num]
		if !m.IsTrigger() || !m.matchesWorld(world) {
			continue
		}
		if !m.Pattern.Matches(line) {
			continue
		}
		out = append(out, m)
		if !m.Flags.FallThrough {
			break
		}
	}
	return out
}

// FireHook returns every macro handling hook, in the same priority order as
// triggers; unlike FindTriggers it does not stop at a non-fall-through
// macro. A hook macro with a pattern additionally requires the pattern to
// match the hook argument.
func (s *Store) FireHook(h Hook, arg string) []*Macro {
	var out []*Macro
	for _, num := range s.ordered {
		m := s.macros[num]
		if !m.Hooks.Contains(h) {
			continue
		}
		if m.Pattern != nil && !m.Pattern.Matches(arg) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// ShouldFire rolls the macro's probability. A chance of 100 always fires.
func (s *Store) ShouldFire(m *Macro) bool {
	if m.Chance >= 100 {
		return true
	}
	return int(s.rng.next()%100) < m.Chance
}

// CountInvocation decrements a self-destruct counter after an invocation
// and removes the macro when it reaches zero. It reports whether the macro
// was removed.
func (s *Store) CountInvocation(m *Macro) bool {
	if m.ExpireAfter == 0 {
		return false
	}
	m.ExpireAfter--
	if m.ExpireAfter > 0 {
		return false
	}
	// The macro may already have been removed by its own body.
	if s.macros[m.Num] == m {
		s.remove(m.Num)
	}
	return true
}

// Remove deletes the macro with the given serial. It reports whether the
// macro existed.
func (s *Store) Remove(num int) bool {
	if _, ok := s.macros[num]; !ok {
		return false
	}
	s.remove(num)
	return true
}

// RemoveByName deletes the named macro.
func (s *Store) RemoveByName(name string) bool {
	num, ok := s.byName[name]
	if !ok {
		return false
	}
	s.remove(num)
	return true
}

// Purge removes every macro the predicate selects and rebuilds the indexes
// in one pass. It returns the number removed.
func (s *Store) Purge(pred func(*Macro) bool) int {
	removed := 0
	for num, m := range s.macros {
		if pred(m) {
			delete(s.macros, num)
			removed++
		}
	}
	if removed > 0 {
		s.rebuild()
	}
	return removed
}

// All returns every macro in trigger order (priority desc, num desc).
// Every macro, whether trigger, hook or binding, has a slot in that order.
func (s *Store) All() []*Macro {
	out := make([]*Macro, 0, len(s.macros))
	for _, num := range s.ordered {
		out = append(out, s.macros[num])
	}
	return out
}

func (s *Store) remove(num int) {
	m := s.macros[num]
	s.removeIndexes(m)
	delete(s.macros, num)
}

func (s *Store) addIndexes(m *Macro) {
	if m.Name != "" {
		s.byName[m.Name] = m.Num
	}
	if m.Key != "" {
		s.byKey[m.Key] = m.Num
	}
	s.insertOrdered(m)
}

func (s *Store) removeIndexes(m *Macro) {
	if m.Name != "" && s.byName[m.Name] == m.Num {
		delete(s.byName, m.Name)
	}
	if m.Key != "" && s.byKey[m.Key] == m.Num {
		delete(s.byKey, m.Key)
	}
	for i, num := range s.ordered {
		if num == m.Num {
			s.ordered = append(s.ordered[:i], s.ordered[i+1:]...)
			break
		}
	}
}

// insertOrdered places m.Num at its sorted position: priority descending,
// then serial descending so the most recent definition wins ties.
func (s *Store) insertOrdered(m *Macro) {
	i := sort.Search(len(s.ordered), func(i int) bool {
		o := s.macros[s.ordered[i]]
		if o.Priority != m.Priority {
			return o.Priority < m.Priority
		}
		return o.Num < m.Num
	})
	s.ordered = append(s.ordered, 0)
	copy(s.ordered[i+1:], s.ordered[i:])
	s.ordered[i] = m.Num
}

func (s *Store) rebuild() {
	s.byName = make(map[string]int, len(s.macros))
	s.byKey = make(map[string]int, len(s.macros))
	s.ordered = s.ordered[:0]
	nums := make([]int, 0, len(s.macros))
	for num := range s.macros {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	for _, num := range nums {
		s.addIndexes(s.macros[num])
	}
}

// xorshift is an xorshift64* generator; cheap and good enough for trigger
// probability rolls.
type xorshift struct {
	state uint64
}

func newXorshift(seed uint64) *xorshift {
	if seed == 0 {
		seed = 0x9e3779b97f4a7c15
	}
	return &xorshift{state: seed}
}

func (x *xorshift) next() uint64 {
	x.state ^= x.state >> 12
	x.state ^= x.state << 25
	x.state ^= x.state >> 27
	return x.state * 0x2545f4914f6cdd1d
}
