package procedure

// Flags is the forward-only milestone flag set. A flag can go from false to
// true; nothing clears it.
type Flags struct {
	order []string
	set   map[string]bool
}

func newFlags(ids []string) *Flags {
	return &Flags{
		order: append([]string(nil), ids...),
		set:   make(map[string]bool, len(ids)),
	}
}

// Set raises id. Returns true when the flag was previously false.
func (f *Flags) Set(id string) bool {
	if f.set[id] {
		return false
	}
	f.set[id] = true
	return true
}

// IsSet reports whether id is raised.
func (f *Flags) IsSet(id string) bool { return f.set[id] }

// AllSet reports whether every id is raised.
func (f *Flags) AllSet(ids ...string) bool {
	for _, id := range ids {
		if !f.set[id] {
			return false
		}
	}
	return true
}

// Count returns the number of raised flags.
func (f *Flags) Count() int {
	n := 0
	for _, id := range f.order {
		if f.set[id] {
			n++
		}
	}
	return n
}

// Values returns a copy keyed by milestone id.
func (f *Flags) Values() map[string]bool {
	out := make(map[string]bool, len(f.order))
	for _, id := range f.order {
		out[id] = f.set[id]
	}
	return out
}

// Raised returns the raised ids in declared order.
func (f *Flags) Raised() []string {
	var out []string
	for _, id := range f.order {
		if f.set[id] {
			out = append(out, id)
		}
	}
	return out
}
