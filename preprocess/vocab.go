package preprocess

// vocab is a bidirectional string <-> id mapping. Ids are assigned in
// insertion order starting at 0.
type vocab struct {
	toID  map[string]int
	toStr []string
}

func newVocab() *vocab {
	return &vocab{toID: make(map[string]int)}
}

// add inserts s if absent and returns its id.
func (v *vocab) add(s string) int {
	if id, ok := v.toID[s]; ok {
		return id
	}
	id := len(v.toStr)
	v.toID[s] = id
	v.toStr = append(v.toStr, s)
	return id
}

// id returns the id for s.
func (v *vocab) id(s string) (int, bool) {
	id, ok := v.toID[s]
	return id, ok
}

// str returns the string for id.
func (v *vocab) str(id int) (string, bool) {
	if id < 0 || id >= len(v.toStr) {
		return "", false
	}
	return v.toStr[id], true
}

func (v *vocab) size() int { return len(v.toStr) }

// entries returns the strings in id order. The returned slice is shared
// state and must not be modified.
func (v *vocab) entries() []string { return v.toStr }

func vocabFromEntries(entries []string) *vocab {
	v := newVocab()
	for _, s := range entries {
		v.add(s)
	}
	return v
}
