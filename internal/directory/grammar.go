package directory

// nameState is a state of the name grammar automaton.
type nameState uint8

const (
	// nameStart is the initial state; it rejects, so the empty name does too.
	nameStart nameState = iota
	// nameAccept is reached by any run of characters in the class.
	nameAccept
	// nameSink absorbs every character once a character outside the class
	// has been seen. It never accepts.
	nameSink
)

// inNameClass reports whether c belongs to [a-z0-9._-].
func inNameClass(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '.' || c == '_' || c == '-':
		return true
	}
	return false
}

func nameStep(s nameState, c byte) nameState {
	if s == nameSink || !inNameClass(c) {
		return nameSink
	}
	return nameAccept
}

// ValidName reports whether name matches [a-z0-9._-]+.
//
// Input is consumed byte by byte, so any multi-byte UTF-8 sequence falls
// outside the class and rejects.
func ValidName(name string) bool {
	s := nameStart
	for i := 0; i < len(name); i++ {
		s = nameStep(s, name[i])
	}
	return s == nameAccept
}
