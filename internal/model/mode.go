package model

// Mode selects which change classes cause a trigger to fire.
type Mode string

const (
	ModeCreate         Mode = "CREATE"
	ModeUpdate         Mode = "UPDATE"
	ModeCreateOrUpdate Mode = "CREATE_OR_UPDATE"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeCreate, ModeUpdate, ModeCreateOrUpdate:
		return true
	}
	return false
}

// FiresOnCreate reports whether a never-before-seen resource fires under m.
func (m Mode) FiresOnCreate() bool {
	return m == ModeCreate || m == ModeCreateOrUpdate
}

// FiresOnUpdate reports whether a version change on a known resource
// fires under m.
func (m Mode) FiresOnUpdate() bool {
	return m == ModeUpdate || m == ModeCreateOrUpdate
}
