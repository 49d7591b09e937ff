package plugin

// State is the position of a plugin in its lifecycle. States form a strict
// total order; a spec only moves forward, except that re-resolving
// dependencies takes a Resolved spec back to Read, and unloading takes a
// Loaded or Initialized spec back to Resolved.
type State int

const (
	// StateInvalid is the starting state, and the resting state of specs
	// whose description file could not be read.
	StateInvalid State = iota
	// StateRead means the description file was parsed successfully.
	StateRead
	// StateResolved means all declared dependencies were matched to specs.
	StateResolved
	// StateLoaded means the plugin library is loaded and an instance of
	// the Plugin interface is available.
	StateLoaded
	// StateInitialized means the plugin's Initialize callback succeeded.
	StateInitialized
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateInvalid:
		return "invalid"
	case StateRead:
		return "read"
	case StateResolved:
		return "resolved"
	case StateLoaded:
		return "loaded"
	case StateInitialized:
		return "initialized"
	default:
		return "unknown"
	}
}
