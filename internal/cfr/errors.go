package cfr

import "errors"

// Errors specific to the training loop and its persisted tables.
// game.ErrIllegalAction, game.ErrNotTerminal, game.ErrDeckExhausted, and
// abstraction.ErrInvalidBoard round out the taxonomy described for the
// solver.
var (
	ErrIOError       = errors.New("cfr: save/load failure")
	ErrDepthExceeded = errors.New("cfr: recursion depth guard tripped")
)
