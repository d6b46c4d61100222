package main

import (
	"fmt"
	"strings"

	"github.com/lox/holdem3cfr/internal/game"
)

func parseSeat(s string) (game.Position, error) {
	switch strings.ToLower(s) {
	case "sb":
		return game.SB, nil
	case "bb":
		return game.BB, nil
	case "btn":
		return game.BTN, nil
	default:
		return 0, fmt.Errorf("unknown seat %q, want sb|bb|btn", s)
	}
}
