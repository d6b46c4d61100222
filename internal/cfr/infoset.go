package cfr

import (
	"strconv"
	"strings"

	"github.com/lox/holdem3cfr/internal/game"
)

// tagFor maps an action kind to the persisted format's numeric tag:
// 0=FOLD, 1=CHECK, 2=CALL, 3=BET, 4=RAISE.
func tagFor(kind game.ActionKind) int {
	switch kind {
	case game.Fold:
		return 0
	case game.Check:
		return 1
	case game.Call:
		return 2
	case game.Bet:
		return 3
	case game.Raise:
		return 4
	default:
		return -1
	}
}

func kindForTag(tag int) (game.ActionKind, bool) {
	switch tag {
	case 0:
		return game.Fold, true
	case 1:
		return game.Check, true
	case 2:
		return game.Call, true
	case 3:
		return game.Bet, true
	case 4:
		return game.Raise, true
	default:
		return 0, false
	}
}

// SerialiseAction renders an action as "<type_tag_int>,<amount_double>",
// the wire form used both as regret/strategy table map keys and in the
// persisted binary format.
func SerialiseAction(a game.Action) string {
	return strconv.Itoa(tagFor(a.Kind)) + "," + strconv.FormatFloat(a.Amount, 'g', -1, 64)
}

// DeserialiseAction parses the wire form produced by SerialiseAction.
func DeserialiseAction(s string) (game.Action, bool) {
	tagStr, amountStr, ok := strings.Cut(s, ",")
	if !ok {
		return game.Action{}, false
	}
	tag, err := strconv.Atoi(tagStr)
	if err != nil {
		return game.Action{}, false
	}
	kind, ok := kindForTag(tag)
	if !ok {
		return game.Action{}, false
	}
	amount, err := strconv.ParseFloat(amountStr, 64)
	if err != nil {
		return game.Action{}, false
	}
	return game.Action{Kind: kind, Amount: amount}, true
}

// historyToken renders one public history step as "<pos>:<action-tag>[<amount>]".
func historyToken(entry game.HistoryEntry) string {
	var sb strings.Builder
	sb.WriteString(entry.Position.String())
	sb.WriteByte(':')
	sb.WriteString(entry.Action.Kind.String())
	switch entry.Action.Kind {
	case game.Bet, game.Raise, game.Call:
		sb.WriteByte('[')
		sb.WriteString(strconv.FormatFloat(entry.Action.Amount, 'g', -1, 64))
		sb.WriteByte(']')
	}
	return sb.String()
}

// historySerialised renders the full public action history grouped by
// round, rounds separated by "/" and steps within a round by ",".
func historySerialised(history []game.HistoryEntry) string {
	var rounds [4][]string
	for _, entry := range history {
		rounds[entry.Round] = append(rounds[entry.Round], historyToken(entry))
	}

	parts := make([]string, 0, 4)
	for _, tokens := range rounds {
		parts = append(parts, strings.Join(tokens, ","))
	}
	return strings.Join(parts, "/")
}

// InfoSetKey is the pure function of (state, perspective) described for
// the info-set builder: two states whose perspective player's hole
// cards fall in the same bucket, whose board/round/history match,
// produce the same key even if opponents' hole cards differ.
func InfoSetKey(perspective game.Position, round game.Round, bucket int, history []game.HistoryEntry) string {
	var sb strings.Builder
	sb.WriteString(perspective.String())
	sb.WriteByte('|')
	sb.WriteString(round.String())
	sb.WriteByte('|')
	sb.WriteString(strconv.Itoa(bucket))
	sb.WriteByte('|')
	sb.WriteString(historySerialised(history))
	return sb.String()
}
