package solver

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Outcome is the result of perfect play seen by the perspective player.
// The zero value means no result (an illegal move).
type Outcome int8

const (
	NoOutcome Outcome = iota
	Lose
	Tie
	Win
)

func (o Outcome) Valid() bool {
	return o >= Lose && o <= Win
}

func (o Outcome) String() string {
	switch o {
	case Lose:
		return "lose"
	case Tie:
		return "tie"
	case Win:
		return "win"
	}
	return ""
}

// Flip returns the same result seen by the other player.
func (o Outcome) Flip() Outcome {
	switch o {
	case Lose:
		return Win
	case Win:
		return Lose
	}
	return o
}

func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "win":
		return Win, nil
	case "lose", "loss":
		return Lose, nil
	case "tie", "draw":
		return Tie, nil
	case "", "none", "null":
		return NoOutcome, nil
	}
	return NoOutcome, fmt.Errorf("unknown outcome %q", s)
}

// Better returns the preferred of two outcomes, ignoring NoOutcome.
func Better(a, b Outcome) Outcome {
	if !a.Valid() {
		return b
	}
	if b.Valid() && b > a {
		return b
	}
	return a
}

// Worse returns the least preferred of two outcomes, ignoring NoOutcome.
func Worse(a, b Outcome) Outcome {
	if !a.Valid() {
		return b
	}
	if b.Valid() && b < a {
		return b
	}
	return a
}

// BestColumn returns the leftmost column with the best outcome, or -1.
func BestColumn(outcomes []Outcome) int {
	col := -1
	best := NoOutcome
	for x, o := range outcomes {
		if o.Valid() && Better(best, o) != best {
			best = o
			col = x
		}
	}
	return col
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	if !o.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(o.String())
}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = NoOutcome
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseOutcome(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
