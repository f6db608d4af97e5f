package router

import (
	"errors"
	"fmt"
	"strings"
)

// Objective is the caller's stated goal for a run.
type Objective string

const (
	General      Objective = "general"
	Coding       Objective = "coding"
	FastResponse Objective = "fast_response"
	CostSaving   Objective = "cost_saving"
)

var ErrUnknownObjective = errors.New("unknown objective")

// Objectives lists every objective in display order.
func Objectives() []Objective {
	return []Objective{General, Coding, FastResponse, CostSaving}
}

// Label is the human form shown to callers ("Fast Response").
func (o Objective) Label() string {
	switch o {
	case General:
		return "General"
	case Coding:
		return "Coding"
	case FastResponse:
		return "Fast Response"
	case CostSaving:
		return "Cost Saving"
	default:
		return string(o)
	}
}

// ParseObjective accepts the canonical value, the label, and common
// spellings: "Fast Response", "fast-response", "fast", "COST_SAVING".
func ParseObjective(s string) (Objective, error) {
	n := strings.ToLower(strings.TrimSpace(s))
	n = strings.NewReplacer(" ", "_", "-", "_").Replace(n)
	switch n {
	case "":
		return "", fmt.Errorf("%w: empty", ErrUnknownObjective)
	case "general":
		return General, nil
	case "coding", "code":
		return Coding, nil
	case "fast_response", "fast":
		return FastResponse, nil
	case "cost_saving", "cost", "cheap":
		return CostSaving, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownObjective, s)
	}
}
