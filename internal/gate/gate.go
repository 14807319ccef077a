// Package gate decides whether a host may switch templates and what it costs.
// Evaluation is pure: it reads a Situation snapshot and never touches host
// state. Payment is the only operation with side effects.
package gate

import (
	"fmt"
	"math"

	"github.com/OCAP2/partswitch/pkg/core"
)

// Policy holds the process-wide switching rules.
type Policy struct {
	PayToReconfigure  bool    // charge the template price on switch
	RequireSkillCheck bool    // require an operator with the price skill
	RecycleBase       float64 // fraction of the current price refunded
	PerLevelBonus     float64 // extra refund fraction per operator level
}

// DefaultPolicy returns the stock rules.
func DefaultPolicy() Policy {
	return Policy{
		PayToReconfigure:  true,
		RequireSkillCheck: true,
		RecycleBase:       0.7,
		PerLevelBonus:     0.05,
	}
}

// RecycleFraction returns the share of a price recovered when tearing down a
// configuration with an operator of the given level.
func (p Policy) RecycleFraction(level int) float64 {
	f := p.RecycleBase + float64(max(level, 0))*p.PerLevelBonus
	return math.Min(math.Max(f, 0), 1)
}

// Reason explains a quote outcome.
type Reason int

const (
	Approved Reason = iota
	Exempt
	NoOperator
	WrongSkill
	Insufficient
)

func (r Reason) String() string {
	switch r {
	case Approved:
		return "approved"
	case Exempt:
		return "exempt"
	case NoOperator:
		return "no operator"
	case WrongSkill:
		return "wrong skill"
	case Insufficient:
		return "insufficient resources"
	default:
		return "unknown"
	}
}

// Situation is a snapshot of everything the gate needs about a host.
type Situation struct {
	Occupants    []core.Occupant
	External     *core.Occupant // operator working from outside the host
	OnBoard      float64        // reachable amount of the target price resource
	Stowed       bool
	EverDeployed bool
}

// Quote is the gate's answer for one candidate switch.
type Quote struct {
	Allowed  bool
	Reason   Reason
	Resource string
	Cost     float64 // positive is charged, negative is paid back
	Skill    string
	Level    int
	Operator string
}

// Refund returns the amount paid back, zero for a charge.
func (q Quote) Refund() float64 {
	if q.Cost < 0 {
		return -q.Cost
	}
	return 0
}

// Message returns a user-facing explanation.
func (q Quote) Message() string {
	switch q.Reason {
	case NoOperator:
		return fmt.Sprintf("Reconfiguring needs someone with %s aboard or nearby", q.Skill)
	case WrongSkill:
		return fmt.Sprintf("Nobody available has the %s skill", q.Skill)
	case Insufficient:
		return fmt.Sprintf("Reconfiguring needs %.1f %s", q.Cost, q.Resource)
	case Exempt:
		return "Reconfiguring is free"
	}
	switch {
	case q.Cost > 0:
		return fmt.Sprintf("Reconfiguring costs %.1f %s", q.Cost, q.Resource)
	case q.Cost < 0:
		return fmt.Sprintf("Reconfiguring returns %.1f %s", -q.Cost, q.Resource)
	}
	return "Reconfiguring is free"
}

// Evaluate quotes a switch from current to target. current may be nil when
// the host has no settled template.
func Evaluate(current, target *core.Template, s Situation, p Policy) Quote {
	q := Quote{Allowed: true, Reason: Approved}
	if target == nil {
		return q
	}
	q.Resource = target.Price.Resource
	q.Skill = target.Price.Skill

	if s.Stowed && !s.EverDeployed {
		q.Reason = Exempt
		return q
	}

	op, level, found := FindOperator(q.Skill, s)
	if found {
		q.Operator, q.Level = op, level
	}
	if q.Skill != "" && p.RequireSkillCheck && !found {
		q.Allowed = false
		q.Reason = WrongSkill
		if len(s.Occupants) == 0 && s.External == nil {
			q.Reason = NoOperator
		}
		return q
	}

	if !p.PayToReconfigure {
		q.Reason = Exempt
		return q
	}

	q.Cost = Cost(current, target, q.Level, p)
	if q.Cost > 0 && s.OnBoard < q.Cost {
		q.Allowed = false
		q.Reason = Insufficient
	}
	return q
}

// Cost is target price minus the recycle credit of the current price.
// The credit only applies when both prices use the same resource.
func Cost(current, target *core.Template, level int, p Policy) float64 {
	if target == nil || target.Price.Resource == "" {
		return 0
	}
	cost := math.Max(target.Price.Amount, 0)
	if current != nil && current.Price.Resource == target.Price.Resource && current.Price.Amount > 0 {
		cost -= current.Price.Amount * p.RecycleFraction(level)
	}
	return cost
}

// FindOperator picks the operator whose level counts. An external operator
// is used exclusively when present. Without a skill requirement the most
// experienced occupant counts.
func FindOperator(skill string, s Situation) (string, int, bool) {
	if s.External != nil {
		if skill == "" || s.External.HasSkill(skill) {
			return s.External.Name, s.External.Level, true
		}
		return "", 0, false
	}

	best, level, found := "", 0, false
	for _, o := range s.Occupants {
		if skill != "" && !o.HasSkill(skill) {
			continue
		}
		if !found || o.Level > level {
			best, level, found = o.Name, o.Level, true
		}
	}
	return best, level, found
}
