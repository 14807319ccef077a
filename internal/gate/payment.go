package gate

import (
	"errors"
	"fmt"
	"math"

	"github.com/OCAP2/partswitch/pkg/core"
)

// ErrInsufficient is returned when a charge cannot be withdrawn in full.
var ErrInsufficient = errors.New("insufficient resources")

// Payer is the resource primitive payments run against.
type Payer interface {
	Withdraw(resource string, amount float64) float64
	Deposit(resource string, amount float64) float64
}

// Pay charges a positive amount or pays back a negative one. Charges are all
// or nothing: a partial withdrawal is returned before the error is reported.
// It returns the amount actually paid back for refunds.
func Pay(payer Payer, resource string, amount float64) (float64, error) {
	if resource == "" || amount == 0 || payer == nil {
		return 0, nil
	}

	if amount < 0 {
		return payer.Deposit(resource, -amount), nil
	}

	got := payer.Withdraw(resource, amount)
	if got+1e-6 < amount {
		if got > 0 {
			payer.Deposit(resource, got)
		}
		return 0, fmt.Errorf("withdrawing %.2f %s: got %.2f: %w", amount, resource, got, ErrInsufficient)
	}
	return 0, nil
}

// Salvage returns how much of a template's price is recovered when a host
// is deflated, bounded by the operator level, the host's capacity factor and
// the free storage room.
func Salvage(t *core.Template, level int, capacityFactor, room float64, p Policy) float64 {
	if t == nil || t.Price.IsFree() {
		return 0
	}
	if capacityFactor <= 0 {
		capacityFactor = 1
	}
	amount := t.Price.Amount * capacityFactor * p.RecycleFraction(level)
	return math.Max(math.Min(amount, room), 0)
}
