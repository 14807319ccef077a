package switcher

import (
	"fmt"

	"github.com/OCAP2/partswitch/internal/gate"
)

// DeployStatus is the outcome of a deploy or stow request.
type DeployStatus int

const (
	DeployDone DeployStatus = iota
	DeployUnchanged
	DeployUnsupported
	Occupied
	Attached
	NeedsConfirmation
	DeployDeclined
)

func (s DeployStatus) String() string {
	switch s {
	case DeployDone:
		return "done"
	case DeployUnchanged:
		return "unchanged"
	case DeployUnsupported:
		return "unsupported"
	case Occupied:
		return "occupied"
	case Attached:
		return "attached"
	case NeedsConfirmation:
		return "needs confirmation"
	case DeployDeclined:
		return "declined"
	default:
		return "unknown"
	}
}

// DeployResult describes one deploy or stow request.
type DeployResult struct {
	Status   DeployStatus
	Deployed bool
	Cost     float64 // charged when deploying
	Salvage  float64 // recovered when stowing
	Resource string
	Message  string
}

// SetDeployed deploys or stows the host. Stowing with stored resources
// takes a second confirming call; any other action in between resets it.
func (c *Controller) SetDeployed(deploy bool) DeployResult {
	confirmed := c.confirmDeflate
	c.confirmDeflate = false
	res := DeployResult{Deployed: c.deployed}

	switch {
	case !c.opts.Inflatable:
		res.Status = DeployUnsupported
		res.Message = "This host cannot be stowed"
		return res
	case c.phase == transitioning:
		res.Status = DeployDeclined
		res.Message = "Reconfiguration in progress"
		return res
	case deploy == c.deployed:
		res.Status = DeployUnchanged
		return res
	}

	p := c.host.Platform()
	if p != nil && len(p.Occupants()) > 0 && !c.opts.AllowDeployWhenOccupied {
		res.Status = Occupied
		res.Message = "Cannot change deployment with crew aboard"
		return res
	}
	if p != nil && p.HasAttachedObjects() && !c.opts.AllowDeployWithAttachments {
		res.Status = Attached
		res.Message = "Cannot change deployment with objects attached"
		return res
	}

	tpl := c.current()
	if tpl != nil {
		res.Resource = tpl.Price.Resource
	}

	if deploy {
		if tpl != nil && c.policy.PayToReconfigure && !tpl.Price.IsFree() {
			res.Cost = tpl.Price.Amount * c.capacityFactor
			if _, err := gate.Pay(p, tpl.Price.Resource, res.Cost); err != nil {
				res.Status = DeployDeclined
				res.Message = fmt.Sprintf("Deploying needs %.1f %s", res.Cost, tpl.Price.Resource)
				return res
			}
		}
		c.deployed = true
		c.everDeployed = true
	} else {
		if c.hasStoredResources() && !confirmed {
			c.confirmDeflate = true
			res.Status = NeedsConfirmation
			res.Message = "Stored resources will be lost, stow again to confirm"
			return res
		}
		if tpl != nil && p != nil && c.policy.PayToReconfigure && !tpl.Price.IsFree() {
			_, level, _ := gate.FindOperator(tpl.Price.Skill, c.situation(tpl.Price))
			_, room := p.Available(tpl.Price.Resource)
			if amount := gate.Salvage(tpl, level, c.capacityFactor, room, c.policy); amount > 0 {
				res.Salvage = p.Deposit(tpl.Price.Resource, amount)
			}
		}
		c.deployed = false
	}

	c.rescale()
	res.Status = DeployDone
	res.Deployed = c.deployed
	res.Message = "Stowed"
	outcome := "stowed"
	if c.deployed {
		res.Message = "Deployed"
		outcome = "deployed"
	}

	name := c.CurrentName()
	c.logger.Info("Deployment changed", "template", name, "deployed", c.deployed, "cost", res.Cost, "salvage", res.Salvage)
	c.record(eventFor(name, res.Resource, res.Cost-res.Salvage, outcome))
	return res
}

// hasStoredResources reports whether any templated resource is non-empty.
func (c *Controller) hasStoredResources() bool {
	tpl := c.current()
	if tpl == nil {
		return false
	}
	inv := c.host.Inventory()
	for _, r := range tpl.Resources {
		if have, ok := inv.Get(r.Name); ok && !have.IsEmpty() {
			return true
		}
	}
	return false
}
