package policy

import (
	"fmt"

	"github.com/roach88/warden/internal/engine"
)

// Apply replays a compiled policy against a running engine: grants
// first, then revocations, then entities, then actions, then the
// strategy switch. Application stops at the first failure.
func Apply(p *Policy, e *engine.Engine) error {
	for _, g := range p.Grants {
		if err := e.Grant(g.Role, g.Capability); err != nil {
			return fmt.Errorf("apply policy %s: %w", p.Name, err)
		}
	}
	for _, r := range p.Revocations {
		if err := e.Revoke(r.Role, r.Capability); err != nil {
			return fmt.Errorf("apply policy %s: %w", p.Name, err)
		}
	}
	for _, seed := range p.Entities {
		if _, err := e.RegisterEntity(seed.ID, seed.Role, seed.Kind, seed.Meta); err != nil {
			return fmt.Errorf("apply policy %s: %w", p.Name, err)
		}
	}
	for _, in := range p.Actions {
		if _, err := e.ScheduleAction(in); err != nil {
			return fmt.Errorf("apply policy %s: %w", p.Name, err)
		}
	}
	e.SetStrategy(p.Strategy)
	return nil
}
