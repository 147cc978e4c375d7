package policy

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/warden/internal/permission"
	"github.com/roach88/warden/internal/schedule"
)

// CompileSource compiles a CUE source string holding a top-level
// policy struct:
//
//	policy: {
//		name:     "village"
//		strategy: "balanced"
//		grants:      [{role: "HUMAN", capability: "STRATEGY_SWITCH"}]
//		revocations: [{role: "SIMULANT", capability: "WORLD_MUTATE"}]
//		entities:    [{id: "npc-1", role: "SIMULANT", kind: "villager"}]
//		actions:     [{actionType: "patrol", runAt: 100, priority: 2}]
//	}
func CompileSource(src string) (*Policy, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(v.LookupPath(cue.ParsePath("policy")))
}

// Compile parses a CUE value into a Policy. Uses the CUE SDK's Go API
// directly (not CLI subprocess).
func Compile(v cue.Value) (*Policy, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if !v.Exists() {
		return nil, &CompileError{Field: "policy", Message: "policy struct is required"}
	}

	p := &Policy{}

	// Parse name (required)
	nameVal := v.LookupPath(cue.ParsePath("name"))
	if !nameVal.Exists() {
		return nil, &CompileError{
			Field:   "name",
			Message: "name is required",
			Pos:     v.Pos(),
		}
	}
	name, err := nameVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	p.Name = name

	// Parse strategy (optional)
	strategyVal := v.LookupPath(cue.ParsePath("strategy"))
	if strategyVal.Exists() {
		strategy, err := strategyVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		p.Strategy = strategy
	}

	p.Grants, err = parseRoleCapabilities(v, "grants")
	if err != nil {
		return nil, err
	}
	p.Revocations, err = parseRoleCapabilities(v, "revocations")
	if err != nil {
		return nil, err
	}
	p.Entities, err = parseEntities(v)
	if err != nil {
		return nil, err
	}
	p.Actions, err = parseActions(v)
	if err != nil {
		return nil, err
	}

	return p, nil
}

// parseRoleCapabilities parses a grants/revocations list, validating
// role and capability names against the known sets.
func parseRoleCapabilities(v cue.Value, field string) ([]RoleCapability, error) {
	var out []RoleCapability

	listVal := v.LookupPath(cue.ParsePath(field))
	if !listVal.Exists() {
		return out, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for i := 0; iter.Next(); i++ {
		item := iter.Value()

		roleName, err := item.LookupPath(cue.ParsePath("role")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		role := permission.Role(roleName)
		if !permission.ValidRole(role) {
			return nil, &CompileError{
				Field:   fmt.Sprintf("%s[%d].role", field, i),
				Message: fmt.Sprintf("unknown role %q", roleName),
				Pos:     item.Pos(),
			}
		}

		capName, err := item.LookupPath(cue.ParsePath("capability")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		capability := permission.Capability(capName)
		if !permission.ValidCapability(capability) {
			return nil, &CompileError{
				Field:   fmt.Sprintf("%s[%d].capability", field, i),
				Message: fmt.Sprintf("unknown capability %q", capName),
				Pos:     item.Pos(),
			}
		}

		out = append(out, RoleCapability{Role: role, Capability: capability})
	}
	return out, nil
}

// parseEntities parses the seeded entity list.
func parseEntities(v cue.Value) ([]EntitySeed, error) {
	var out []EntitySeed

	listVal := v.LookupPath(cue.ParsePath("entities"))
	if !listVal.Exists() {
		return out, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for i := 0; iter.Next(); i++ {
		item := iter.Value()
		seed := EntitySeed{}

		seed.ID, err = item.LookupPath(cue.ParsePath("id")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		seed.Kind, err = item.LookupPath(cue.ParsePath("kind")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}

		roleName, err := item.LookupPath(cue.ParsePath("role")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		seed.Role = permission.Role(roleName)
		if !permission.ValidRole(seed.Role) {
			return nil, &CompileError{
				Field:   fmt.Sprintf("entities[%d].role", i),
				Message: fmt.Sprintf("unknown role %q", roleName),
				Pos:     item.Pos(),
			}
		}

		metaVal := item.LookupPath(cue.ParsePath("meta"))
		if metaVal.Exists() {
			meta, err := decodeStruct(metaVal)
			if err != nil {
				return nil, err
			}
			seed.Meta = meta
		}

		out = append(out, seed)
	}
	return out, nil
}

// parseActions parses the scheduled action list into scheduler inputs.
func parseActions(v cue.Value) ([]schedule.Input, error) {
	var out []schedule.Input

	listVal := v.LookupPath(cue.ParsePath("actions"))
	if !listVal.Exists() {
		return out, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for i := 0; iter.Next(); i++ {
		item := iter.Value()
		in := schedule.Input{}

		in.ActionType, err = item.LookupPath(cue.ParsePath("actionType")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}

		idVal := item.LookupPath(cue.ParsePath("id"))
		if idVal.Exists() {
			in.ID, err = idVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
		}

		in.RunAt, err = optionalInt(item, "runAt")
		if err != nil {
			return nil, err
		}
		in.RepeatEveryMs, err = optionalInt(item, "repeatEveryMs")
		if err != nil {
			return nil, err
		}
		priority, err := optionalInt(item, "priority")
		if err != nil {
			return nil, err
		}
		in.Priority = int(priority)

		payloadVal := item.LookupPath(cue.ParsePath("payload"))
		if payloadVal.Exists() {
			payload, err := decodeStruct(payloadVal)
			if err != nil {
				return nil, err
			}
			in.Payload = payload
		}

		if in.ActionType == "" {
			return nil, &CompileError{
				Field:   fmt.Sprintf("actions[%d].actionType", i),
				Message: "actionType is required",
				Pos:     item.Pos(),
			}
		}
		out = append(out, in)
	}
	return out, nil
}

func optionalInt(v cue.Value, field string) (int64, error) {
	fieldVal := v.LookupPath(cue.ParsePath(field))
	if !fieldVal.Exists() {
		return 0, nil
	}
	n, err := fieldVal.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return n, nil
}

// decodeStruct converts a CUE struct into a map. Floats are forbidden
// everywhere in policies; use ints.
func decodeStruct(v cue.Value) (map[string]any, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	out := make(map[string]any)
	for iter.Next() {
		val, err := decodeValue(iter.Value())
		if err != nil {
			return nil, err
		}
		out[iter.Label()] = val
	}
	return out, nil
}

func decodeValue(v cue.Value) (any, error) {
	switch v.Kind() {
	case cue.StringKind:
		return v.String()
	case cue.IntKind:
		return v.Int64()
	case cue.BoolKind:
		return v.Bool()
	case cue.StructKind:
		return decodeStruct(v)
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var items []any
		for iter.Next() {
			item, err := decodeValue(iter.Value())
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   "value",
			Message: "float values are forbidden in policies - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   "value",
			Message: fmt.Sprintf("unsupported value kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
