package request

import (
	"fmt"

	"github.com/roach88/warden/internal/permission"
)

// validate runs structural validation followed by the type-specific
// payload shape check. A nil return means the request may proceed to
// authorization.
func validate(req Request) *ErrorInfo {
	if err := validateStructure(req); err != nil {
		return err
	}
	if !Supported(req.Type) {
		return &ErrorInfo{
			Code:    CodeUnsupportedRequest,
			Message: fmt.Sprintf("unsupported request type %q", req.Type),
		}
	}
	return validatePayload(req)
}

func validateStructure(req Request) *ErrorInfo {
	var problems []string
	if req.ID == "" {
		problems = append(problems, "id is required")
	}
	if req.ActorID == "" {
		problems = append(problems, "actorId is required")
	}
	if !permission.ValidRole(req.Role) {
		problems = append(problems, fmt.Sprintf("role must be one of HUMAN/SIMULANT/SYSTEM, got %q", req.Role))
	}
	if req.Type == "" {
		problems = append(problems, "type is required")
	}
	if req.Timestamp <= 0 {
		problems = append(problems, "timestamp is required")
	}
	if len(problems) == 0 {
		return nil
	}
	return &ErrorInfo{
		Code:    CodeValidationFailed,
		Message: "request failed structural validation",
		Details: map[string]any{"problems": problems},
	}
}

// validatePayload checks the type-specific payload shape. Handlers can
// assume these fields exist with the right dynamic types.
func validatePayload(req Request) *ErrorInfo {
	switch req.Type {
	case TypeEntityRegister:
		if err := requireString(req.Payload, "entityId"); err != "" {
			return payloadError(req.Type, err)
		}
		if err := requireString(req.Payload, "kind"); err != "" {
			return payloadError(req.Type, err)
		}
		if raw, ok := req.Payload["meta"]; ok {
			if _, isMap := raw.(map[string]any); !isMap {
				return payloadError(req.Type, "meta must be an object")
			}
		}
		if raw, ok := req.Payload["role"]; ok {
			name, isString := raw.(string)
			if !isString || !permission.ValidRole(permission.Role(name)) {
				return payloadError(req.Type, fmt.Sprintf("role must be a valid role name, got %v", raw))
			}
		}

	case TypeEntityUpdateMeta:
		if err := requireString(req.Payload, "entityId"); err != "" {
			return payloadError(req.Type, err)
		}
		if err := requireObject(req.Payload, "patch"); err != "" {
			return payloadError(req.Type, err)
		}

	case TypeWorldMutate:
		if err := requireString(req.Payload, "op"); err != "" {
			return payloadError(req.Type, err)
		}

	case TypeSchedulerSchedule:
		if err := requireObject(req.Payload, "action"); err != "" {
			return payloadError(req.Type, err)
		}

	case TypeAgentCycle:
		if err := requireString(req.Payload, "agentId"); err != "" {
			return payloadError(req.Type, err)
		}

	case TypeStrategySwitch:
		if err := requireString(req.Payload, "strategy"); err != "" {
			return payloadError(req.Type, err)
		}

	case TypeEngineSnapshot:
		// No payload required.
	}
	return nil
}

func payloadError(t Type, problem string) *ErrorInfo {
	return &ErrorInfo{
		Code:    CodeValidationFailed,
		Message: fmt.Sprintf("invalid payload for %s: %s", t, problem),
	}
}

func requireString(payload map[string]any, key string) string {
	raw, ok := payload[key]
	if !ok {
		return fmt.Sprintf("%s is required", key)
	}
	s, isString := raw.(string)
	if !isString || s == "" {
		return fmt.Sprintf("%s must be a non-empty string", key)
	}
	return ""
}

func requireObject(payload map[string]any, key string) string {
	raw, ok := payload[key]
	if !ok {
		return fmt.Sprintf("%s is required", key)
	}
	if _, isMap := raw.(map[string]any); !isMap {
		return fmt.Sprintf("%s must be an object", key)
	}
	return ""
}
