package types

import "regexp"

// Compiled once at package initialization; identifier validation runs on
// every inbound command.
var (
	actorIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	codeRegex    = regexp.MustCompile(`^[A-Za-z0-9]+$`)
)

// IsValidActorID checks professor/student identifier format. Identifiers are
// opaque references supplied by the external account store; the engine only
// constrains their shape.
func IsValidActorID(id string) bool {
	if len(id) < 1 || len(id) > 50 {
		return false
	}
	return actorIDRegex.MatchString(id)
}

// IsValidSessionName bounds session names for storage and display.
func IsValidSessionName(name string) bool {
	return len(name) >= 1 && len(name) <= 200
}

// IsValidJoinCode checks the short alphanumeric join code students type in.
func IsValidJoinCode(code string) bool {
	if len(code) < 1 || len(code) > 20 {
		return false
	}
	return codeRegex.MatchString(code)
}

// IsValidInteractionKind reports whether kind is one of the three ledger
// counters.
func IsValidInteractionKind(kind InteractionKind) bool {
	switch kind {
	case InteractionHandRaise, InteractionReactionUp, InteractionReactionDown:
		return true
	default:
		return false
	}
}

// IsValidRole reports whether role is a known subscriber role.
func IsValidRole(role string) bool {
	return role == RoleProfessor || role == RoleStudent
}
