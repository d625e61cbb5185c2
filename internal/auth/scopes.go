package auth

// Known OAuth scopes used by the goal tracking service.
const (
	ScopeGoalsWrite = "goals:write"
	ScopeGoalsRead  = "goals:read"
)
