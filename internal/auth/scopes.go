package auth

// Known OAuth scopes used by the backend services.
const (
	ScopeActivitiesWrite = "activities:write"
	ScopeActivitiesRead  = "activities:read"
)
