package ratelimit

import (
	"fmt"
	"time"
)

type Scope string

const (
	ScopeUser        Scope = "user"
	ScopeUserProject Scope = "user_project"
)

// Endpoint identifiers for metered operations
const (
	EndpointMemberInvite     = "member:invite"
	EndpointMemberUpdate     = "member:update"
	EndpointMemberRemove     = "member:remove"
	EndpointCredentialReveal = "credential:reveal"
)

type Policy struct {
	MaxRequests int
	Window      time.Duration
	Scope       Scope
}

// Policies maps an endpoint identifier to its policy. Endpoints absent from the table are unmetered.
type Policies map[string]Policy

func DefaultPolicies() Policies {
	return Policies{
		EndpointMemberInvite:     {MaxRequests: 10, Window: time.Hour, Scope: ScopeUserProject},
		EndpointMemberUpdate:     {MaxRequests: 30, Window: time.Hour, Scope: ScopeUserProject},
		EndpointMemberRemove:     {MaxRequests: 30, Window: time.Hour, Scope: ScopeUserProject},
		EndpointCredentialReveal: {MaxRequests: 10, Window: 15 * time.Minute, Scope: ScopeUser},
	}
}

// Returns the longest window of any policy
func (p Policies) LongestWindow() time.Duration {
	var longest time.Duration
	for _, policy := range p {
		if policy.Window > longest {
			longest = policy.Window
		}
	}
	return longest
}

func (p Policies) Validate() error {
	for endpoint, policy := range p {
		if policy.MaxRequests <= 0 {
			return fmt.Errorf("policy %s: max requests must be positive", endpoint)
		}
		if policy.Window <= 0 {
			return fmt.Errorf("policy %s: window must be positive", endpoint)
		}
		if policy.Scope != ScopeUser && policy.Scope != ScopeUserProject {
			return fmt.Errorf("policy %s: unknown scope %q", endpoint, policy.Scope)
		}
	}
	return nil
}

// Builds the counter key for a request under this policy
func (p Policy) key(userID, endpoint, projectID string) Key {
	if p.Scope == ScopeUser {
		projectID = ""
	}
	return Key{UserID: userID, Endpoint: endpoint, ProjectID: projectID}
}
