package domain

import "time"

// Assignment type constants.
const (
	AssignmentTypePermanent = "permanent"
	AssignmentTypeTemporary = "temporary"
)

// Assignment grants one customer access to one promotion. Temporary
// assignments carry an expiry; permanent ones never expire.
type Assignment struct {
	ID          string     `json:"id"`
	PromotionID string     `json:"promotion_id"`
	CustomerID  string     `json:"customer_id"`
	Type        string     `json:"type"`
	IsActive    bool       `json:"is_active"`
	AssignedAt  time.Time  `json:"assigned_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// ValidAssignmentTypes returns the set of valid assignment types.
func ValidAssignmentTypes() []string {
	return []string{AssignmentTypePermanent, AssignmentTypeTemporary}
}

// IsValidAssignmentType checks whether the given string is a valid assignment type.
func IsValidAssignmentType(t string) bool {
	for _, v := range ValidAssignmentTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// ActiveAt reports whether the assignment is usable at the given instant.
func (a *Assignment) ActiveAt(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	if a.Type == AssignmentTypeTemporary && a.ExpiresAt != nil && now.After(*a.ExpiresAt) {
		return false
	}
	return true
}
