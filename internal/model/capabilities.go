package model

// NavItem is one entry of the dashboard navigation. LabelID is a translation key.
type NavItem struct {
	ID      string `json:"id"`
	LabelID string `json:"labelId"`
}

// Capabilities is the fixed navigation and action set available to a role.
type Capabilities struct {
	Role        UserRole  `json:"role"`
	Nav         []NavItem `json:"nav"`
	CanCompose  bool      `json:"canCompose"`
	CanTakeExam bool      `json:"canTakeExam"`
}

var (
	navDashboard   = NavItem{ID: "dashboard", LabelID: "NavDashboard"}
	navAssessments = NavItem{ID: "tests", LabelID: "NavAssessments"}
	navGenerator   = NavItem{ID: "generator", LabelID: "NavGenerator"}
	navQuestions   = NavItem{ID: "questions", LabelID: "NavQuestionBank"}
	navCommunity   = NavItem{ID: "users", LabelID: "NavCommunity"}
	navInsights    = NavItem{ID: "analytics", LabelID: "NavInsights"}
)

var staffNav = []NavItem{navDashboard, navAssessments, navGenerator, navQuestions, navCommunity}

var roleCapabilities = map[UserRole]Capabilities{
	UserRoleAdmin:     {Role: UserRoleAdmin, Nav: staffNav, CanCompose: true},
	UserRolePrincipal: {Role: UserRolePrincipal, Nav: staffNav, CanCompose: true},
	UserRoleTeacher:   {Role: UserRoleTeacher, Nav: staffNav, CanCompose: true},
	UserRoleStudent: {
		Role:        UserRoleStudent,
		Nav:         []NavItem{navDashboard, navAssessments, navInsights},
		CanTakeExam: true,
	},
}

// CapabilitiesFor returns the capability set of role. The second return is
// false for an unknown role.
func CapabilitiesFor(role UserRole) (Capabilities, bool) {
	c, ok := roleCapabilities[role]
	if !ok {
		return Capabilities{}, false
	}
	nav := make([]NavItem, len(c.Nav))
	copy(nav, c.Nav)
	c.Nav = nav
	return c, true
}

// Has reports whether the navigation set contains the item id.
func (c Capabilities) Has(id string) bool {
	for _, n := range c.Nav {
		if n.ID == id {
			return true
		}
	}
	return false
}
