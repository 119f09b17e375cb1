package session

import (
	"github.com/collegeos/portal/internal/routes"
)

// AfterLogoutPath is where the client goes once Logout returns
const AfterLogoutPath = "/login"

// NavLink is one entry of the signed-in navigation
type NavLink struct {
	Label string `json:"label" yaml:"label"`
	Path  string `json:"path" yaml:"path"`
}

var baseNav = []NavLink{
	{"Dashboard", "/dashboard"},
	{"Attendance", "/attendance"},
	{"Notices", "/notices"},
	{"Exams", "/exams"},
	{"Placements", "/placements"},
	{"Marketplace", "/marketplace"},
	{"Chat", "/chat"},
	{"Alerts", "/alerts"},
	{"Profile", "/profile"},
	{"Settings", "/settings"},
}

// NavLinks returns the navigation for sess. The admin panel entry only
// appears for ADMIN sessions. This is presentation; the portal route guard
// is what actually protects /admin.
func NavLinks(sess *Session) []NavLink {
	if sess == nil {
		return nil
	}
	links := append([]NavLink{}, baseNav...)
	if sess.IsAdmin() {
		links = append(links, NavLink{"Admin Panel", "/admin"})
	}
	return links
}

// ClientRedirect mirrors the route guard for a client about to show path.
// It returns the path to go to instead, or "" when path may be shown.
func ClientRedirect(table *routes.Table, sess *Session, path string) string {
	switch table.Classify(path) {
	case routes.AccessPublic:
		return ""
	case routes.AccessAdmin:
		if sess == nil {
			return table.LoginPath
		}
		if !sess.IsAdmin() {
			return table.LandingPath
		}
		return ""
	default:
		if sess == nil {
			return table.LoginPath
		}
		return ""
	}
}
