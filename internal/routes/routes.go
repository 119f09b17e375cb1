// Package routes holds the guarded path table shared by the portal's route
// guard and the CLI's client-side checks.
package routes

import (
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// Access is the protection level of a path
type Access int

const (
	AccessPublic Access = iota
	// AccessSession requires any valid session
	AccessSession
	// AccessAdmin requires a valid session with the ADMIN role
	AccessAdmin
)

func (a Access) String() string {
	switch a {
	case AccessSession:
		return "session"
	case AccessAdmin:
		return "admin"
	default:
		return "public"
	}
}

// Table lists guarded path prefixes
type Table struct {
	LoginPath   string   `yaml:"login_path"`
	LandingPath string   `yaml:"landing_path"`
	Protected   []string `yaml:"protected"`
	Admin       []string `yaml:"admin"`
	Marketplace []string `yaml:"marketplace"`
}

// Default returns the portal's built-in table
func Default() *Table {
	return &Table{
		LoginPath:   "/login",
		LandingPath: "/dashboard",
		Protected: []string{
			"/dashboard",
			"/profile",
			"/attendance",
			"/notices",
			"/exams",
			"/placements",
			"/chat",
			"/alerts",
			"/settings",
		},
		Admin:       []string{"/admin"},
		Marketplace: []string{"/marketplace", "/gigs"},
	}
}

// Load reads a YAML table. Omitted keys keep their defaults.
func Load(file string) (*Table, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file: %w", err)
	}

	t := Default()
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("failed to parse routes file: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks that every path is absolute and that the login page is not itself guarded
func (t *Table) Validate() error {
	all := append(append(append([]string{}, t.Protected...), t.Admin...), t.Marketplace...)
	for _, p := range append(all, t.LoginPath, t.LandingPath) {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("route %q must start with /", p)
		}
	}
	if t.Classify(t.LoginPath) != AccessPublic {
		return fmt.Errorf("login path %s must not be guarded", t.LoginPath)
	}
	if t.Classify(t.LandingPath) == AccessAdmin {
		return fmt.Errorf("landing path %s must not be admin-only", t.LandingPath)
	}
	return nil
}

// Classify returns the access level of a request path. Paths are cleaned and
// compared case-insensitively so that variants of a guarded path stay guarded.
func (t *Table) Classify(p string) Access {
	p = strings.ToLower(path.Clean("/" + p))

	if matchAny(p, t.Admin) {
		return AccessAdmin
	}
	if matchAny(p, t.Protected) || matchAny(p, t.Marketplace) {
		return AccessSession
	}
	return AccessPublic
}

func matchAny(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		prefix = strings.ToLower(strings.TrimRight(prefix, "/"))
		if prefix == "" {
			// "/" guards everything
			return true
		}
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}
