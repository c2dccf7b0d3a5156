package guard

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/newsdesk/console/internal/domain"
)

// Area is one dashboard area guarded by a single required role.
type Area struct {
	// Name identifies the area in URLs and messages (e.g. "admin").
	Name string `yaml:"name" json:"name"`

	// Prefix is the path the area is served under (e.g. "/admin").
	Prefix string `yaml:"prefix" json:"prefix"`

	// Role is the only role allowed inside the area.
	Role domain.Role `yaml:"role" json:"role"`
}

// Areas is the role-to-area mapping.
type Areas []Area

// areasFile is the YAML layout read by LoadAreas.
type areasFile struct {
	Version string `yaml:"version"`
	Areas   Areas  `yaml:"areas"`
}

// DefaultAreas returns the built-in mapping: admin, editor and reporter
// areas, each requiring the role of the same name.
func DefaultAreas() Areas {
	return Areas{
		{Name: "admin", Prefix: "/admin", Role: domain.RoleAdmin},
		{Name: "editor", Prefix: "/editor", Role: domain.RoleEditor},
		{Name: "reporter", Prefix: "/reporter", Role: domain.RoleReporter},
	}
}

// LoadAreas reads an area mapping from a YAML file.
func LoadAreas(path string) (Areas, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read areas file: %w", err)
	}

	var file areasFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse areas file: %w", err)
	}

	if err := file.Areas.Validate(); err != nil {
		return nil, fmt.Errorf("areas file %s: %w", path, err)
	}
	return file.Areas, nil
}

// Validate checks that every area is complete and that names and prefixes
// are unique.
func (a Areas) Validate() error {
	if len(a) == 0 {
		return fmt.Errorf("no areas defined: %w", domain.ErrInvalidInput)
	}

	names := make(map[string]bool, len(a))
	prefixes := make(map[string]bool, len(a))
	for i, area := range a {
		switch {
		case area.Name == "":
			return fmt.Errorf("area %d: missing name: %w", i, domain.ErrInvalidInput)
		case area.Role == "":
			return fmt.Errorf("area %q: missing role: %w", area.Name, domain.ErrInvalidInput)
		case !strings.HasPrefix(area.Prefix, "/") || area.Prefix == "/" || strings.HasSuffix(area.Prefix, "/"):
			return fmt.Errorf("area %q: prefix %q must look like /name: %w", area.Name, area.Prefix, domain.ErrInvalidInput)
		case names[area.Name]:
			return fmt.Errorf("area %q defined twice: %w", area.Name, domain.ErrInvalidInput)
		case prefixes[area.Prefix]:
			return fmt.Errorf("prefix %q used twice: %w", area.Prefix, domain.ErrInvalidInput)
		}
		names[area.Name] = true
		prefixes[area.Prefix] = true
	}
	return nil
}

// Match returns the area serving path. The longest matching prefix wins, and
// a prefix only matches whole path segments: /admin matches /admin and
// /admin/users but not /administrator.
func (a Areas) Match(path string) (Area, bool) {
	var (
		best  Area
		found bool
	)
	for _, area := range a {
		if path != area.Prefix && !strings.HasPrefix(path, area.Prefix+"/") {
			continue
		}
		if !found || len(area.Prefix) > len(best.Prefix) {
			best, found = area, true
		}
	}
	return best, found
}

// ForRole returns the first area requiring role.
func (a Areas) ForRole(role domain.Role) (Area, bool) {
	for _, area := range a {
		if area.Role == role {
			return area, true
		}
	}
	return Area{}, false
}

// ByName returns the area called name.
func (a Areas) ByName(name string) (Area, bool) {
	for _, area := range a {
		if area.Name == name {
			return area, true
		}
	}
	return Area{}, false
}
