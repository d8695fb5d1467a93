package domain

import (
	"regexp"
	"sort"
	"strings"

	"go.trai.ch/zerr"
)

var (
	requirementPattern = regexp.MustCompile(`^\s*([A-Za-z0-9][A-Za-z0-9._-]*)\s*(?:(==|>=)\s*([0-9][0-9A-Za-z.]*))?\s*$`)
	nameSeparators     = regexp.MustCompile(`[-_.]+`)
)

// DependencySpec is a build-time requirement: a package pinned exactly ("==") or held
// above a floor (">="). An empty Version accepts any installed version.
type DependencySpec struct {
	Name    string
	Version string
	Exact   bool
}

// ParseDependency parses "name==1.2.3", "name>=1.2" or a bare "name".
func ParseDependency(s string) (DependencySpec, error) {
	m := requirementPattern.FindStringSubmatch(s)
	if m == nil {
		return DependencySpec{}, zerr.With(zerr.New("malformed requirement"), "requirement", s)
	}
	spec := DependencySpec{Name: m[1], Version: m[3], Exact: m[2] == "=="}
	if spec.Version != "" {
		if _, ok := ParseVersion(spec.Version); !ok {
			return DependencySpec{}, zerr.With(zerr.New("malformed requirement version"), "requirement", s)
		}
	}
	return spec, nil
}

// Key returns the normalized package name used for comparisons ("Foo_Bar" and "foo-bar" are
// the same package).
func (d DependencySpec) Key() string {
	return NormalizePackageName(d.Name)
}

// NormalizePackageName lowercases a package name and folds separator runs into "-".
func NormalizePackageName(name string) string {
	return nameSeparators.ReplaceAllString(strings.ToLower(name), "-")
}

// Requirement renders the spec in the form the package manager accepts.
func (d DependencySpec) Requirement() string {
	switch {
	case d.Version == "":
		return d.Name
	case d.Exact:
		return d.Name + "==" + d.Version
	default:
		return d.Name + ">=" + d.Version
	}
}

// String implements fmt.Stringer.
func (d DependencySpec) String() string {
	return d.Requirement()
}

// SatisfiedBy reports whether an installed version meets the spec. Exact pins require the
// same version, never a newer one.
func (d DependencySpec) SatisfiedBy(installed string) bool {
	if installed == "" {
		return false
	}
	if d.Version == "" {
		return true
	}
	have, ok := ParseVersion(installed)
	if !ok {
		return false
	}
	want, _ := ParseVersion(d.Version)
	if d.Exact {
		return have.Compare(want) == 0
	}
	return have.Compare(want) >= 0
}

// DetectConflicts returns an error naming every package whose specs cannot all hold at once:
// two different exact pins, or an exact pin below a declared floor.
func DetectConflicts(specs []DependencySpec) error {
	byKey := make(map[string][]DependencySpec)
	for _, s := range specs {
		byKey[s.Key()] = append(byKey[s.Key()], s)
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		group := byKey[key]
		var pin *DependencySpec
		for i := range group {
			if !group[i].Exact {
				continue
			}
			if pin != nil && !group[i].SatisfiedBy(pin.Version) {
				return conflictError(key, *pin, group[i])
			}
			pin = &group[i]
		}
		if pin == nil {
			continue
		}
		for _, s := range group {
			if !s.SatisfiedBy(pin.Version) {
				return conflictError(key, *pin, s)
			}
		}
	}
	return nil
}

func conflictError(pkg string, a, b DependencySpec) error {
	err := zerr.With(ErrVersionConflict, "package", pkg)
	err = zerr.With(err, "first", a.Requirement())
	return Fail(KindVersionConflict, zerr.With(err, "second", b.Requirement()))
}
