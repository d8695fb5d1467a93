package domain

import (
	"regexp"
	"strconv"
	"strings"

	"go.trai.ch/zerr"
	"golang.org/x/mod/semver"
)

var versionPattern = regexp.MustCompile(`(\d+)(?:\.(\d+))?(?:\.(\d+))?`)

// Version is a numeric dotted version in semver form ("v3.6.9").
type Version string

// ParseVersion extracts the first dotted numeric version from s. It accepts interpreter
// banners such as "Python 3.6.9" and package versions such as "44.0.0" or "19.3.1.post1".
func ParseVersion(s string) (Version, bool) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	v := "v" + trimLeadingZeros(m[1])
	for _, part := range m[2:] {
		if part == "" {
			break
		}
		v += "." + trimLeadingZeros(part)
	}
	if !semver.IsValid(v) {
		return "", false
	}
	return Version(v), true
}

// MustParseVersion is ParseVersion for literals known to be valid.
func MustParseVersion(s string) Version {
	v, ok := ParseVersion(s)
	if !ok {
		panic("invalid version literal: " + s)
	}
	return v
}

func trimLeadingZeros(s string) string {
	t := strings.TrimLeft(s, "0")
	if t == "" {
		return "0"
	}
	return t
}

// String returns the version without the leading "v".
func (v Version) String() string {
	return strings.TrimPrefix(string(v), "v")
}

// Compare returns -1, 0 or +1. Shorthand versions compare as if padded with zeros.
func (v Version) Compare(other Version) int {
	return semver.Compare(string(v), string(other))
}

// Major returns the major component, e.g. "v3".
func (v Version) Major() string {
	return semver.Major(string(v))
}

type constraintOp string

const (
	opPrefix constraintOp = ""
	opEq     constraintOp = "=="
	opNe     constraintOp = "!="
	opGe     constraintOp = ">="
	opGt     constraintOp = ">"
	opLe     constraintOp = "<="
	opLt     constraintOp = "<"
)

type clause struct {
	op      constraintOp
	version Version
	// depth is the number of components written for prefix clauses ("3" is 1, "3.6" is 2).
	depth int
}

// VersionConstraint is a conjunction of version clauses such as "3.6", "3" or ">=3.6,<4".
// A bare version matches every version sharing its written prefix.
type VersionConstraint struct {
	raw     string
	clauses []clause
}

// ParseConstraint parses a comma-separated constraint expression.
func ParseConstraint(s string) (VersionConstraint, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return VersionConstraint{}, zerr.With(zerr.New("empty version constraint"), "constraint", s)
	}

	c := VersionConstraint{raw: raw}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		op := opPrefix
		for _, candidate := range []constraintOp{opEq, opNe, opGe, opLe, opGt, opLt} {
			if strings.HasPrefix(part, string(candidate)) {
				op = candidate
				part = strings.TrimSpace(strings.TrimPrefix(part, string(candidate)))
				break
			}
		}
		if !isDottedNumber(part) {
			return VersionConstraint{}, zerr.With(zerr.New("malformed version constraint"), "constraint", s)
		}
		v, _ := ParseVersion(part)
		c.clauses = append(c.clauses, clause{op: op, version: v, depth: strings.Count(part, ".") + 1})
	}
	return c, nil
}

// MustParseConstraint is ParseConstraint for literals known to be valid.
func MustParseConstraint(s string) VersionConstraint {
	c, err := ParseConstraint(s)
	if err != nil {
		panic("invalid version constraint literal: " + s)
	}
	return c
}

func isDottedNumber(s string) bool {
	if s == "" {
		return false
	}
	parts := strings.Split(s, ".")
	if len(parts) > 3 {
		return false
	}
	for _, p := range parts {
		if p == "" || strings.Trim(p, "0123456789") != "" {
			return false
		}
	}
	return true
}

// Satisfied reports whether v meets every clause.
func (c VersionConstraint) Satisfied(v Version) bool {
	if len(c.clauses) == 0 {
		return false
	}
	for _, cl := range c.clauses {
		if !cl.matches(v) {
			return false
		}
	}
	return true
}

func (cl clause) matches(v Version) bool {
	cmp := v.Compare(cl.version)
	switch cl.op {
	case opEq:
		return cmp == 0
	case opNe:
		return cmp != 0
	case opGe:
		return cmp >= 0
	case opGt:
		return cmp > 0
	case opLe:
		return cmp <= 0
	case opLt:
		return cmp < 0
	default:
		return prefixOf(cl.version, cl.depth) == prefixOf(v, cl.depth)
	}
}

func prefixOf(v Version, depth int) string {
	switch depth {
	case 1:
		return semver.Major(string(v))
	case 2:
		return semver.MajorMinor(string(v))
	default:
		return semver.Canonical(string(v))
	}
}

// Major returns the major version every accepted version must share, or "" when the
// constraint allows several majors.
func (c VersionConstraint) Major() string {
	for _, cl := range c.clauses {
		if cl.op == opPrefix || cl.op == opEq {
			return cl.version.Major()
		}
	}
	var lower, upper string
	for _, cl := range c.clauses {
		switch cl.op {
		case opGe, opGt:
			lower = cl.version.Major()
		case opLt:
			upper = cl.version.Major()
		}
	}
	if lower != "" && upper != "" && semver.Compare(upper, lower) > 0 &&
		semver.Compare(upper, nextMajor(lower)) <= 0 {
		return lower
	}
	return ""
}

// Preferred returns the major and "major.minor" names a constraint points at, most
// specific first, e.g. ["3.6", "3"] for "3.6" and ["3"] for ">=3.6,<4".
func (c VersionConstraint) Preferred() []string {
	var names []string
	for _, cl := range c.clauses {
		if (cl.op == opPrefix || cl.op == opEq) && cl.depth >= 2 {
			names = append(names, strings.TrimPrefix(semver.MajorMinor(string(cl.version)), "v"))
			break
		}
	}
	if major := c.Major(); major != "" {
		names = append(names, strings.TrimPrefix(major, "v"))
	} else {
		for _, cl := range c.clauses {
			if cl.op == opGe || cl.op == opGt {
				names = append(names, strings.TrimPrefix(cl.version.Major(), "v"))
				break
			}
		}
	}
	return names
}

func nextMajor(major string) string {
	n, err := strconv.Atoi(strings.TrimPrefix(major, "v"))
	if err != nil {
		return major
	}
	return "v" + strconv.Itoa(n+1)
}

// String returns the constraint as written.
func (c VersionConstraint) String() string {
	return c.raw
}

// MarshalText implements encoding.TextMarshaler.
func (c VersionConstraint) MarshalText() ([]byte, error) {
	return []byte(c.raw), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *VersionConstraint) UnmarshalText(text []byte) error {
	parsed, err := ParseConstraint(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
