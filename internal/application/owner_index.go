package application

import (
	"sort"
	"strings"
)

// OwnerSource records how a template owner was resolved.
type OwnerSource string

const (
	OwnerSourceName    OwnerSource = "name"
	OwnerSourceCreator OwnerSource = "creator"
	OwnerSourceAdmin   OwnerSource = "admin"
)

// OwnerIndex is the lookup table normalized_name -> user id rebuilt from the
// profile set. It is a lookup, never an ownership pointer.
type OwnerIndex struct {
	byName    map[string]string
	ambiguous map[string]struct{}
	known     map[string]struct{}
	admins    []string
}

// NormalizeName folds case and collapses whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// NewOwnerIndex builds the lookup table. Names shared by several profiles are
// ambiguous and match nobody.
func NewOwnerIndex(profiles []UserProfile) *OwnerIndex {
	idx := &OwnerIndex{
		byName:    make(map[string]string, len(profiles)),
		ambiguous: make(map[string]struct{}),
		known:     make(map[string]struct{}, len(profiles)),
	}
	for _, p := range profiles {
		if p.ID == "" {
			continue
		}
		idx.known[p.ID] = struct{}{}
		if p.IsAdmin {
			idx.admins = append(idx.admins, p.ID)
		}
		key := NormalizeName(p.FullName)
		if key == "" {
			continue
		}
		if _, dup := idx.ambiguous[key]; dup {
			continue
		}
		if existing, ok := idx.byName[key]; ok && existing != p.ID {
			delete(idx.byName, key)
			idx.ambiguous[key] = struct{}{}
			continue
		}
		idx.byName[key] = p.ID
	}
	sort.Strings(idx.admins)
	return idx
}

// Lookup returns the user whose profile name matches name.
func (i *OwnerIndex) Lookup(name string) (string, bool) {
	if i == nil {
		return "", false
	}
	id, ok := i.byName[NormalizeName(name)]
	return id, ok
}

// Ambiguous reports whether several profiles share the normalized name.
func (i *OwnerIndex) Ambiguous(name string) bool {
	if i == nil {
		return false
	}
	_, ok := i.ambiguous[NormalizeName(name)]
	return ok
}

// Resolve picks the owner of a template occurrence: the name match first,
// then the fallbacks allowed by policy. The last result is false when nobody
// qualifies.
func (i *OwnerIndex) Resolve(tpl Template, policy UnmatchedOwnerPolicy) (string, OwnerSource, bool) {
	if id, ok := i.Lookup(tpl.TeacherName); ok {
		return id, OwnerSourceName, true
	}
	if policy == OwnerPolicySkip || i == nil {
		return "", "", false
	}
	if _, ok := i.known[tpl.CreatedBy]; ok && tpl.CreatedBy != "" {
		return tpl.CreatedBy, OwnerSourceCreator, true
	}
	if policy == OwnerPolicyAssignToAdmin && len(i.admins) > 0 {
		return i.admins[0], OwnerSourceAdmin, true
	}
	return "", "", false
}
