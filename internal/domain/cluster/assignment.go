package cluster

import "sort"

// Assignment moves one identifier to a new cluster path.
type Assignment struct {
	ID   Identifier
	Path Path
}

// Group is the member list of one cluster.
type Group struct {
	Path    Path
	Members []Identifier
}

// Map is the identifier-to-cluster assignment produced by the engine.
// A missing entry means the identifier is unclustered.
type Map map[Identifier]Path

// Clone returns a shallow copy; paths are immutable values.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for id, p := range m {
		out[id] = p
	}
	return out
}

// Apply writes assignments in order. A nil path deletes the entry.
func (m Map) Apply(assignments []Assignment) {
	for _, a := range assignments {
		if a.Path == nil {
			delete(m, a.ID)
			continue
		}
		m[a.ID] = a.Path
	}
}

// Groups inverts the map. Groups come back ordered by path and members by
// identifier, so iteration over the result is deterministic.
func (m Map) Groups() []Group {
	idx := make(map[string]int, len(m))
	var groups []Group
	for id, p := range m {
		k := p.Key()
		i, ok := idx[k]
		if !ok {
			i = len(groups)
			idx[k] = i
			groups = append(groups, Group{Path: p})
		}
		groups[i].Members = append(groups[i].Members, id)
	}
	for i := range groups {
		SortIdentifiers(groups[i].Members)
	}
	sortGroups(groups)
	return groups
}

// Members returns the identifiers currently assigned to path.
func (m Map) Members(path Path) Set {
	out := make(Set)
	for id, p := range m {
		if p.Equal(path) {
			out.Add(id)
		}
	}
	return out
}

func sortGroups(groups []Group) {
	sort.Slice(groups, func(i, j int) bool { return groups[i].Path.Compare(groups[j].Path) < 0 })
}
