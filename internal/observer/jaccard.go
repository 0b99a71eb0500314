package observer

import "parallax/internal/browserdrv"

// roleNamePair is the (role, name) tuple role_tree.py's jaccard_similarity
// sets are built from.
type roleNamePair struct {
	Role string
	Name string
}

func toPairSet(nodes []browserdrv.RoleTreeNode) map[roleNamePair]bool {
	set := make(map[roleNamePair]bool, len(nodes))
	for _, n := range nodes {
		set[roleNamePair{Role: n.Role, Name: n.Name}] = true
	}
	return set
}

// jaccardSimilarity returns the Jaccard index of two role-tree snapshots,
// 1.0 when both are empty (trivially identical), grounded on the original
// source's observer/role_tree.py.
func jaccardSimilarity(a, b []browserdrv.RoleTreeNode) float64 {
	setA := toPairSet(a)
	setB := toPairSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}

	intersection := 0
	for pair := range setA {
		if setB[pair] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}
