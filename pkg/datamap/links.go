package datamap

// EdgeMetadata is the derived classification of one edge triple.
type EdgeMetadata struct {
	OwnerParentID     string `json:"owner_parent_id"`
	HasOwner          bool   `json:"has_owner"`
	InboundCount      int    `json:"inbound_count"`
	IsLink            bool   `json:"is_link"`
	IsCycle           bool   `json:"is_cycle"`
	HasLinkedSiblings bool   `json:"has_linked_siblings"`
}

// IsCycle reports whether target is an Identifier with an edge back to parent.
func IsCycle(idx *Index, parent, target string) bool {
	for _, e := range idx.Edges(target) {
		if e.Target == parent {
			return true
		}
	}
	return false
}

// ClassifyEdges computes metadata for every edge of every Identifier vertex.
func ClassifyEdges(idx *Index, owners *Ownership) map[EdgeKey]EdgeMetadata {
	out := make(map[EdgeKey]EdgeMetadata, idx.EdgeCount())

	for _, parent := range idx.VertexIDs() {
		for _, e := range idx.Edges(parent) {
			key := EdgeKey{Parent: parent, Name: e.Name, Target: e.Target}
			if _, done := out[key]; done {
				continue
			}

			owner, hasOwner := owners.Owner(e.Target)
			inbound := len(idx.Inbound(e.Target))
			cycle := IsCycle(idx, parent, e.Target)
			siblings := inbound > 1 && !cycle

			out[key] = EdgeMetadata{
				OwnerParentID:     owner,
				HasOwner:          hasOwner,
				InboundCount:      inbound,
				IsCycle:           cycle,
				HasLinkedSiblings: siblings,
				IsLink:            siblings && owner != parent,
			}
		}
	}

	return out
}
