package datamap

// Ownership maps every vertex to the single parent that structurally owns it. The
// root is owned by nobody.
type Ownership struct {
	parents map[string]string
}

// ResolveOwnership walks the graph depth-first from the root. The first parent to
// discover a vertex owns it. Vertices the walk never reaches fall back to the first
// entry of their inbound list.
func ResolveOwnership(idx *Index) *Ownership {
	o := &Ownership{parents: make(map[string]string, idx.Len())}

	if _, ok := idx.Vertex(idx.Root()); !ok {
		return o.withFallback(idx)
	}

	// Explicit frame stack; each frame remembers which edge to look at next so the
	// discovery order matches a recursive preorder walk.
	type frame struct {
		id   string
		next int
	}

	o.parents[idx.Root()] = ""
	stack := []frame{{id: idx.Root()}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		edges := idx.Edges(top.id)
		if top.next >= len(edges) {
			stack = stack[:len(stack)-1]
			continue
		}

		e := edges[top.next]
		top.next++

		if _, seen := o.parents[e.Target]; seen {
			continue
		}
		if _, exists := idx.Vertex(e.Target); !exists {
			continue
		}
		o.parents[e.Target] = top.id
		stack = append(stack, frame{id: e.Target})
	}

	return o.withFallback(idx)
}

func (o *Ownership) withFallback(idx *Index) *Ownership {
	for _, id := range idx.VertexIDs() {
		if _, ok := o.parents[id]; ok {
			continue
		}
		if refs := idx.Inbound(id); len(refs) > 0 {
			o.parents[id] = refs[0].ParentID
		}
	}
	return o
}

// Owner returns the owning parent of id. found is false when id has no ownership
// entry at all; for the root it is true with an empty parent.
func (o *Ownership) Owner(id string) (parent string, found bool) {
	parent, found = o.parents[id]
	return parent, found
}

// Map returns a copy of the ownership map. Root maps to the empty string.
func (o *Ownership) Map() map[string]string {
	out := make(map[string]string, len(o.parents))
	for k, v := range o.parents {
		out[k] = v
	}
	return out
}
