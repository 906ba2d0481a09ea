package datamap

func ident(id string, edges ...Edge) *Identifier {
	return &Identifier{ID: id, Edges: edges}
}

func edge(name, target string) Edge {
	return Edge{Name: name, Target: target}
}

func enum(id string, choices ...string) *Enumeration {
	return &Enumeration{ID: id, Choices: choices}
}

// scenarioGraph is the graph used by the end-to-end scenario:
//
//	R --io--> I --input-link--> L
//	R --operator--> O1
//	R --operator--> O2
func scenarioGraph() *Graph {
	return &Graph{
		RootID: "R",
		Vertices: []Vertex{
			ident("R", edge("io", "I"), edge("operator", "O1"), edge("operator", "O2")),
			ident("I", edge("input-link", "L")),
			ident("L"),
			ident("O1"),
			ident("O2"),
		},
	}
}

// sharedGraph has a vertex S owned by R and linked from T, a mutually referential
// pair R/X, and an orphan Q referenced only from an unreachable parent P.
//
//	R --a--> S
//	R --b--> T --s--> S
//	R --x--> X --back--> R
//	R --y--> Y --back--> R
//	P --q--> Q
func sharedGraph() *Graph {
	return &Graph{
		RootID: "R",
		Vertices: []Vertex{
			ident("R", edge("a", "S"), edge("b", "T"), edge("x", "X"), edge("y", "Y")),
			ident("S", edge("name", "E")),
			ident("T", edge("s", "S")),
			ident("X", edge("back", "R")),
			ident("Y", edge("back", "R")),
			enum("E", "on", "off"),
			ident("P", edge("q", "Q")),
			&Scalar{ID: "Q", Type: KindInteger},
		},
	}
}
