// Package sample builds lazily materialized fixture graphs.
//
// A Definition is an ordered set of named factories. A Graph instantiates a
// Definition against a session: the first Get of a node runs its factory,
// adds the result to the session and caches it, so factories can refer to
// sibling nodes freely and each node is built once.
//
//	var accounts = sample.Define("accounts").
//		Node("john", func(g *sample.Graph) any { return &User{Name: "john"} }).
//		Node("editor", func(g *sample.Graph) any {
//			return &Role{User: sample.Ref[*User](g, "john"), Smi: &Smi{Name: "daily"}}
//		})
//
//	g := accounts.New(sess)
//	err := g.CreateAll()
package sample
