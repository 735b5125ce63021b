package observ

import (
	"sort"
	"sync"
)

// subMode selects which changes notify a subscription.
type subMode uint8

const (
	// modeDeep is notified by any change at, above or below the path.
	modeDeep subMode = 1 << iota

	// modeShallow is notified only when the key set at the path changes.
	modeShallow
)

// depKey identifies one subscription of an observer.
type depKey struct {
	reg  *registry
	node uint64
	path string
}

// dep is the stored form of a subscription.
type dep struct {
	path Path
	mode subMode
}

// registry maps (node, path) to the observers depending on it. Paths of a
// node are stored in a trie keyed by token so a write can collect its
// ancestors and descendants without scanning unrelated paths.
type registry struct {
	mu    sync.Mutex
	nodes map[uint64]*trieNode
	subs  int
}

type trieNode struct {
	path     Path
	children map[string]*trieNode
	subs     map[*Observer]subMode
}

func newRegistry() *registry {
	return &registry{nodes: make(map[uint64]*trieNode)}
}

// subscribe adds o at (node, path). Subscribing twice is idempotent; modes
// accumulate.
func (r *registry) subscribe(node uint64, path Path, o *Observer, mode subMode) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.nodes[node]
	if t == nil {
		t = &trieNode{}
		r.nodes[node] = t
	}
	for i, tok := range path {
		k := tok.String()
		if t.children == nil {
			t.children = make(map[string]*trieNode)
		}
		child := t.children[k]
		if child == nil {
			child = &trieNode{path: append(Path(nil), path[:i+1]...)}
			t.children[k] = child
		}
		t = child
	}
	if t.subs == nil {
		t.subs = make(map[*Observer]subMode)
	}
	if _, ok := t.subs[o]; !ok {
		r.subs++
	}
	t.subs[o] |= mode
}

// unsubscribe removes o from (node, path) and prunes empty trie branches.
func (r *registry) unsubscribe(node uint64, path Path, o *Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	root := r.nodes[node]
	if root == nil {
		return
	}
	if r.remove(root, path, o) {
		delete(r.nodes, node)
	}
}

// remove deletes o below t and reports whether t became empty.
func (r *registry) remove(t *trieNode, path Path, o *Observer) bool {
	if len(path) == 0 {
		if _, ok := t.subs[o]; ok {
			delete(t.subs, o)
			r.subs--
		}
	} else {
		k := path[0].String()
		child := t.children[k]
		if child == nil {
			return false
		}
		if r.remove(child, path[1:], o) {
			delete(t.children, k)
		}
	}
	return len(t.subs) == 0 && len(t.children) == 0
}

// forgetNode drops every subscription of a node.
func (r *registry) forgetNode(node uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	root := r.nodes[node]
	if root == nil {
		return
	}
	var count func(t *trieNode)
	count = func(t *trieNode) {
		r.subs -= len(t.subs)
		for _, c := range t.children {
			count(c)
		}
	}
	count(root)
	delete(r.nodes, node)
}

// candidate is a subscribed path related to a write.
type candidate struct {
	path Path
	// below is true when the path equals or lies below a written path.
	below bool
	subs  map[*Observer]subMode
}

// related returns the subscribed paths of node that contain, equal or lie
// below one of written. Subscriber maps are copied so the caller can use
// them without holding the lock.
func (r *registry) related(node uint64, written []Path) []candidate {
	r.mu.Lock()
	defer r.mu.Unlock()

	root := r.nodes[node]
	if root == nil {
		return nil
	}

	found := make(map[*trieNode]*candidate)
	add := func(t *trieNode, below bool) {
		if len(t.subs) == 0 {
			return
		}
		if c, ok := found[t]; ok {
			c.below = c.below || below
			return
		}
		subs := make(map[*Observer]subMode, len(t.subs))
		for o, m := range t.subs {
			subs[o] = m
		}
		found[t] = &candidate{path: t.path, below: below, subs: subs}
	}
	var subtree func(t *trieNode)
	subtree = func(t *trieNode) {
		add(t, true)
		for _, c := range t.children {
			subtree(c)
		}
	}

	for _, w := range written {
		t := root
		ok := true
		for _, tok := range w {
			add(t, false)
			t = t.children[tok.String()]
			if t == nil {
				ok = false
				break
			}
		}
		if ok {
			subtree(t)
		}
	}

	out := make([]candidate, 0, len(found))
	for _, c := range found {
		out = append(out, *c)
	}
	return out
}

// PathSubscribers describes the observers subscribed at one path.
type PathSubscribers struct {
	Path      string   `json:"path"`
	Observers []uint64 `json:"observers"`
	Shallow   []uint64 `json:"shallow,omitempty"`
}

// NodeSubscribers describes the subscriptions of one node.
type NodeSubscribers struct {
	Node  uint64            `json:"node"`
	Paths []PathSubscribers `json:"paths"`
}

// snapshot lists the whole registry in a stable order.
func (r *registry) snapshot() []NodeSubscribers {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]NodeSubscribers, 0, len(r.nodes))
	for id, root := range r.nodes {
		ns := NodeSubscribers{Node: id}
		var walk func(t *trieNode)
		walk = func(t *trieNode) {
			if len(t.subs) > 0 {
				ps := PathSubscribers{Path: t.path.String()}
				for o, m := range t.subs {
					if m&modeDeep != 0 {
						ps.Observers = append(ps.Observers, o.id)
					} else {
						ps.Shallow = append(ps.Shallow, o.id)
					}
				}
				sortIDs(ps.Observers)
				sortIDs(ps.Shallow)
				ns.Paths = append(ns.Paths, ps)
			}
			for _, c := range t.children {
				walk(c)
			}
		}
		walk(root)
		sort.Slice(ns.Paths, func(i, j int) bool { return ns.Paths[i].Path < ns.Paths[j].Path })
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out
}

func sortIDs(ids []uint64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// counts returns the number of nodes and subscriptions held.
func (r *registry) counts() (nodes, subs int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes), r.subs
}
