package api

import (
	"sort"
	"sync"
)

// Notebook stores the messages tests log during one grading run, filed by
// suite and test method.
type Notebook struct {
	mu      sync.Mutex
	private map[string][]string
	public  map[string][]string
}

func NewNotebook() *Notebook {
	return &Notebook{
		private: make(map[string][]string),
		public:  make(map[string][]string),
	}
}

// Key is the notebook index of a test.
func Key(suite, test string) string { return suite + "#" + test }

func (n *Notebook) add(m map[string][]string, key, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	m[key] = append(m[key], msg)
}

func (n *Notebook) AddPrivate(suite, test, msg string) { n.add(n.private, Key(suite, test), msg) }

func (n *Notebook) AddPublic(suite, test, msg string) { n.add(n.public, Key(suite, test), msg) }

// Private returns the private messages of a test. A nil Notebook has none.
func (n *Notebook) Private(suite, test string) []string {
	if n == nil {
		return nil
	}
	return n.get(n.private, Key(suite, test))
}

func (n *Notebook) Public(suite, test string) []string {
	if n == nil {
		return nil
	}
	return n.get(n.public, Key(suite, test))
}

func (n *Notebook) get(m map[string][]string, key string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), m[key]...)
}

// Keys lists the notebook keys that have private or public messages.
func (n *Notebook) Keys() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	seen := make(map[string]struct{})
	for k := range n.private {
		seen[k] = struct{}{}
	}
	for k := range n.public {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyMessages(n *Notebook, m map[string][]string) map[string][]string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v...)
	}
	return out
}
