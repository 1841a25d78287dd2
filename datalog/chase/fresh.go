package chase

import (
	"strconv"
	"sync"

	"github.com/wbrown/janus-chase/datalog"
)

// DefaultVariablePrefix prefixes generated variable identifiers
const DefaultVariablePrefix = "EE"

// VariableGenerator hands out variables that were never handed out before
// and never collide with a reserved identifier. Each chase run owns one.
type VariableGenerator struct {
	mu       sync.Mutex
	prefix   string
	next     uint64
	reserved map[string]struct{}
}

// NewVariableGenerator creates a generator; an empty prefix means
// DefaultVariablePrefix
func NewVariableGenerator(prefix string) *VariableGenerator {
	if prefix == "" {
		prefix = DefaultVariablePrefix
	}
	return &VariableGenerator{
		prefix:   prefix,
		reserved: make(map[string]struct{}),
	}
}

// Reserve excludes the identifiers of the given variables
func (g *VariableGenerator) Reserve(terms ...datalog.Term) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range terms {
		if t.IsVariable() {
			g.reserved[t.Identifier()] = struct{}{}
		}
	}
}

// Next returns a fresh variable
func (g *VariableGenerator) Next() datalog.Term {
	g.mu.Lock()
	defer g.mu.Unlock()
	for {
		id := g.prefix + strconv.FormatUint(g.next, 10)
		g.next++
		if _, taken := g.reserved[id]; !taken {
			return datalog.NewVariable(id)
		}
	}
}

// Count returns how many identifiers were consumed
func (g *VariableGenerator) Count() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next
}

// FreshSubstitution extends a body homomorphism of r to its head: frontier
// variables keep their image under body, each existential variable gets a
// new variable from gen.
func FreshSubstitution(r *datalog.Rule, body datalog.Substitution, gen *VariableGenerator) (datalog.Substitution, error) {
	b := datalog.NewSubstitutionBuilder(len(r.Frontier()) + len(r.Existentials()))
	for _, v := range r.Frontier() {
		img, ok := body.Lookup(v)
		if !ok {
			return datalog.Substitution{}, malformedApplication(r, "frontier variable %s is unbound", v)
		}
		b.Put(v, img)
	}
	for _, v := range r.Existentials() {
		if _, ok := body.Lookup(v); ok {
			return datalog.Substitution{}, malformedApplication(r, "existential variable %s is bound", v)
		}
		b.Put(v, gen.Next())
	}
	return b.Build(), nil
}
