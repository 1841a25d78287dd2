package homomorphism

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-chase/datalog"
	"github.com/wbrown/janus-chase/datalog/annotations"
	"github.com/wbrown/janus-chase/datalog/storage"
)

var (
	a = datalog.NewConstant("a")
	b = datalog.NewConstant("b")
	c = datalog.NewConstant("c")
	x = datalog.NewVariable("X")
	y = datalog.NewVariable("Y")
	z = datalog.NewVariable("Z")
)

func atom(p string, terms ...datalog.Term) datalog.Atom { return datalog.NewAtom(p, terms...) }

func subStrings(subs []datalog.Substitution) []string {
	out := make([]string, len(subs))
	for i, s := range subs {
		out[i] = s.String()
	}
	sort.Strings(out)
	return out
}

func TestSearchConstantsInPattern(t *testing.T) {
	i := datalog.IntLiteral
	facts := storage.NewMemoryStoreWith(
		atom("test", datalog.NewConstant("f1"), i(12), i(13), i(12), i(1)),
		atom("test", datalog.NewConstant("f2"), i(11), i(13), i(11), i(1)),
	)

	subs, err := New().All(context.Background(), Pattern{
		Atoms: []datalog.Atom{atom("test", x, i(11), i(13), i(11), i(1))},
	}, facts)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "{X -> f2}", subs[0].String())
}

func TestSearchEmptyPattern(t *testing.T) {
	facts := storage.NewMemoryStoreWith(atom("R", a, b))
	s := New()

	subs, err := s.All(context.Background(), Pattern{}, facts)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, 0, subs[0].Len())

	ok, err := s.Exists(context.Background(), Pattern{}, facts)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSearchEmptyFacts(t *testing.T) {
	s := New()
	subs, err := s.All(context.Background(), Pattern{Atoms: []datalog.Atom{atom("R", x, a)}}, storage.NewMemoryStore())
	require.NoError(t, err)
	assert.Empty(t, subs)

	ok, err := s.Exists(context.Background(), Pattern{Atoms: []datalog.Atom{atom("R", x, a)}}, storage.NewMemoryStore())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSearchJoin(t *testing.T) {
	facts := storage.NewMemoryStoreWith(
		atom("R", a, b), atom("R", b, c), atom("R", b, b), atom("S", c),
	)
	s := New()
	ctx := context.Background()

	t.Run("full substitution", func(t *testing.T) {
		subs, err := s.All(ctx, Pattern{Atoms: []datalog.Atom{atom("R", x, y), atom("R", y, z), atom("S", z)}}, facts)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"{X -> a, Y -> b, Z -> c}",
			"{X -> b, Y -> b, Z -> c}",
		}, subStrings(subs))
	})

	t.Run("answer restricted and deduplicated", func(t *testing.T) {
		subs, err := s.All(ctx, Pattern{
			Atoms:  []datalog.Atom{atom("R", x, y)},
			Answer: []datalog.Term{x},
		}, facts)
		require.NoError(t, err)
		assert.Equal(t, []string{"{X -> a}", "{X -> b}"}, subStrings(subs))
	})

	t.Run("boolean", func(t *testing.T) {
		subs, err := s.All(ctx, Pattern{
			Atoms:  []datalog.Atom{atom("R", x, y)},
			Answer: []datalog.Term{},
		}, facts)
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, 0, subs[0].Len())
	})

	t.Run("repeated variable", func(t *testing.T) {
		subs, err := s.All(ctx, Pattern{Atoms: []datalog.Atom{atom("R", x, x)}}, facts)
		require.NoError(t, err)
		assert.Equal(t, []string{"{X -> b}"}, subStrings(subs))
	})

	t.Run("ground pattern", func(t *testing.T) {
		ok, err := s.Exists(ctx, Pattern{Atoms: []datalog.Atom{atom("R", a, c)}}, facts)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestSearchFrozenVariables(t *testing.T) {
	null := datalog.NewVariable("EE0")
	facts := storage.NewMemoryStoreWith(
		atom("R", null, a),
		atom("R", b, a),
	)
	s := New()

	// a frozen variable only matches itself
	subs, err := s.All(context.Background(), Pattern{
		Atoms:  []datalog.Atom{atom("R", null, y)},
		Frozen: []datalog.Term{null},
	}, facts)
	require.NoError(t, err)
	assert.Equal(t, []string{"{Y -> a}"}, subStrings(subs))

	// unfrozen, the same variable is searched
	subs, err = s.All(context.Background(), Pattern{
		Atoms: []datalog.Atom{atom("R", null, y)},
	}, facts)
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}

func TestSearchMalformed(t *testing.T) {
	s := New()
	facts := storage.NewMemoryStore()

	_, err := s.Search(context.Background(), Pattern{
		Atoms: []datalog.Atom{atom("R", x), atom("R", x, y)},
	}, facts)
	assert.ErrorIs(t, err, datalog.ErrMalformedQuery)

	_, err = s.Search(context.Background(), Pattern{
		Atoms:  []datalog.Atom{atom("R", x)},
		Answer: []datalog.Term{a},
	}, facts)
	assert.ErrorIs(t, err, datalog.ErrMalformedQuery)

	_, err = s.Search(context.Background(), Pattern{
		Atoms: []datalog.Atom{{Predicate: datalog.Predicate{Name: "", Arity: 0}}},
	}, facts)
	assert.ErrorIs(t, err, datalog.ErrMalformedQuery)
}

func TestSearchIsLazyAndClosable(t *testing.T) {
	var atoms []datalog.Atom
	for i := 0; i < 20; i++ {
		atoms = append(atoms, atom("N", datalog.IntLiteral(int64(i))))
	}
	facts := storage.NewMemoryStoreWith(atoms...)

	var events []annotations.Event
	s := New(WithHandler(func(e annotations.Event) { events = append(events, e) }))
	res, err := s.Search(context.Background(), Pattern{Atoms: []datalog.Atom{atom("N", x)}}, facts)
	require.NoError(t, err)

	require.True(t, res.Next())
	first := res.Substitution()
	require.True(t, res.Next())
	assert.False(t, first.Equal(res.Substitution()))
	require.NoError(t, res.Close())

	assert.False(t, res.Next(), "a closed search cannot be resumed")
	require.Len(t, events, 1)
	assert.Equal(t, annotations.HomomorphismSearch, events[0].Name)
	assert.Equal(t, 2, events[0].Data["results"])
}

func TestSearchCancelled(t *testing.T) {
	facts := storage.NewMemoryStoreWith(atom("R", a, b), atom("R", b, c))
	ctx, cancel := context.WithCancel(context.Background())

	res, err := New().Search(ctx, Pattern{Atoms: []datalog.Atom{atom("R", x, y)}}, facts)
	require.NoError(t, err)
	cancel()
	assert.False(t, res.Next())
	assert.ErrorIs(t, res.Err(), context.Canceled)
}

type brokenStore struct {
	*storage.MemoryStore
}

func (brokenStore) Contains(datalog.Atom) (bool, error) {
	return false, errors.New("io error")
}

func TestSearchPropagatesStoreErrors(t *testing.T) {
	facts := brokenStore{storage.NewMemoryStoreWith(atom("R", a, b))}

	_, err := New().All(context.Background(), Pattern{Atoms: []datalog.Atom{atom("R", x, y)}}, facts)
	require.Error(t, err)
	assert.True(t, datalog.IsStoreError(err))

	_, err = New().Exists(context.Background(), Pattern{Atoms: []datalog.Atom{atom("R", x, y)}}, facts)
	assert.True(t, datalog.IsStoreError(err))
}

func TestEvaluateQuery(t *testing.T) {
	facts := storage.NewMemoryStoreWith(atom("R", a, b), atom("R", b, c))
	q, err := datalog.NewConjunctiveQuery("q", []datalog.Atom{atom("R", x, y), atom("R", y, z)}, []datalog.Term{x, z})
	require.NoError(t, err)

	res, err := New().Evaluate(context.Background(), q, facts)
	require.NoError(t, err)
	subs, err := res.All()
	require.NoError(t, err)
	assert.Equal(t, []string{"{X -> a, Z -> c}"}, subStrings(subs))
}

func TestNativeEvaluationMatchesSearch(t *testing.T) {
	sql, err := storage.NewSQLStore("")
	require.NoError(t, err)
	defer sql.Close()
	facts := []datalog.Atom{
		atom("R", a, b), atom("R", b, c), atom("R", b, b), atom("S", c), atom("S", b),
	}
	_, err = sql.AddAll(facts)
	require.NoError(t, err)
	mem := storage.NewMemoryStoreWith(facts...)

	patterns := []Pattern{
		{Atoms: []datalog.Atom{atom("R", x, y), atom("S", y)}},
		{Atoms: []datalog.Atom{atom("R", x, y), atom("R", y, z)}, Answer: []datalog.Term{x, z}},
		{Atoms: []datalog.Atom{atom("R", x, x)}, Answer: []datalog.Term{}},
		{Atoms: []datalog.Atom{atom("T", x)}},
	}
	native := New(WithNativeEvaluation(true))
	for _, p := range patterns {
		want, err := New().All(context.Background(), p, mem)
		require.NoError(t, err)
		got, err := native.All(context.Background(), p, sql)
		require.NoError(t, err)
		if diff := cmp.Diff(subStrings(want), subStrings(got)); diff != "" {
			t.Errorf("%s (-search +native):\n%s", datalog.FormatAtoms(p.Atoms), diff)
		}
	}
}

// bruteForce enumerates every assignment of the pattern variables over the
// term domain
func bruteForce(atoms []datalog.Atom, facts datalog.FactCollection) []string {
	vars := datalog.VariablesOf(atoms)
	domain, _ := facts.Terms()
	out := []string{}
	assignment := make([]int, len(vars))
	for {
		b := datalog.NewSubstitutionBuilder(len(vars))
		for i, v := range vars {
			b.Put(v, domain[assignment[i]])
		}
		sub := b.Build()
		ok := true
		for _, at := range sub.ApplyAll(atoms) {
			if found, _ := facts.Contains(at); !found {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, sub.String())
		}

		// next assignment
		i := len(vars) - 1
		for ; i >= 0; i-- {
			assignment[i]++
			if assignment[i] < len(domain) {
				break
			}
			assignment[i] = 0
		}
		if i < 0 {
			break
		}
	}
	sort.Strings(out)
	return out
}

func TestSearchWithoutSolutionsMatchesEnumeration(t *testing.T) {
	store := storage.NewMemoryStoreWith(atom("E", a, b), atom("E", b, c))
	pattern := []datalog.Atom{atom("E", x, y), atom("E", c, x)}

	subs, err := New().All(context.Background(), Pattern{Atoms: pattern}, store)
	require.NoError(t, err)
	assert.Empty(t, subs)
	assert.Equal(t, bruteForce(pattern, store), subStrings(subs))
}

func TestSearchSoundAndComplete(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	consts := []datalog.Term{a, b, c, datalog.NewConstant("d")}
	vars := []datalog.Term{x, y, z}
	s := New(WithCache(NewPatternCache(16)))

	for trial := 0; trial < 40; trial++ {
		var facts []datalog.Atom
		for i := 0; i < 8; i++ {
			facts = append(facts, atom("E", consts[rng.Intn(4)], consts[rng.Intn(4)]))
		}
		store := storage.NewMemoryStoreWith(facts...)

		pick := func() datalog.Term {
			if rng.Intn(4) == 0 {
				return consts[rng.Intn(4)]
			}
			return vars[rng.Intn(3)]
		}
		var pattern []datalog.Atom
		for n := 1 + rng.Intn(3); len(pattern) < n; {
			pattern = append(pattern, atom("E", pick(), pick()))
		}

		subs, err := s.All(context.Background(), Pattern{Atoms: pattern}, store)
		require.NoError(t, err)
		got := subStrings(subs)

		// soundness
		for _, sub := range subs {
			for _, at := range sub.ApplyAll(pattern) {
				ok, err := store.Contains(at)
				require.NoError(t, err)
				assert.True(t, ok, "%s is not a fact", at)
			}
		}
		// completeness
		if len(datalog.VariablesOf(pattern)) > 0 {
			assert.Equal(t, bruteForce(pattern, store), got, "pattern %s", datalog.FormatAtoms(pattern))
		}
		// exists agrees with search
		ok, err := s.Exists(context.Background(), Pattern{Atoms: pattern}, store)
		require.NoError(t, err)
		assert.Equal(t, len(subs) > 0, ok, "pattern %s", datalog.FormatAtoms(pattern))
	}

	hits, misses, _ := s.Cache().Stats()
	assert.Positive(t, hits+misses)
}

func TestCompileBuckets(t *testing.T) {
	p := Compile([]datalog.Atom{
		atom("R", x, y),
		atom("S", a),
		atom("T", y, x),
		atom("U", z, x),
		atom("V", datalog.NewVariable("F")),
	}, []datalog.Term{datalog.NewVariable("F")})

	assert.Equal(t, []datalog.Term{x, y, z}, p.Order)
	require.Len(t, p.Buckets, 4)
	assert.Equal(t, "S(a), V(F)", datalog.FormatAtoms(p.Buckets[0]))
	assert.Empty(t, p.Buckets[1])
	assert.Equal(t, "R(X, Y), T(Y, X)", datalog.FormatAtoms(p.Buckets[2]))
	assert.Equal(t, "U(Z, X)", datalog.FormatAtoms(p.Buckets[3]))
}

func TestPatternCache(t *testing.T) {
	cache := NewPatternCache(2)
	atoms := []datalog.Atom{atom("R", x, y)}

	p1 := cache.Compile(atoms, nil)
	p2 := cache.Compile(atoms, nil)
	assert.Same(t, p1, p2)

	p3 := cache.Compile(atoms, []datalog.Term{x})
	assert.NotSame(t, p1, p3)
	assert.Equal(t, []datalog.Term{y}, p3.Order)

	hits, misses, size := cache.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
	assert.Equal(t, 2, size)

	cache.Purge()
	_, _, size = cache.Stats()
	assert.Equal(t, 0, size)

	var nilCache *PatternCache
	assert.Equal(t, []datalog.Term{x, y}, nilCache.Compile(atoms, nil).Order)
}
