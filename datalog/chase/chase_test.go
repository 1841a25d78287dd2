package chase

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-chase/datalog"
	"github.com/wbrown/janus-chase/datalog/annotations"
	"github.com/wbrown/janus-chase/datalog/storage"
)

var (
	a  = datalog.NewConstant("a")
	b  = datalog.NewConstant("b")
	c  = datalog.NewConstant("c")
	x  = datalog.NewVariable("X")
	y  = datalog.NewVariable("Y")
	z  = datalog.NewVariable("Z")
	x1 = datalog.NewVariable("X1")
	x2 = datalog.NewVariable("X2")
)

func atom(p string, terms ...datalog.Term) datalog.Atom { return datalog.NewAtom(p, terms...) }

// exampleRule is R(X1,Y), A(Y), A(X2) :- R(X1,X2)
func exampleRule() *datalog.Rule {
	return datalog.MustRule("r",
		[]datalog.Atom{atom("R", x1, x2)},
		[]datalog.Atom{atom("R", x1, y), atom("A", y), atom("A", x2)})
}

func exampleFacts() *storage.MemoryStore {
	return storage.NewMemoryStoreWith(atom("R", a, b), atom("R", b, b))
}

func allAtoms(t *testing.T, s datalog.FactCollection) []datalog.Atom {
	t.Helper()
	atoms, err := datalog.CollectAtoms(s)
	require.NoError(t, err)
	return atoms
}

func atomStrings(atoms []datalog.Atom) []string {
	out := make([]string, len(atoms))
	for i, at := range atoms {
		out[i] = at.String()
	}
	sort.Strings(out)
	return out
}

func TestBreadthFirstExample(t *testing.T) {
	facts := exampleFacts()
	collector := annotations.NewCollector(func(annotations.Event) {})

	opts := DefaultOptions()
	opts.Handler = collector.Handler()
	bf, err := NewBreadthFirst(datalog.RuleSet{exampleRule()}, facts, opts)
	require.NoError(t, err)

	res, err := bf.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Fixpoint, res.Status)
	assert.Equal(t, Fixpoint, bf.Status())
	assert.Equal(t, 2, res.Rounds)

	rounds := collector.Named(annotations.RoundComplete)
	require.Len(t, rounds, 2)
	assert.Positive(t, rounds[0].Data["added"])
	assert.Equal(t, 0, rounds[1].Data["added"])

	ok, err := facts.Contains(atom("A", b))
	require.NoError(t, err)
	assert.True(t, ok, "A(b) must be derived")

	// A(<fresh>) together with R(a, <fresh>)
	var fresh []datalog.Term
	for _, at := range allAtoms(t, facts) {
		if at.Predicate.Name == "A" && at.Terms[0].IsVariable() {
			fresh = append(fresh, at.Terms[0])
		}
	}
	require.NotEmpty(t, fresh)
	found := false
	for _, v := range fresh {
		ok, err := facts.Contains(atom("R", a, v))
		require.NoError(t, err)
		found = found || ok
	}
	assert.True(t, found, "expected R(a, v), A(v) for a fresh v")
	assert.Equal(t, res.Added, mustSize(t, facts)-2)
}

func mustSize(t *testing.T, s datalog.FactCollection) int {
	t.Helper()
	n, err := s.Size()
	require.NoError(t, err)
	return n
}

func TestBreadthFirstIdempotent(t *testing.T) {
	facts := exampleFacts()
	rules := datalog.RuleSet{exampleRule()}

	first, err := NewBreadthFirst(rules, facts, DefaultOptions())
	require.NoError(t, err)
	_, err = first.Execute(context.Background())
	require.NoError(t, err)
	before := atomStrings(allAtoms(t, facts))

	second, err := NewBreadthFirst(rules, facts, DefaultOptions())
	require.NoError(t, err)
	res, err := second.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Fixpoint, res.Status)
	assert.Equal(t, 0, res.Added)
	assert.Equal(t, 1, res.Rounds)
	assert.Equal(t, before, atomStrings(allAtoms(t, facts)))
}

func TestBreadthFirstMonotonic(t *testing.T) {
	// transitive closure plus an existential successor
	rules := datalog.RuleSet{
		datalog.MustRule("trans",
			[]datalog.Atom{atom("E", x, y), atom("E", y, z)},
			[]datalog.Atom{atom("E", x, z)}),
		datalog.MustRule("succ",
			[]datalog.Atom{atom("N", x)},
			[]datalog.Atom{atom("S", x, y)}),
	}
	facts := storage.NewMemoryStoreWith(
		atom("E", a, b), atom("E", b, c), atom("E", c, datalog.NewConstant("d")),
		atom("N", a), atom("N", b),
	)

	var sizes []int
	opts := DefaultOptions()
	opts.Handler = func(e annotations.Event) {
		if e.Name == annotations.RoundComplete {
			sizes = append(sizes, e.Data["facts"].(int))
		}
	}
	bf, err := NewBreadthFirst(rules, facts, opts)
	require.NoError(t, err)
	res, err := bf.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, Fixpoint, res.Status)

	require.NotEmpty(t, sizes)
	assert.True(t, sort.IntsAreSorted(sizes), "fact count must never decrease: %v", sizes)
	assert.Equal(t, 5+3+2, mustSize(t, facts))
}

func TestExistentialFreshness(t *testing.T) {
	// EE0 is already used by the facts and must not be generated
	taken := datalog.NewVariable("EE0")
	facts := storage.NewMemoryStoreWith(
		atom("P", a), atom("P", b), atom("P", c), atom("Q", taken),
	)
	rules := datalog.RuleSet{
		datalog.MustRule("r1", []datalog.Atom{atom("P", x)}, []datalog.Atom{atom("H", x, y, z)}),
		datalog.MustRule("r2", []datalog.Atom{atom("P", x)}, []datalog.Atom{atom("G", x, y)}),
	}

	for _, strategy := range []Strategy{BreadthFirstStrategy, StepwiseStrategy} {
		t.Run(strategy.String(), func(t *testing.T) {
			store := storage.NewMemoryStoreWith(allAtoms(t, facts)...)
			opts := DefaultOptions()
			opts.Strategy = strategy
			ch, err := New(rules, store, opts)
			require.NoError(t, err)
			res, err := ch.Execute(context.Background())
			require.NoError(t, err)
			assert.Equal(t, Fixpoint, res.Status)
			assert.Equal(t, 6, res.Applications)

			seen := make(map[datalog.Term]int)
			for _, at := range allAtoms(t, store) {
				if at.Predicate.Name != "H" && at.Predicate.Name != "G" {
					continue
				}
				for _, term := range at.Terms[1:] {
					seen[term]++
				}
			}
			assert.Len(t, seen, 3*2+3)
			for v, n := range seen {
				assert.Equal(t, 1, n, "%s generated twice", v)
				assert.NotEqual(t, taken, v)
			}
		})
	}
}

func TestParallelMatchesSequential(t *testing.T) {
	rules := datalog.RuleSet{
		exampleRule(),
		datalog.MustRule("sym", []datalog.Atom{atom("R", x, y)}, []datalog.Atom{atom("S", y, x)}),
		datalog.MustRule("tag", []datalog.Atom{atom("S", x, y)}, []datalog.Atom{atom("T", x, z)}),
	}

	run := func(workers int) []string {
		facts := exampleFacts()
		opts := DefaultOptions()
		opts.Workers = workers
		bf, err := NewBreadthFirst(rules, facts, opts)
		require.NoError(t, err)
		res, err := bf.Execute(context.Background())
		require.NoError(t, err)
		require.Equal(t, Fixpoint, res.Status)
		return atomStrings(allAtoms(t, facts))
	}

	assert.Equal(t, run(1), run(4))
}

func TestBudgetCancels(t *testing.T) {
	// R(X,Y) -> R(Y,Z) never terminates
	rules := datalog.RuleSet{
		datalog.MustRule("next", []datalog.Atom{atom("R", x, y)}, []datalog.Atom{atom("R", y, z)}),
	}
	facts := storage.NewMemoryStoreWith(atom("R", a, b))

	opts := DefaultOptions()
	opts.MaxRounds = 3
	bf, err := NewBreadthFirst(rules, facts, opts)
	require.NoError(t, err)

	res, err := bf.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Cancelled, res.Status)
	assert.ErrorIs(t, res.Err, ErrBudgetExhausted)
	assert.Equal(t, 3, res.Rounds)
	assert.Equal(t, 4, mustSize(t, facts), "atoms of completed rounds stay")
}

func TestContextCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, strategy := range []Strategy{BreadthFirstStrategy, StepwiseStrategy} {
		t.Run(strategy.String(), func(t *testing.T) {
			facts := exampleFacts()
			opts := DefaultOptions()
			opts.Strategy = strategy
			ch, err := New(datalog.RuleSet{exampleRule()}, facts, opts)
			require.NoError(t, err)

			res, err := ch.Execute(ctx)
			require.NoError(t, err)
			assert.Equal(t, Cancelled, res.Status)
			assert.ErrorIs(t, res.Err, context.Canceled)
			assert.Equal(t, 2, mustSize(t, facts))
		})
	}
}

func TestObliviousDoesNotStopAtRestrictedFixpoint(t *testing.T) {
	facts := exampleFacts()
	opts := DefaultOptions()
	opts.Applicability = Oblivious
	opts.MaxRounds = 3
	bf, err := NewBreadthFirst(datalog.RuleSet{exampleRule()}, facts, opts)
	require.NoError(t, err)

	res, err := bf.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Cancelled, res.Status)
	assert.Greater(t, res.Applications, 2)
}

type failingStore struct {
	*storage.MemoryStore
}

func (s failingStore) AddAll([]datalog.Atom) (int, error) {
	return 0, errors.New("disk full")
}

func TestStoreFailure(t *testing.T) {
	facts := failingStore{exampleFacts()}
	var storeErrors int
	opts := DefaultOptions()
	opts.Handler = func(e annotations.Event) {
		if e.Name == annotations.ErrorStore {
			storeErrors++
		}
	}
	bf, err := NewBreadthFirst(datalog.RuleSet{exampleRule()}, facts, opts)
	require.NoError(t, err)

	res, err := bf.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, Failed, res.Status)
	assert.Equal(t, Failed, bf.Status())

	var ce *ChaseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, ce.Round)
	assert.True(t, datalog.IsStoreError(err))
	assert.Equal(t, 1, storeErrors)
	assert.Equal(t, 2, mustSize(t, facts), "the failing round is not committed")
}

type sizeFailingStore struct {
	*storage.MemoryStore
}

func (s sizeFailingStore) Size() (int, error) {
	return 0, errors.New("size unavailable")
}

func TestSizeFailure(t *testing.T) {
	for _, strategy := range []Strategy{BreadthFirstStrategy, StepwiseStrategy} {
		t.Run(strategy.String(), func(t *testing.T) {
			opts := DefaultOptions()
			opts.Strategy = strategy
			ch, err := New(datalog.RuleSet{exampleRule()}, sizeFailingStore{exampleFacts()}, opts)
			require.NoError(t, err)

			res, err := ch.Execute(context.Background())
			require.Error(t, err)
			assert.True(t, datalog.IsStoreError(err))
			assert.ErrorContains(t, err, "size unavailable")
			assert.Equal(t, Failed, res.Status)
			assert.Zero(t, res.Applications)
		})
	}
}

func TestStepwiseNextReportsCancellation(t *testing.T) {
	rules := datalog.RuleSet{
		datalog.MustRule("next", []datalog.Atom{atom("R", x, y)}, []datalog.Atom{atom("R", y, z)}),
	}

	t.Run("budget", func(t *testing.T) {
		opts := DefaultOptions()
		opts.MaxRounds = 1
		sw, err := NewStepwise(rules, storage.NewMemoryStoreWith(atom("R", a, b)), opts)
		require.NoError(t, err)
		ctx := context.Background()

		applied, err := sw.Next(ctx)
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = sw.Next(ctx)
		assert.False(t, applied)
		assert.ErrorIs(t, err, ErrBudgetExhausted)
		assert.Equal(t, Cancelled, sw.Status())

		// the cause sticks
		_, err = sw.Next(ctx)
		assert.ErrorIs(t, err, ErrBudgetExhausted)
	})

	t.Run("context", func(t *testing.T) {
		facts := storage.NewMemoryStoreWith(atom("R", a, b))
		sw, err := NewStepwise(rules, facts, DefaultOptions())
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		applied, err := sw.Next(ctx)
		assert.False(t, applied)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, Cancelled, sw.Status())
		assert.Equal(t, 1, mustSize(t, facts))
	})
}

func TestExecuteOnlyFromIdle(t *testing.T) {
	bf, err := NewBreadthFirst(datalog.RuleSet{exampleRule()}, exampleFacts(), DefaultOptions())
	require.NoError(t, err)
	_, err = bf.Execute(context.Background())
	require.NoError(t, err)

	_, err = bf.Execute(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyExecuted)
	assert.Equal(t, Fixpoint, bf.Status())
}

func TestInvalidRuleSet(t *testing.T) {
	rules := datalog.RuleSet{
		datalog.MustRule("r1", []datalog.Atom{atom("P", x)}, []datalog.Atom{atom("Q", x)}),
		datalog.MustRule("r2", []datalog.Atom{atom("P", x, y)}, []datalog.Atom{atom("Q", x)}),
	}
	_, err := NewBreadthFirst(rules, storage.NewMemoryStore(), DefaultOptions())
	assert.ErrorIs(t, err, datalog.ErrMalformedRule)
}

func TestStepwiseExample(t *testing.T) {
	facts := exampleFacts()
	sw, err := NewStepwise(datalog.RuleSet{exampleRule()}, facts, DefaultOptions())
	require.NoError(t, err)
	ctx := context.Background()

	applied, err := sw.Next(ctx)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, Iterating, sw.Status())
	assert.Equal(t, 5, mustSize(t, facts))

	// R(b,b) is now satisfied by A(b), and R(a,EE0) by A(EE0)
	applied, err = sw.Next(ctx)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, Fixpoint, sw.Status())

	applied, err = sw.Next(ctx)
	require.NoError(t, err)
	assert.False(t, applied)

	_, err = sw.Execute(ctx)
	assert.ErrorIs(t, err, ErrAlreadyExecuted)
}

func TestStepwiseRoundRobin(t *testing.T) {
	rules := datalog.RuleSet{
		datalog.MustRule("p2q", []datalog.Atom{atom("P", x)}, []datalog.Atom{atom("Q", x)}),
		datalog.MustRule("p2r", []datalog.Atom{atom("P", x)}, []datalog.Atom{atom("R", x)}),
	}
	facts := storage.NewMemoryStoreWith(atom("P", a), atom("P", b))

	var order []string
	opts := DefaultOptions()
	opts.Handler = func(e annotations.Event) {
		if e.Name == annotations.RuleApplied {
			order = append(order, e.Data["rule"].(string))
		}
	}
	sw, err := NewStepwise(rules, facts, opts)
	require.NoError(t, err)
	res, err := sw.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Fixpoint, res.Status)
	assert.Equal(t, 4, res.Applications)
	assert.Equal(t, []string{"p2q", "p2r", "p2q", "p2r"}, order)
}

func TestFreshSubstitution(t *testing.T) {
	r := exampleRule()
	gen := NewVariableGenerator("")

	body := datalog.NewSubstitution(map[datalog.Term]datalog.Term{x1: a, x2: b})
	fresh, err := FreshSubstitution(r, body, gen)
	require.NoError(t, err)
	img, _ := fresh.Lookup(x1)
	assert.Equal(t, a, img)
	img, _ = fresh.Lookup(y)
	assert.Equal(t, datalog.NewVariable("EE0"), img)

	again, err := FreshSubstitution(r, body, gen)
	require.NoError(t, err)
	img2, _ := again.Lookup(y)
	assert.NotEqual(t, img, img2)

	_, err = FreshSubstitution(r, datalog.NewSubstitution(map[datalog.Term]datalog.Term{x1: a}), gen)
	assert.ErrorIs(t, err, datalog.ErrMalformedRule)

	_, err = FreshSubstitution(r, body.Extend(y, c), gen)
	assert.ErrorIs(t, err, datalog.ErrMalformedRule)
}

func TestVariableGeneratorSkipsReserved(t *testing.T) {
	gen := NewVariableGenerator("N")
	gen.Reserve(datalog.NewVariable("N0"), datalog.NewVariable("N2"), datalog.NewConstant("N1"))

	assert.Equal(t, datalog.NewVariable("N1"), gen.Next())
	assert.Equal(t, datalog.NewVariable("N3"), gen.Next())
	assert.Equal(t, uint64(4), gen.Count())
}

func TestParseOptions(t *testing.T) {
	s, err := ParseStrategy("step")
	require.NoError(t, err)
	assert.Equal(t, StepwiseStrategy, s)
	_, err = ParseStrategy("depth-first")
	assert.Error(t, err)

	ap, err := ParseApplicability("")
	require.NoError(t, err)
	assert.Equal(t, Restricted, ap)
	ap, err = ParseApplicability("Oblivious")
	require.NoError(t, err)
	assert.Equal(t, Oblivious, ap)
}

func TestWorkerPoolPreservesOrder(t *testing.T) {
	pool := NewWorkerPool(3)
	inputs := []int{1, 2, 3, 4, 5, 6, 7}
	out, err := ExecuteParallel(context.Background(), pool, inputs, func(_ context.Context, n int) (int, error) {
		return n * n, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 9, 16, 25, 36, 49}, out)

	_, err = ExecuteParallel(context.Background(), pool, inputs, func(_ context.Context, n int) (int, error) {
		if n == 5 {
			return 0, errors.New("boom")
		}
		return n, nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index 4")
}
