package datalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	vX = NewVariable("X")
	vY = NewVariable("Y")
	vZ = NewVariable("Z")
	cA = NewConstant("a")
	cB = NewConstant("b")
)

func TestSubstitutionIsImmutable(t *testing.T) {
	s := EmptySubstitution().Extend(vX, cA)
	s2 := s.Extend(vY, cB)

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 2, s2.Len())
	_, ok := s.Lookup(vY)
	assert.False(t, ok)

	m := map[Term]Term{vX: cA}
	s3 := NewSubstitution(m)
	m[vX] = cB
	img, _ := s3.Lookup(vX)
	assert.Equal(t, cA, img)

	copied := s3.Map()
	copied[vX] = cB
	img, _ = s3.Lookup(vX)
	assert.Equal(t, cA, img)
}

func TestSubstitutionApply(t *testing.T) {
	s := NewSubstitution(map[Term]Term{vX: cA, vY: vZ})

	assert.Equal(t, cA, s.ApplyTerm(vX))
	assert.Equal(t, vZ, s.ApplyTerm(vY))
	assert.Equal(t, vZ, s.ApplyTerm(vZ), "unbound variables are unchanged")
	assert.Equal(t, cB, s.ApplyTerm(cB))

	a := s.Apply(NewAtom("R", vX, vY, cB))
	assert.Equal(t, "R(a, Z, b)", a.String())

	atoms := s.ApplyAll([]Atom{NewAtom("S", vX), NewAtom("T", vY)})
	assert.Equal(t, "S(a), T(Z)", FormatAtoms(atoms))
}

func TestSubstitutionRestrictCompose(t *testing.T) {
	s := NewSubstitution(map[Term]Term{vX: cA, vY: vZ})

	r := s.Restrict([]Term{vY, NewVariable("W")})
	assert.Equal(t, "{Y -> Z}", r.String())

	c := s.Compose(NewSubstitution(map[Term]Term{vZ: cB}))
	assert.Equal(t, "{X -> a, Y -> b, Z -> b}", c.String())
}

func TestSubstitutionEquality(t *testing.T) {
	s1 := NewSubstitutionBuilder(2).Put(vX, cA).Put(vY, cB).Build()
	s2 := NewSubstitution(map[Term]Term{vY: cB, vX: cA})
	s3 := NewSubstitution(map[Term]Term{vX: cA})

	assert.True(t, s1.Equal(s2))
	assert.Equal(t, s1.Key(), s2.Key())
	assert.False(t, s1.Equal(s3))
	assert.NotEqual(t, s1.Key(), s3.Key())

	assert.True(t, EmptySubstitution().Equal(NewSubstitution(nil)))
	assert.Equal(t, "{}", EmptySubstitution().String())
	assert.Equal(t, []Term{vX, vY}, s2.Domain())
}

func TestCollectSubstitutions(t *testing.T) {
	subs := []Substitution{EmptySubstitution(), NewSubstitution(map[Term]Term{vX: cA})}
	got, err := CollectSubstitutions(NewSliceSubstitutions(subs))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	atoms, err := CollectAtoms(sliceFacts{NewAtom("R", cA), NewAtom("R", cB)})
	require.NoError(t, err)
	assert.Equal(t, "R(a), R(b)", FormatAtoms(atoms))
}

func TestStoreError(t *testing.T) {
	cause := errors.New("disk full")
	a := NewAtom("R", cA)
	err := NewStoreError("add", &a, cause)

	assert.True(t, IsStoreError(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "store add R(a): disk full", err.Error())
	assert.Same(t, err, NewStoreError("contains", nil, err), "already wrapped")
	assert.Nil(t, NewStoreError("add", nil, nil))
	assert.False(t, IsStoreError(cause))
}

// sliceFacts is a read-only fact collection for iterator tests
type sliceFacts []Atom

func (f sliceFacts) Contains(a Atom) (bool, error) {
	for _, x := range f {
		if x.Equal(a) {
			return true, nil
		}
	}
	return false, nil
}
func (f sliceFacts) Iterator() (AtomIterator, error) { return NewSliceIterator(f), nil }
func (f sliceFacts) Terms() ([]Term, error)          { return nil, nil }
func (f sliceFacts) Add(Atom) (bool, error)          { return false, errors.New("read only") }
func (f sliceFacts) AddAll([]Atom) (int, error)      { return 0, errors.New("read only") }
func (f sliceFacts) Size() (int, error)              { return len(f), nil }
