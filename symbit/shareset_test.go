package symbit

import "testing"

func TestShareSetMembership(t *testing.T) {
	s := Union(Singleton(0), Singleton(65))
	for _, i := range []int{0, 65} {
		if !s.Contains(i) {
			t.Errorf("expected %d to be a member of %v", i, s)
		}
	}
	if s.Contains(1) {
		t.Errorf("1 should not be a member of %v", s)
	}
	if s.Size() != 2 {
		t.Errorf("Size() = %d, want 2", s.Size())
	}
}

func TestShareSetSubsetAndExtra(t *testing.T) {
	allowed := Singleton(0)
	leaked := Union(Singleton(0), Singleton(2))
	if leaked.IsSubsetOf(allowed) {
		t.Fatal("leaked must not be a subset of allowed")
	}
	extra := leaked.Extra(allowed)
	if len(extra) != 1 || extra[0] != 2 {
		t.Errorf("Extra() = %v, want [2]", extra)
	}
}

func TestShareSetEqualAndEmpty(t *testing.T) {
	var empty ShareSet
	if !empty.Empty() {
		t.Error("zero value must be empty")
	}
	if !Union(Singleton(3), empty).Equal(Singleton(3)) {
		t.Error("union with empty must be identity")
	}
}
