package keycmp

import "testing"

func TestByteComparatorLess(t *testing.T) {
	cmp := ByteComparator{}

	cases := []struct {
		x, y []byte
		want bool
	}{
		{[]byte("a"), []byte("b"), true},
		{[]byte("b"), []byte("a"), false},
		{[]byte("a"), []byte("a"), false},
		{[]byte(""), []byte("a"), true},
		{[]byte("ab"), []byte("abc"), true},
		{nil, []byte("a"), true},
	}

	for _, c := range cases {
		if got := cmp.Less(c.x, c.y); got != c.want {
			t.Errorf("Less(%q, %q) = %v, want %v", c.x, c.y, got, c.want)
		}
	}
}

func TestEqual(t *testing.T) {
	cmp := ByteComparator{}

	if !Equal(cmp, []byte("key"), []byte("key")) {
		t.Error("expected equal keys to compare equal")
	}
	if Equal(cmp, []byte("key"), []byte("other")) {
		t.Error("expected distinct keys to compare unequal")
	}
	if !Equal(cmp, nil, []byte{}) {
		t.Error("expected nil and empty slice to compare equal")
	}
}
