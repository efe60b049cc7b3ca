package selkie

import "testing"

func TestInterestString(t *testing.T) {
	cases := []struct {
		in   Interest
		want string
	}{
		{0, "none"},
		{ReadInterest, "read"},
		{WriteInterest, "write"},
		{ReadInterest | WriteInterest, "read|write"},
	}
	for _, c := range cases {
		if got := c.in.String(); got != c.want {
			t.Fatalf("String(%d)=%q, want %q", c.in, got, c.want)
		}
	}
}

func TestInterestHas(t *testing.T) {
	both := ReadInterest | WriteInterest
	if !both.Has(ReadInterest) || !both.Has(WriteInterest) || !both.Has(both) {
		t.Fatal("Has on combined mask")
	}
	if ReadInterest.Has(WriteInterest) {
		t.Fatal("read mask must not contain write")
	}
}
