package errs

import (
	"errors"
	"testing"
)

func TestNewKindOf(t *testing.T) {
	err := New(ENOENT, "no such entry %q", "foo")
	if k, _ := KindOf(err); k != ENOENT {
		t.Errorf("KindOf(New(ENOENT, ...)) = %v, want ENOENT", k)
	}
	if err.Error() == "" {
		t.Errorf("Error() returned empty string")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk on fire")
	err := Wrap(EIO, cause, "read block %d", 7)

	if k, _ := KindOf(err); k != EIO {
		t.Errorf("KindOf(Wrap(EIO, ...)) = %v, want EIO", k)
	}
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("Wrap did not return an *Error")
	}
	if se.Cause == nil {
		t.Fatalf("wrapped error lost its cause")
	}
}

func TestIs(t *testing.T) {
	err := New(EEXIST, "already there")
	if !Is(err, EEXIST) {
		t.Errorf("Is(err, EEXIST) = false, want true")
	}
	if Is(err, ENOENT) {
		t.Errorf("Is(err, ENOENT) = true, want false")
	}
	if Is(nil, ENOENT) {
		t.Errorf("Is(nil, ENOENT) = true, want false")
	}
}

func TestKindOfNonSofsError(t *testing.T) {
	if got, _ := KindOf(errors.New("plain error")); got != 0 {
		t.Errorf("KindOf(plain error) = %v, want the zero Kind", got)
	}
}

func TestKindStrings(t *testing.T) {
	cases := []struct {
		k    Kind
		want string
	}{
		{EINVAL, "EINVAL"},
		{ENOENT, "ENOENT"},
		{EMLINK, "EMLINK"},
		{ELOOP, "ELOOP"},
	}
	for _, c := range cases {
		if got := c.k.String(); got != c.want {
			t.Errorf("Kind(%d).String() = %q, want %q", c.k, got, c.want)
		}
	}
}
