package keystore

import (
	"bytes"
	"errors"
	"testing"
)

func TestAddAndTakeRoundTrip(t *testing.T) {
	ks := New(4)

	token := []byte("hardware-auth-token")
	if err := ks.AddAuthToken(token); err != nil {
		t.Fatalf("add token: %v", err)
	}
	if ks.Len() != 1 {
		t.Fatalf("len = %d, want 1", ks.Len())
	}

	buf, err := ks.Take()
	if err != nil {
		t.Fatalf("take token: %v", err)
	}
	if buf == nil {
		t.Fatal("expected a token")
	}
	defer buf.Destroy()

	if !bytes.Equal(buf.Bytes(), []byte("hardware-auth-token")) {
		t.Fatalf("token = %q", buf.Bytes())
	}
	if ks.Len() != 0 {
		t.Fatalf("len after take = %d, want 0", ks.Len())
	}
}

func TestAddDoesNotWipeCallerBuffer(t *testing.T) {
	ks := New(1)

	token := []byte("keep-me")
	if err := ks.AddAuthToken(token); err != nil {
		t.Fatalf("add token: %v", err)
	}
	if !bytes.Equal(token, []byte("keep-me")) {
		t.Fatalf("caller buffer was wiped: %q", token)
	}
}

func TestEmptyTokenRejected(t *testing.T) {
	ks := New(1)

	if err := ks.AddAuthToken(nil); !errors.Is(err, ErrTokenEmpty) {
		t.Fatalf("err = %v, want ErrTokenEmpty", err)
	}
}

func TestRetentionIsBounded(t *testing.T) {
	ks := New(2)

	for _, s := range []string{"first", "second", "third"} {
		if err := ks.AddAuthToken([]byte(s)); err != nil {
			t.Fatalf("add %s: %v", s, err)
		}
	}
	if ks.Len() != 2 {
		t.Fatalf("len = %d, want 2", ks.Len())
	}

	buf, err := ks.Take()
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	defer buf.Destroy()
	if string(buf.Bytes()) != "second" {
		t.Fatalf("oldest retained = %q, want second", buf.Bytes())
	}
}

func TestTakeFromEmpty(t *testing.T) {
	ks := New(1)

	buf, err := ks.Take()
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if buf != nil {
		t.Fatal("expected nil token from empty keystore")
	}
}

func TestSealedRejectsEverything(t *testing.T) {
	ks := New(2)
	if err := ks.AddAuthToken([]byte("token")); err != nil {
		t.Fatalf("add: %v", err)
	}

	ks.Seal()

	if err := ks.AddAuthToken([]byte("late")); !errors.Is(err, ErrSealed) {
		t.Fatalf("add after seal = %v, want ErrSealed", err)
	}
	if _, err := ks.Take(); !errors.Is(err, ErrSealed) {
		t.Fatalf("take after seal = %v, want ErrSealed", err)
	}
	if ks.Len() != 0 {
		t.Fatalf("len after seal = %d, want 0", ks.Len())
	}
}
