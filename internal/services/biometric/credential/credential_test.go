package credential

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func newVerifier(t *testing.T, opts Options) *Verifier {
	t.Helper()

	db, err := bolt.Open(filepath.Join(t.TempDir(), "credentials.db"), 0o600, nil)
	if err != nil {
		t.Fatalf("open bbolt: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	v, err := New(db, []byte("0123456789abcdef0123456789abcdef"), opts)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

func TestEnrollVerifyRoundTrip(t *testing.T) {
	ctx := context.Background()
	v := newVerifier(t, Options{})

	if err := v.Enroll(ctx, 10, []byte("1234")); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	enrolled, err := v.Enrolled(ctx, 10)
	if err != nil {
		t.Fatalf("enrolled: %v", err)
	}
	if !enrolled {
		t.Fatal("user must be enrolled")
	}

	hat, err := v.Verify(ctx, 10, []byte("1234"))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(hat) == 0 {
		t.Fatal("expected a minted token")
	}

	userID, err := v.Validate(hat)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if userID != 10 {
		t.Fatalf("token subject = %d, want 10", userID)
	}
}

func TestVerifyMismatch(t *testing.T) {
	ctx := context.Background()
	v := newVerifier(t, Options{})

	if err := v.Enroll(ctx, 10, []byte("1234")); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	if _, err := v.Verify(ctx, 10, []byte("4321")); !errors.Is(err, ErrMismatch) {
		t.Fatalf("err = %v, want ErrMismatch", err)
	}
}

func TestVerifyNotEnrolled(t *testing.T) {
	ctx := context.Background()
	v := newVerifier(t, Options{})

	if _, err := v.Verify(ctx, 99, []byte("1234")); !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("err = %v, want ErrNotEnrolled", err)
	}
}

func TestEmptySecretRejected(t *testing.T) {
	ctx := context.Background()
	v := newVerifier(t, Options{})

	if err := v.Enroll(ctx, 10, nil); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("enroll err = %v, want ErrEmptySecret", err)
	}
	if _, err := v.Verify(ctx, 10, nil); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("verify err = %v, want ErrEmptySecret", err)
	}
}

func TestRemoveDropsEnrollment(t *testing.T) {
	ctx := context.Background()
	v := newVerifier(t, Options{})

	if err := v.Enroll(ctx, 10, []byte("1234")); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if err := v.Remove(ctx, 10); err != nil {
		t.Fatalf("remove: %v", err)
	}

	enrolled, err := v.Enrolled(ctx, 10)
	if err != nil {
		t.Fatalf("enrolled: %v", err)
	}
	if enrolled {
		t.Fatal("user must not be enrolled after removal")
	}

	// Removing again is a no-op.
	if err := v.Remove(ctx, 10); err != nil {
		t.Fatalf("remove absent: %v", err)
	}
}

func TestEnrollReplacesPreviousSecret(t *testing.T) {
	ctx := context.Background()
	v := newVerifier(t, Options{})

	if err := v.Enroll(ctx, 10, []byte("old")); err != nil {
		t.Fatalf("enroll old: %v", err)
	}
	if err := v.Enroll(ctx, 10, []byte("new")); err != nil {
		t.Fatalf("enroll new: %v", err)
	}

	if _, err := v.Verify(ctx, 10, []byte("old")); !errors.Is(err, ErrMismatch) {
		t.Fatalf("old secret err = %v, want ErrMismatch", err)
	}
	if _, err := v.Verify(ctx, 10, []byte("new")); err != nil {
		t.Fatalf("new secret: %v", err)
	}
}

func TestTokenExpires(t *testing.T) {
	ctx := context.Background()
	v := newVerifier(t, Options{TokenTTL: time.Minute})

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	v.clock = func() time.Time { return base }

	if err := v.Enroll(ctx, 10, []byte("1234")); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	hat, err := v.Verify(ctx, 10, []byte("1234"))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	if _, err := v.Validate(hat); err != nil {
		t.Fatalf("validate fresh token: %v", err)
	}

	v.clock = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := v.Validate(hat); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	ctx := context.Background()
	v := newVerifier(t, Options{})

	if err := v.Enroll(ctx, 10, []byte("1234")); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	hat, err := v.Verify(ctx, 10, []byte("1234"))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	hat[len(hat)-1] ^= 0xff
	if _, err := v.Validate(hat); err == nil {
		t.Fatal("expected tampered token to be rejected")
	}
}
