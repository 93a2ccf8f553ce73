// Package credential implements the device-credential fallback: enrolled
// secrets are stored as bcrypt hashes and a successful verification mints a
// signed hardware authentication token.
package credential

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/awnumar/memguard"
	"github.com/golang-jwt/jwt/v5"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/louisbranch/biomgate/internal/platform/errors"
	"github.com/louisbranch/biomgate/internal/platform/id"
)

var credentialsBucket = []byte("credentials")

var (
	// ErrNotEnrolled indicates the user has no device credential.
	ErrNotEnrolled = apperrors.New(apperrors.CodeCredentialNotEnrolled, "no device credential enrolled")
	// ErrMismatch indicates the presented secret does not match.
	ErrMismatch = apperrors.New(apperrors.CodeCredentialMismatch, "device credential does not match")
	// ErrEmptySecret indicates an empty secret was presented.
	ErrEmptySecret = apperrors.New(apperrors.CodeCredentialEmpty, "device credential is empty")
)

// TokenIssuer is the issuer claim stamped on minted tokens.
const TokenIssuer = "biomgate"

// Verifier checks device credentials against enrolled hashes and mints signed
// tokens. The signing key lives in locked memory for the verifier's lifetime.
type Verifier struct {
	db         *bolt.DB
	signingKey *memguard.Enclave
	tokenTTL   time.Duration

	clock func() time.Time
}

// Options tunes a Verifier.
type Options struct {
	// TokenTTL bounds the validity of minted tokens. Defaults to 5 minutes.
	TokenTTL time.Duration
}

// New creates a verifier over an open bbolt database. The signing key is
// copied into locked memory; the caller's buffer is wiped.
func New(db *bolt.DB, signingKey []byte, opts Options) (*Verifier, error) {
	if len(signingKey) == 0 {
		return nil, apperrors.New(apperrors.CodeKeystoreTokenEmpty, "signing key is empty")
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 5 * time.Minute
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(credentialsBucket)
		return err
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageUnavailable, "create credentials bucket", err)
	}

	return &Verifier{
		db:         db,
		signingKey: memguard.NewEnclave(signingKey),
		tokenTTL:   opts.TokenTTL,
		clock:      time.Now,
	}, nil
}

// Enroll stores the bcrypt hash of the secret for the user, replacing any
// previous enrollment.
func (v *Verifier) Enroll(ctx context.Context, userID int32, secret []byte) error {
	if len(secret) == 0 {
		return ErrEmptySecret
	}

	hash, err := bcrypt.GenerateFromPassword(secret, bcrypt.DefaultCost)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeCredentialEmpty, "hash device credential", err)
	}

	err = v.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Put(userKey(userID), hash)
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageUnavailable, "store device credential", err)
	}
	return nil
}

// Remove deletes the user's enrollment. Removing an absent enrollment is not
// an error.
func (v *Verifier) Remove(ctx context.Context, userID int32) error {
	err := v.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Delete(userKey(userID))
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageUnavailable, "remove device credential", err)
	}
	return nil
}

// Enrolled reports whether the user has a device credential.
func (v *Verifier) Enrolled(ctx context.Context, userID int32) (bool, error) {
	var enrolled bool
	err := v.db.View(func(tx *bolt.Tx) error {
		enrolled = tx.Bucket(credentialsBucket).Get(userKey(userID)) != nil
		return nil
	})
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeStorageUnavailable, "read device credential", err)
	}
	return enrolled, nil
}

// Verify checks the secret against the enrolled hash and mints a signed token
// on success.
func (v *Verifier) Verify(ctx context.Context, userID int32, secret []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	var hash []byte
	err := v.db.View(func(tx *bolt.Tx) error {
		stored := tx.Bucket(credentialsBucket).Get(userKey(userID))
		if stored != nil {
			hash = append([]byte(nil), stored...)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageUnavailable, "read device credential", err)
	}
	if hash == nil {
		return nil, ErrNotEnrolled
	}

	if err := bcrypt.CompareHashAndPassword(hash, secret); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrMismatch
		}
		return nil, apperrors.Wrap(apperrors.CodeCredentialMismatch, "compare device credential", err)
	}

	return v.mintToken(userID)
}

// Validate parses a minted token and returns the user it was issued for.
func (v *Verifier) Validate(hat []byte) (int32, error) {
	key, err := v.signingKey.Open()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeKeystoreSealed, "open signing key", err)
	}
	defer key.Destroy()

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(string(hat), claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.New(apperrors.CodeCredentialMismatch, "unexpected signing method")
		}
		return key.Bytes(), nil
	},
		jwt.WithIssuer(TokenIssuer),
		jwt.WithTimeFunc(v.clock),
	)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeCredentialMismatch, "parse token", err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 32)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeCredentialMismatch, "parse token subject", err)
	}
	return int32(userID), nil
}

func (v *Verifier) mintToken(userID int32) ([]byte, error) {
	tokenID, err := id.NewID()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeCredentialMismatch, "generate token id", err)
	}

	now := v.clock().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    TokenIssuer,
		Subject:   strconv.FormatInt(int64(userID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(v.tokenTTL)),
		ID:        tokenID,
	}

	key, err := v.signingKey.Open()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeKeystoreSealed, "open signing key", err)
	}
	defer key.Destroy()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key.Bytes())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeCredentialMismatch, "sign token", err)
	}
	return []byte(signed), nil
}

func userKey(userID int32) []byte {
	return []byte(strconv.FormatInt(int64(userID), 10))
}
