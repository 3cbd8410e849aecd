//go:build integration
// +build integration

package test

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goTrust/jwt"
	gjwt "github.com/golang-jwt/jwt/v5"
)

// pemKeyPair returns a PKCS#8 private key and PKIX public key, the format
// operators load from disk.
func pemKeyPair(t *testing.T) (privPEM, pubPEM []byte, priv ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal private: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal public: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}),
		pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}),
		priv
}

func rotationManager(t *testing.T, kid string, priv []byte, verify map[string][]byte) *jwt.Manager {
	t.Helper()
	m, err := jwt.NewManager(jwt.Config{
		AccessTTL:     time.Minute,
		SigningMethod: jwt.MethodEd25519,
		PrivateKey:    priv,
		Issuer:        "gotrust",
		Audience:      "api",
		Leeway:        30 * time.Second,
		KeyID:         kid,
		VerifyKeys:    verify,
	})
	if err != nil {
		t.Fatalf("NewManager(%s): %v", kid, err)
	}
	return m
}

func TestJWTKeyRotationWithPEMKeys(t *testing.T) {
	oldPriv, oldPub, oldRaw := pemKeyPair(t)
	newPriv, newPub, _ := pemKeyPair(t)

	before := rotationManager(t, "k1", oldPriv, map[string][]byte{"k1": oldPub})
	during := rotationManager(t, "k2", newPriv, map[string][]byte{"k1": oldPub, "k2": newPub})
	after := rotationManager(t, "k2", newPriv, map[string][]byte{"k2": newPub})

	oldToken, err := before.CreateAccess("u1", "s1")
	if err != nil {
		t.Fatalf("CreateAccess old: %v", err)
	}
	newToken, err := during.CreateAccess("u1", "s2")
	if err != nil {
		t.Fatalf("CreateAccess new: %v", err)
	}

	for name, token := range map[string]string{"old": oldToken, "new": newToken} {
		if _, err := during.ParseAccess(token); err != nil {
			t.Fatalf("%s token rejected during rotation: %v", name, err)
		}
	}
	if _, err := after.ParseAccess(oldToken); err == nil {
		t.Fatal("retired key must no longer verify")
	}
	if claims, err := after.ParseAccess(newToken); err != nil || claims.SID != "s2" {
		t.Fatalf("expected new token to survive retirement, got %+v %v", claims, err)
	}

	// A token signed with the old key but labelled with the new kid must fail.
	forged := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, jwt.AccessClaims{
		UID: "u1",
		SID: "s1",
		RegisteredClaims: gjwt.RegisteredClaims{
			Issuer:    "gotrust",
			Audience:  gjwt.ClaimStrings{"api"},
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
			IssuedAt:  gjwt.NewNumericDate(time.Now()),
		},
	})
	forged.Header["kid"] = "k2"
	signed, err := forged.SignedString(oldRaw)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	if _, err := after.ParseAccess(signed); err == nil {
		t.Fatal("expected kid/key mismatch to fail")
	}
}

func TestJWTVerifierOnlyDeployment(t *testing.T) {
	priv, pub, _ := pemKeyPair(t)
	signer := rotationManager(t, "k1", priv, map[string][]byte{"k1": pub})

	verifier, err := jwt.NewManager(jwt.Config{
		AccessTTL:     time.Minute,
		SigningMethod: jwt.MethodEd25519,
		PublicKey:     pub,
		Issuer:        "gotrust",
		Audience:      "api",
	})
	if err != nil {
		t.Fatalf("NewManager verifier: %v", err)
	}
	if _, err := verifier.CreateAccess("u1", "s1"); !errors.Is(err, jwt.ErrVerifyOnly) {
		t.Fatalf("expected ErrVerifyOnly, got %v", err)
	}

	token, err := signer.CreateAccess("u1", "s1")
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	claims, err := verifier.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	if claims.UID != "u1" || claims.SID != "s1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}
