package password

import (
	"strings"
	"testing"
)

func fastParams() Params {
	return Params{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
}

func TestHashAndVerify(t *testing.T) {
	hasher, err := NewHasher(fastParams())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	hash, err := hasher.Hash("hunter2")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("unexpected hash format: %s", hash)
	}

	ok, err := hasher.Verify("hunter2", hash)
	if err != nil || !ok {
		t.Fatalf("Verify(correct) = (%v, %v)", ok, err)
	}

	ok, err = hasher.Verify("hunter3", hash)
	if err != nil || ok {
		t.Fatalf("Verify(wrong) = (%v, %v)", ok, err)
	}
}

func TestHashesAreSalted(t *testing.T) {
	hasher, err := NewHasher(fastParams())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	a, err := hasher.Hash("same-secret")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	b, err := hasher.Hash("same-secret")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if a == b {
		t.Fatal("identical hashes for identical secrets")
	}
}

func TestVerifyUsesStoredCostParams(t *testing.T) {
	old, err := NewHasher(fastParams())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	hash, err := old.Hash("secret")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	// A hasher configured with different costs still verifies old hashes.
	upgraded, err := NewHasher(Params{
		Memory:      16 * 1024,
		Time:        2,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	ok, err := upgraded.Verify("secret", hash)
	if err != nil || !ok {
		t.Fatalf("Verify across params = (%v, %v)", ok, err)
	}
}

func TestNewHasherRejectsWeakParams(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Params)
	}{
		{"memory", func(p *Params) { p.Memory = 1024 }},
		{"time", func(p *Params) { p.Time = 0 }},
		{"parallelism", func(p *Params) { p.Parallelism = 0 }},
		{"salt", func(p *Params) { p.SaltLength = 8 }},
		{"key", func(p *Params) { p.KeyLength = 8 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := fastParams()
			tc.mutate(&p)
			if _, err := NewHasher(p); err == nil {
				t.Fatal("weak params accepted")
			}
		})
	}
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	hasher, err := NewHasher(fastParams())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	cases := []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$aGFzaA",
	}
	for _, hash := range cases {
		if _, err := hasher.Verify("secret", hash); err == nil {
			t.Errorf("malformed hash accepted: %q", hash)
		}
	}
}
