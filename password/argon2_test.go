package password

import (
	"errors"
	"strings"
	"testing"
)

// fastConfig keeps tests quick while staying above the parameter floors.
func fastConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashAndVerify(t *testing.T) {
	hasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	hash, err := hasher.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := hasher.Verify("P@ssw0rd-Ascii", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatal("expected password verification to succeed")
	}

	ok, err = hasher.Verify("wrong-password", hash)
	if err != nil || ok {
		t.Fatalf("wrong password: ok=%v err=%v", ok, err)
	}
	if ok, _ := hasher.Verify("", hash); ok {
		t.Fatal("empty password must not verify")
	}
}

func TestHashRejectsEmpty(t *testing.T) {
	hasher, _ := NewArgon2(fastConfig())
	if _, err := hasher.Hash(""); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
}

func TestVerifyPaddedEncoding(t *testing.T) {
	hasher, _ := NewArgon2(fastConfig())
	hash, _ := hasher.Hash("padded-input")

	// Re-encode salt and key with padding, as some encoders do.
	parts := strings.Split(hash, "$")
	for _, i := range []int{4, 5} {
		for len(parts[i])%4 != 0 {
			parts[i] += "="
		}
	}
	padded := strings.Join(parts, "$")

	ok, err := hasher.Verify("padded-input", padded)
	if err != nil || !ok {
		t.Fatalf("padded hash: ok=%v err=%v", ok, err)
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	hasher, _ := NewArgon2(fastConfig())

	bad := []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
		"$argon2id$v=16$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1,x=2$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
		"$argon2id$v=19$m=1024,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$c2hvcnQ$a2V5",
	}
	for _, h := range bad {
		if _, err := hasher.Verify("x", h); !errors.Is(err, ErrInvalidHash) {
			t.Fatalf("Verify(%q) expected ErrInvalidHash, got %v", h, err)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	oldHasher, _ := NewArgon2(fastConfig())
	hash, _ := oldHasher.Hash("test-password")

	stronger := fastConfig()
	stronger.Time = 2
	newHasher, _ := NewArgon2(stronger)

	needs, err := newHasher.NeedsRehash(hash)
	if err != nil || !needs {
		t.Fatalf("expected rehash: needs=%v err=%v", needs, err)
	}
	if needs, _ := oldHasher.NeedsRehash(hash); needs {
		t.Fatal("same parameters must not need rehash")
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	mutators := []func(*Config){
		func(c *Config) { c.Memory = 1024 },
		func(c *Config) { c.Time = 0 },
		func(c *Config) { c.Parallelism = 0 },
		func(c *Config) { c.SaltLength = 8 },
		func(c *Config) { c.KeyLength = 8 },
	}
	for i, mutate := range mutators {
		cfg := fastConfig()
		mutate(&cfg)
		if _, err := NewArgon2(cfg); err == nil {
			t.Fatalf("case %d: expected config error", i)
		}
	}
	if cfg := DefaultConfig(); cfg.Memory != 65536 || cfg.Time != 3 || cfg.Parallelism != 4 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestDummyVerifyDoesNotPanic(t *testing.T) {
	hasher, _ := NewArgon2(fastConfig())
	hasher.DummyVerify("")
	hasher.DummyVerify("anything")
}

func TestPolicyCheck(t *testing.T) {
	relaxed := DefaultPolicy()
	if got := relaxed.Check("short"); len(got) != 1 {
		t.Fatalf("expected length problem, got %v", got)
	}
	if got := relaxed.Check("long-enough-passphrase"); got != nil {
		t.Fatalf("unexpected problems: %v", got)
	}

	strict := Policy{MinLength: 8, RequireSpecial: true, Strict: true}
	if got := strict.Check("password"); len(got) != 4 {
		t.Fatalf("expected special, upper, digit, and common problems, got %v", got)
	}
	if got := strict.Check("Str0ng!Passphrase"); got != nil {
		t.Fatalf("unexpected problems: %v", got)
	}
}
