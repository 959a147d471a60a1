package password

import (
	"os"
	"testing"
)

var envKeys = []string{
	"DUET_PASSWORD_MIN_LEN",
	"DUET_PASSWORD_MAX_LEN",
	"DUET_PASSWORD_REJECT_VERY_WEAK",
	"DUET_ARGON2_MEMORY_KIB",
	"DUET_ARGON2_ITERATIONS",
	"DUET_ARGON2_PARALLELISM",
	"DUET_ARGON2_SALT_LEN",
	"DUET_ARGON2_KEY_LEN",
}

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range envKeys {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}

	def := DefaultConfig()
	if cfg.Policy.MinLength != def.Policy.MinLength {
		t.Fatalf("min length mismatch: %d", cfg.Policy.MinLength)
	}
	if cfg.Params.MemoryKiB != def.Params.MemoryKiB {
		t.Fatalf("memory mismatch: %d", cfg.Params.MemoryKiB)
	}
}

func TestFromEnv_Override(t *testing.T) {
	t.Setenv("DUET_PASSWORD_MIN_LEN", "10")
	t.Setenv("DUET_PASSWORD_MAX_LEN", "200")
	t.Setenv("DUET_PASSWORD_REJECT_VERY_WEAK", "true")
	t.Setenv("DUET_ARGON2_MEMORY_KIB", "32768")
	t.Setenv("DUET_ARGON2_ITERATIONS", "4")
	t.Setenv("DUET_ARGON2_PARALLELISM", "2")
	t.Setenv("DUET_ARGON2_SALT_LEN", "24")
	t.Setenv("DUET_ARGON2_KEY_LEN", "32")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}

	if cfg.Policy.MinLength != 10 || cfg.Policy.MaxLength != 200 || !cfg.Policy.RejectVeryWeak {
		t.Fatalf("policy override failed: %+v", cfg.Policy)
	}
	if cfg.Params.MemoryKiB != 32768 || cfg.Params.Iterations != 4 || cfg.Params.Parallelism != 2 {
		t.Fatalf("argon2 override failed: %+v", cfg.Params)
	}
	if cfg.Params.SaltLength != 24 || cfg.Params.KeyLength != 32 {
		t.Fatalf("len override failed: %+v", cfg.Params)
	}
}

func TestFromEnv_Rejects(t *testing.T) {
	cases := map[string]map[string]string{
		"min above max":     {"DUET_PASSWORD_MIN_LEN": "20", "DUET_PASSWORD_MAX_LEN": "10"},
		"memory too small":  {"DUET_ARGON2_MEMORY_KIB": "16"},
		"not a number":      {"DUET_ARGON2_ITERATIONS": "three"},
		"bad weak flag":     {"DUET_PASSWORD_REJECT_VERY_WEAK": "maybe"},
		"parallelism range": {"DUET_ARGON2_PARALLELISM": "0"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := FromEnv(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
