package auth

import "testing"

func TestHashPasswordSalted(t *testing.T) {
	h1, err := HashPassword("Abc12345!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	h2, err := HashPassword("Abc12345!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if h1 == h2 {
		t.Fatal("hashing the same secret twice must yield different outputs")
	}
	if !CheckPassword(h1, "Abc12345!") || !CheckPassword(h2, "Abc12345!") {
		t.Fatal("verify must succeed against both salted hashes")
	}
	if h1 == "Abc12345!" || h2 == "Abc12345!" {
		t.Fatal("hash must not equal the plaintext")
	}
}

func TestCheckPasswordFailsClosed(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	tests := []struct {
		name           string
		hash, password string
	}{
		{"wrong password", hash, "battery staple"},
		{"empty password", hash, ""},
		{"empty hash", "", "correct horse"},
		{"garbage hash", "not-a-bcrypt-hash", "correct horse"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if CheckPassword(tc.hash, tc.password) {
				t.Fatal("expected verification to fail")
			}
		})
	}
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}
