package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
)

// TestMain picks up a local .env from the module root and keeps access-code hashing cheap for runs
// that end at the approval gate. Missing files are fine.
func TestMain(m *testing.M) {
	_ = godotenv.Load(filepath.Join("..", "..", ".env"))
	if os.Getenv("ACCESS_CODE_BCRYPT_COST") == "" {
		_ = os.Setenv("ACCESS_CODE_BCRYPT_COST", "10")
	}
	os.Exit(m.Run())
}
