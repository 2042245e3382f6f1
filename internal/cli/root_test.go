package cli

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashPasswordCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("s3cret\n"))
	cmd.SetArgs([]string{"hash-password"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	hash := strings.TrimSpace(out.String())
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")); err != nil {
		t.Fatalf("hash does not match password: %v", err)
	}
}

func TestViperForCmdReadsEnvironment(t *testing.T) {
	t.Setenv("QUIZ_PORT", "9999")
	cmd := NewStartCmd()
	v := viperForCmd(cmd)
	if got := v.GetString("port"); got != "9999" {
		t.Fatalf("expected port from env, got %q", got)
	}
	if got, _ := cmd.Flags().GetString("port"); got != "9999" {
		t.Fatalf("expected flag synced from env, got %q", got)
	}
}
