package signing

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSignDeterministic(t *testing.T) {
	s, err := New([]byte("test-key"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	a := s.Sign([]byte("hello"), []byte("world"))
	b := s.Sign([]byte("hello"), []byte("world"))
	if a != b {
		t.Errorf("signatures differ: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("signature length = %d, want 64 hex chars", len(a))
	}
}

func TestSignPartBoundaries(t *testing.T) {
	s, _ := New([]byte("test-key"))

	// Length prefixing means part boundaries matter.
	if s.Sign([]byte("ab"), []byte("c")) == s.Sign([]byte("a"), []byte("bc")) {
		t.Error("part boundaries not distinguished")
	}
}

func TestVerify(t *testing.T) {
	s, _ := New([]byte("test-key"))

	sig := s.Sign([]byte("payload"))
	if !s.Verify(sig, []byte("payload")) {
		t.Error("valid signature rejected")
	}
	if s.Verify(sig, []byte("tampered")) {
		t.Error("tampered payload accepted")
	}
	if s.Verify("not-a-signature", []byte("payload")) {
		t.Error("garbage signature accepted")
	}
}

func TestKeyMatters(t *testing.T) {
	s1, _ := New([]byte("key-one"))
	s2, _ := New([]byte("key-two"))

	sig := s1.Sign([]byte("data"))
	if s2.Verify(sig, []byte("data")) {
		t.Error("signature verified under a different key")
	}
}

func TestRecordSignature(t *testing.T) {
	s, _ := New([]byte("test-key"))

	sig := s.RecordSignature("id-1", "hash-1", 12345)
	if !s.VerifyRecord(sig, "id-1", "hash-1", 12345) {
		t.Error("record signature rejected")
	}
	if s.VerifyRecord(sig, "id-2", "hash-1", 12345) {
		t.Error("wrong id accepted")
	}
	if s.VerifyRecord(sig, "id-1", "hash-2", 12345) {
		t.Error("wrong hash accepted")
	}
	if s.VerifyRecord(sig, "id-1", "hash-1", 12346) {
		t.Error("wrong timestamp accepted")
	}
}

func TestNewEmptyKey(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestLoad(t *testing.T) {
	if _, err := Load("", ""); err == nil {
		t.Error("expected error when no key configured")
	}

	s, err := Load("inline-key", "")
	if err != nil {
		t.Fatalf("Load inline: %v", err)
	}
	if !s.Verify(s.Sign([]byte("x")), []byte("x")) {
		t.Error("inline key round trip failed")
	}

	keyFile := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(keyFile, []byte("file-key\n"), 0600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	fromFile, err := Load("", keyFile)
	if err != nil {
		t.Fatalf("Load file: %v", err)
	}
	direct, _ := New([]byte("file-key"))
	if fromFile.Sign([]byte("x")) != direct.Sign([]byte("x")) {
		t.Error("key file not trimmed to the raw key")
	}

	if _, err := Load("", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing key file")
	}
}
