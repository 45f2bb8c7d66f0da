package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBoxRoundTrip(t *testing.T) {
	box, err := LoadOrCreateBox(filepath.Join(t.TempDir(), "secret.key"))
	if err != nil {
		t.Fatalf("LoadOrCreateBox: %v", err)
	}

	sealed, err := box.Seal("sk-ant-123")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if strings.Contains(sealed, "sk-ant-123") {
		t.Fatal("sealed value leaks plaintext")
	}
	again, _ := box.Seal("sk-ant-123")
	if again == sealed {
		t.Error("nonces should differ between seals")
	}

	plain, err := box.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if plain != "sk-ant-123" {
		t.Errorf("Open = %q", plain)
	}
}

func TestBoxRejectsTampering(t *testing.T) {
	box, _ := LoadOrCreateBox(filepath.Join(t.TempDir(), "k"))
	other, _ := LoadOrCreateBox(filepath.Join(t.TempDir(), "k"))
	sealed, _ := box.Seal("secret")

	if _, err := other.Open(sealed); !errors.Is(err, ErrDecrypt) {
		t.Errorf("other key: expected ErrDecrypt, got %v", err)
	}
	if _, err := box.Open("not base64!"); !errors.Is(err, ErrDecrypt) {
		t.Errorf("garbage: expected ErrDecrypt, got %v", err)
	}
	if _, err := box.Open("c2hvcnQ="); !errors.Is(err, ErrDecrypt) {
		t.Errorf("short: expected ErrDecrypt, got %v", err)
	}
}

func TestLoadOrCreateBoxPersistsKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "secret.key")
	first, err := LoadOrCreateBox(path)
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("key file not written: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key file mode = %v, want 0600", info.Mode().Perm())
	}

	sealed, _ := first.Seal("value")
	second, err := LoadOrCreateBox(path)
	if err != nil {
		t.Fatal(err)
	}
	if got, err := second.Open(sealed); err != nil || got != "value" {
		t.Errorf("reloaded key cannot open: %q, %v", got, err)
	}
}

func TestLoadOrCreateBoxBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.key")
	if err := os.WriteFile(path, []byte("short"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrCreateBox(path); !errors.Is(err, ErrBadKeyFile) {
		t.Errorf("expected ErrBadKeyFile, got %v", err)
	}
}

var errMissing = errors.New("missing")

type memSettings map[string]string

func (m memSettings) SaveSetting(k, v string) error { m[k] = v; return nil }
func (m memSettings) DeleteSetting(k string) error  { delete(m, k); return nil }
func (m memSettings) GetSetting(k string) (string, error) {
	v, ok := m[k]
	if !ok {
		return "", errMissing
	}
	return v, nil
}

func TestCredentials(t *testing.T) {
	box, _ := LoadOrCreateBox(filepath.Join(t.TempDir(), "k"))
	settings := memSettings{}
	creds := NewCredentials(settings, box, func(err error) bool { return errors.Is(err, errMissing) })

	key, err := creds.LoadAPIKey()
	if err != nil || key != "" {
		t.Fatalf("empty store: %q, %v", key, err)
	}

	if err := creds.SaveAPIKey("sk-ant-xyz"); err != nil {
		t.Fatalf("SaveAPIKey: %v", err)
	}
	if settings[apiKeySetting] == "sk-ant-xyz" {
		t.Fatal("api key stored in plain text")
	}
	key, err = creds.LoadAPIKey()
	if err != nil || key != "sk-ant-xyz" {
		t.Errorf("LoadAPIKey = %q, %v", key, err)
	}

	if err := creds.SaveAPIKey(""); err != nil {
		t.Fatalf("clearing: %v", err)
	}
	if _, ok := settings[apiKeySetting]; ok {
		t.Error("empty key should clear the setting")
	}

	settings[apiKeySetting] = "corrupted"
	if _, err := creds.LoadAPIKey(); !errors.Is(err, ErrDecrypt) {
		t.Errorf("expected ErrDecrypt for corrupted value, got %v", err)
	}
}
