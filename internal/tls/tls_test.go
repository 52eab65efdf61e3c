package tls

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
)

func TestSetup_Disabled(t *testing.T) {
	cfg, err := Setup(Config{})
	if err != nil || cfg != nil {
		t.Fatalf("Setup = %v, %v; want nil, nil", cfg, err)
	}
}

func TestSetup_AutoGenerate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	cfg, err := Setup(Config{Enabled: true, Dir: dir, AutoGenerate: true, MinVersion: "1.2"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("certificates = %d", len(cfg.Certificates))
	}
	if cfg.MinVersion != tls.VersionTLS12 || cfg.MaxVersion != tls.VersionTLS13 {
		t.Fatalf("versions = %x..%x", cfg.MinVersion, cfg.MaxVersion)
	}
	st, err := os.Stat(filepath.Join(dir, tlsKey))
	if err != nil {
		t.Fatalf("key not written: %v", err)
	}
	if st.Mode().Perm()&0o077 != 0 {
		t.Fatalf("key mode = %v", st.Mode().Perm())
	}

	// a second start reuses the generated pair
	before, _ := os.ReadFile(filepath.Join(dir, tlsCrt))
	if _, err := Setup(Config{Enabled: true, Dir: dir, AutoGenerate: true}); err != nil {
		t.Fatalf("Setup again: %v", err)
	}
	after, _ := os.ReadFile(filepath.Join(dir, tlsCrt))
	if string(before) != string(after) {
		t.Fatalf("certificate regenerated")
	}
}

func TestSetup_CertFiles(t *testing.T) {
	dir := t.TempDir()
	cc := CertConfig{CommonName: "example.test", Hosts: []string{"example.test", "::1"}, CertPath: filepath.Join(dir, "c.pem"), KeyPath: filepath.Join(dir, "k.pem")}
	cc.NotAfter = cc.NotAfter.AddDate(3000, 0, 0)
	if err := GenerateSelfSignedCert(cc); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Setup(Config{Enabled: true, CertFile: cc.CertPath, KeyFile: cc.KeyPath}); err != nil {
		t.Fatalf("Setup: %v", err)
	}
}

func TestSetup_Errors(t *testing.T) {
	cases := []Config{
		{Enabled: true},
		{Enabled: true, Dir: t.TempDir()},
		{Enabled: true, Dir: t.TempDir(), AutoGenerate: true, MinVersion: "1.1"},
		{Enabled: true, Dir: t.TempDir(), AutoGenerate: true, MinVersion: "1.3", MaxVersion: "1.2"},
	}
	for i, c := range cases {
		if _, err := Setup(c); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
