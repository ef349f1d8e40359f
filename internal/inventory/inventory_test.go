package inventory

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleDoc = `{
  "groups": [
    {
      "folder_name": "Campus A",
      "sessions": [
        {"display_name": "ABC-SW-01", "host": "10.0.0.1", "vendor": "cisco_ios", "credential_id": "lab"},
        {"display_name": "ABC-SW-02", "host": "10.0.0.2", "port": 2222, "credential_id": "lab", "extra_field": true}
      ]
    },
    {
      "folder_name": "Edge",
      "sessions": [
        {"display_name": "XYZ-FW-01", "host": "fw.example.net", "vendor": "paloalto", "credential_id": "edge"},
        {"host": ""}
      ]
    }
  ]
}`

func writeDoc(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventory.json")
	if err := os.WriteFile(path, []byte(sampleDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	devices, err := Load(writeDoc(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("device count: got %d, want 3 (empty host skipped)", len(devices))
	}

	d := devices[0]
	if d.NormalizedName != "abc-sw-01" {
		t.Errorf("normalized name: got %q", d.NormalizedName)
	}
	if d.Port != 22 {
		t.Errorf("default port: got %d", d.Port)
	}
	if devices[1].Port != 2222 {
		t.Errorf("explicit port: got %d", devices[1].Port)
	}
	if d.Group != "Campus A" {
		t.Errorf("group: got %q", d.Group)
	}
}

func TestNormalizeName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"ABC-SW-01", "abc-sw-01"},
		{"Core Switch #1", "core-switch-1"},
		{"r1.example.net", "r1-example-net"},
		{"--weird__name--", "weird-name"},
	}
	for _, c := range cases {
		if got := NormalizeName(c.in); got != c.want {
			t.Errorf("NormalizeName(%q): got %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSiteFromName(t *testing.T) {
	if got := SiteFromName("ABC-SW-01"); got != "ABC" {
		t.Errorf("got %q", got)
	}
	if got := SiteFromName("standalone"); got != "UNKNOWN" {
		t.Errorf("got %q", got)
	}
}

func TestFilter(t *testing.T) {
	devices, err := Load(writeDoc(t))
	if err != nil {
		t.Fatal(err)
	}

	got := Filter{Site: "ABC"}.Apply(devices)
	if len(got) != 2 {
		t.Errorf("site filter: got %d devices", len(got))
	}

	got = Filter{Vendor: "cisco*"}.Apply(devices)
	if len(got) != 1 || got[0].NormalizedName != "abc-sw-01" {
		t.Errorf("vendor filter: got %v", got)
	}

	got = Filter{Name: "*fw*"}.Apply(devices)
	if len(got) != 1 || got[0].NormalizedName != "xyz-fw-01" {
		t.Errorf("name filter: got %v", got)
	}

	got = Filter{}.Apply(devices)
	if len(got) != 3 {
		t.Errorf("empty filter should match all: got %d", len(got))
	}
}

func TestCredentialSource(t *testing.T) {
	t.Setenv("CRED_LAB_USER", "netops")
	t.Setenv("CRED_LAB_PASS", "secret")

	devices := []Device{
		{Host: "a", CredentialID: "lab"},
		{Host: "b", CredentialID: "lab"},
		{Host: "c", CredentialID: "missing9"},
	}
	src := LoadCredentials(devices)

	cred, ok := src.Get("lab")
	if !ok || cred.User != "netops" || cred.Password != "secret" {
		t.Errorf("lab credential: ok=%v cred=%+v", ok, cred)
	}
	if _, ok := src.Get("missing9"); ok {
		t.Error("missing credential should not resolve")
	}
}

func TestCredentialSource_KeyOnly(t *testing.T) {
	t.Setenv("CRED_K_USER", "netops")
	t.Setenv("CRED_K_KEY", "/keys/id_ed25519")

	src := LoadCredentials([]Device{{Host: "a", CredentialID: "k"}})
	cred, ok := src.Get("k")
	if !ok || cred.KeyFile != "/keys/id_ed25519" || cred.Password != "" {
		t.Errorf("key-only credential: ok=%v cred=%+v", ok, cred)
	}
}
