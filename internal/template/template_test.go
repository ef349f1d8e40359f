package template

import (
	"errors"
	"testing"
)

const iosVersionOutput = `Cisco IOS Software, C2960X Software (C2960X-UNIVERSALK9-M), Version 15.2(7)E, RELEASE SOFTWARE (fc3)
Technical Support: http://www.cisco.com/techsupport

abc-sw-01 uptime is 5 weeks, 3 days, 2 hours, 11 minutes
System image file is "flash:c2960x-universalk9-mz.152-7.E.bin"

Model Number                    : WS-C2960X-48TS-L
System Serial Number            : FOC1234ABCD
`

const iosInventoryOutput = `NAME: "1", DESCR: "WS-C3750G-24TS-1U"
PID: WS-C3750G-24TS-1U, VID: V05, SN: FOC1234X0VB

NAME: "GigabitEthernet1/0/25", DESCR: "1000BaseSX SFP"
PID: GLC-SX-MM, VID: , SN: AGM5678ZZZ
`

func findTemplate(t *testing.T, id string) *Template {
	t.Helper()
	for _, tmpl := range builtin {
		if tmpl.ID == id {
			return tmpl
		}
	}
	t.Fatalf("template %s not in builtin catalog", id)
	return nil
}

func TestParse_IOSVersion(t *testing.T) {
	tmpl := findTemplate(t, "cisco_ios_show_version")
	records, err := tmpl.Parse(iosVersionOutput)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("record count: got %d", len(records))
	}
	rec := records[0]
	if rec["hostname"] != "abc-sw-01" {
		t.Errorf("hostname: got %q", rec["hostname"])
	}
	if rec["version"] != "15.2(7)E" {
		t.Errorf("version: got %q", rec["version"])
	}
	if rec["serial_number"] != "FOC1234ABCD" {
		t.Errorf("serial: got %q", rec["serial_number"])
	}
	if rec["model"] != "WS-C2960X-48TS-L" {
		t.Errorf("model: got %q", rec["model"])
	}
}

func TestParse_IOSVersion_StackJoinsLists(t *testing.T) {
	stacked := iosVersionOutput + `
Switch 02
---------
Model Number                    : WS-C2960X-48TS-L
System Serial Number            : FOC9999WXYZ
`
	tmpl := findTemplate(t, "cisco_ios_show_version")
	records, err := tmpl.Parse(stacked)
	if err != nil {
		t.Fatal(err)
	}
	rec := records[0]
	if rec["serial_number"] != "FOC1234ABCD, FOC9999WXYZ" {
		t.Errorf("joined serials: got %q", rec["serial_number"])
	}
	if rec["model"] != "WS-C2960X-48TS-L, WS-C2960X-48TS-L" {
		t.Errorf("joined models: got %q", rec["model"])
	}
}

func TestParse_IOSInventory_Records(t *testing.T) {
	tmpl := findTemplate(t, "cisco_ios_show_inventory")
	records, err := tmpl.Parse(iosInventoryOutput)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("record count: got %d, want 2", len(records))
	}
	if records[0]["sn"] != "FOC1234X0VB" {
		t.Errorf("first serial: got %q", records[0]["sn"])
	}
	if records[1]["pid"] != "GLC-SX-MM" {
		t.Errorf("second pid: got %q", records[1]["pid"])
	}
}

func TestParse_NoRecords(t *testing.T) {
	tmpl := findTemplate(t, "juniper_junos_show_version")
	_, err := tmpl.Parse("% Unknown command\n")
	if !errors.Is(err, ErrNoRecords) {
		t.Errorf("expected ErrNoRecords, got %v", err)
	}
}

func TestNormalizeCommand(t *testing.T) {
	if got := NormalizeCommand("  Show   Version  "); got != "show version" {
		t.Errorf("got %q", got)
	}
}

func TestStore_Candidates(t *testing.T) {
	s := Builtin()

	got := s.Candidates("show version")
	if len(got) != 4 {
		t.Fatalf("show version candidates: got %d, want 4", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].ID >= got[i].ID {
			t.Error("candidates not ordered by ID")
		}
	}

	if got := s.Candidates("show inventory"); len(got) != 2 {
		t.Errorf("show inventory candidates: got %d, want 2", len(got))
	}
	if got := s.Candidates("show ip route"); len(got) != 0 {
		t.Errorf("unmatched command candidates: got %d, want 0", len(got))
	}

	// Longer command still prefix-matches its template.
	if got := s.Candidates("show version detail"); len(got) != 4 {
		t.Errorf("prefixed command candidates: got %d, want 4", len(got))
	}
}

func TestStore_CandidatesCached(t *testing.T) {
	s := Builtin()
	a := s.Candidates("show version")
	b := s.Candidates("SHOW  VERSION")
	if len(a) != len(b) {
		t.Error("normalized commands should share candidates")
	}
}

func TestFieldCount(t *testing.T) {
	records := []Record{{"a": "1", "b": ""}, {"c": "3"}}
	if got := FieldCount(records); got != 2 {
		t.Errorf("FieldCount: got %d, want 2", got)
	}
}
