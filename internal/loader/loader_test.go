package loader

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fleetcap/fleetcap/internal/capture"
	"github.com/fleetcap/fleetcap/internal/change"
	"github.com/fleetcap/fleetcap/internal/fingerprint"
	"github.com/fleetcap/fleetcap/internal/store"
	"github.com/fleetcap/fleetcap/internal/template"
	"github.com/fleetcap/fleetcap/internal/testutil"
)

type fixture struct {
	store  *store.Store
	loader *Loader
	capDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	st := testutil.NewTestStore(t)

	l := New(st, Options{
		Types:           capture.NewTypeSet(nil),
		Patterns:        change.DefaultPatterns(),
		Engine:          fingerprint.NewEngine(template.Builtin(), fingerprint.DefaultWeights()),
		MinSuccessBytes: 64,
		ArchiveDays:     30,
		SweepBatch:      1000,
		SnippetBytes:    256,
		BlobRoot:        filepath.Join(dir, "blobs"),
		DiffRoot:        filepath.Join(dir, "diffs"),
	})
	return &fixture{store: st, loader: l, capDir: filepath.Join(dir, "captures")}
}

func (f *fixture) writeCapture(t *testing.T, typ capture.Type, device, content string) string {
	t.Helper()
	path := capture.PathFor(f.capDir, typ, device)
	if err := capture.WriteAtomic(path, []byte(content)); err != nil {
		t.Fatal(err)
	}
	return path
}

func (f *fixture) ingestVersionFingerprint(t *testing.T) {
	t.Helper()
	rec := &fingerprint.Record{
		Hostname: "ABC-SW-01",
		Host:     "10.0.0.1",
		CommandOutputs: map[string]string{
			"show version": testutil.SampleIOSVersion,
		},
		AdditionalInfo: fingerprint.AdditionalInfo{Vendor: "cisco_ios"},
	}
	if err := f.loader.IngestFingerprint(context.Background(), rec, "/fp/abc-sw-01.json"); err != nil {
		t.Fatalf("ingest fingerprint: %v", err)
	}
}

func TestIngestFingerprint_NewDevice(t *testing.T) {
	f := newFixture(t)
	f.ingestVersionFingerprint(t)

	d, err := f.store.GetDevice("abc-sw-01")
	if err != nil {
		t.Fatalf("device not created: %v", err)
	}
	if d.SoftwareVersion != "15.2(7)E" {
		t.Errorf("version: got %q", d.SoftwareVersion)
	}
	if d.Model != "WS-C2960X-48TS-L" {
		t.Errorf("model: got %q", d.Model)
	}
	if !d.HaveSN || d.IsStack || d.StackCount != 0 {
		t.Errorf("invariants: have_sn=%v is_stack=%v count=%d", d.HaveSN, d.IsStack, d.StackCount)
	}

	serials, _ := f.store.Serials(d.ID)
	if len(serials) != 1 || serials[0] != "FOC1234ABCD" {
		t.Errorf("serials: %v", serials)
	}

	exts, _ := f.store.Extractions(d.ID)
	if len(exts) != 1 || !exts[0].Success || exts[0].TemplateID != "cisco_ios_show_version" {
		t.Errorf("extraction audit: %+v", exts)
	}

	statuses, _ := f.store.DeviceStatuses()
	if len(statuses) != 1 || statuses[0].SiteCode != "ABC" {
		t.Errorf("site derivation: %+v", statuses)
	}
}

// Re-ingesting the same record yields identical children (replace
// semantics, not append).
func TestIngestFingerprint_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.ingestVersionFingerprint(t)
	f.ingestVersionFingerprint(t)

	d, _ := f.store.GetDevice("abc-sw-01")
	serials, _ := f.store.Serials(d.ID)
	if len(serials) != 1 {
		t.Errorf("serials duplicated: %v", serials)
	}
	members, _ := f.store.StackMembers(d.ID)
	if len(members) != 0 {
		t.Errorf("stack members appeared: %v", members)
	}
}

func TestIngestFingerprint_StackFromJoinedFields(t *testing.T) {
	f := newFixture(t)
	rec := &fingerprint.Record{
		Hostname:     "ABC-STACK-01",
		SerialNumber: "FCW2425G0BB, FJC2422E0NW, FJC2422E0NB",
		Model:        "C9300-48UXM, C9300-48UXM, C9300-48UXM",
		AdditionalInfo: fingerprint.AdditionalInfo{
			Vendor: "cisco_ios",
		},
	}
	if err := f.loader.IngestFingerprint(context.Background(), rec, "/fp/abc-stack-01.json"); err != nil {
		t.Fatal(err)
	}

	d, err := f.store.GetDevice("abc-stack-01")
	if err != nil {
		t.Fatal(err)
	}
	if !d.IsStack || d.StackCount != 3 {
		t.Errorf("stack invariants: is_stack=%v count=%d", d.IsStack, d.StackCount)
	}

	serials, _ := f.store.Serials(d.ID)
	if len(serials) != 3 || serials[0] != "FCW2425G0BB" {
		t.Errorf("serials: %v", serials)
	}

	members, _ := f.store.StackMembers(d.ID)
	if len(members) != 3 {
		t.Fatalf("members: %v", members)
	}
	for i, m := range members {
		if m.Position != i+1 || m.Model != "C9300-48UXM" {
			t.Errorf("member %d: %+v", i, m)
		}
	}
	if !members[0].IsMaster || members[1].IsMaster || members[2].IsMaster {
		t.Error("exactly the first member should be master")
	}
}

func TestIngestCapture_UnknownDeviceSkipped(t *testing.T) {
	f := newFixture(t)
	path := f.writeCapture(t, capture.TypeConfigs, "ghost-sw-01", strings.Repeat("line\n", 20))

	res, err := f.loader.IngestCaptureFile(context.Background(), path)
	if err != nil {
		t.Fatalf("unknown device should not error: %v", err)
	}
	if !res.Skipped {
		t.Error("expected skip")
	}
}

func TestIngestCapture_UnknownTypeRejected(t *testing.T) {
	f := newFixture(t)
	f.ingestVersionFingerprint(t)
	path := f.writeCapture(t, capture.Type("bogus-type"), "abc-sw-01", strings.Repeat("line\n", 20))

	_, err := f.loader.IngestCaptureFile(context.Background(), path)
	var ute *capture.UnknownTypeError
	if !errors.As(err, &ute) {
		t.Errorf("expected UnknownTypeError, got %v", err)
	}
}

func TestIngestCapture_IdempotentSameContent(t *testing.T) {
	f := newFixture(t)
	f.ingestVersionFingerprint(t)
	content := strings.Repeat("interface GigabitEthernet1/0/1\n", 10)
	path := f.writeCapture(t, capture.TypeConfigs, "abc-sw-01", content)

	ctx := context.Background()
	if _, err := f.loader.IngestCaptureFile(ctx, path); err != nil {
		t.Fatal(err)
	}
	res, err := f.loader.IngestCaptureFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed {
		t.Error("identical content should not emit a change")
	}

	d, _ := f.store.GetDevice("abc-sw-01")
	current, _ := f.store.CurrentCaptures(d.ID)
	if len(current) != 1 {
		t.Errorf("current rows: %d", len(current))
	}
	archived, _ := f.store.ArchivedCaptures(d.ID, "configs")
	if len(archived) != 0 {
		t.Errorf("archive rows after identical re-ingest: %d", len(archived))
	}
}

func TestIngestCapture_ChangeFlow(t *testing.T) {
	f := newFixture(t)
	f.ingestVersionFingerprint(t)
	ctx := context.Background()

	base := strings.Repeat("interface GigabitEthernet1/0/1\n", 20)
	path := f.writeCapture(t, capture.TypeConfigs, "abc-sw-01", base+"system uptime is 1 weeks\nbanner motd lab\n")
	if _, err := f.loader.IngestCaptureFile(ctx, path); err != nil {
		t.Fatal(err)
	}
	firstHash := capture.HashBytes([]byte(base + "system uptime is 1 weeks\nbanner motd lab\n"))

	path = f.writeCapture(t, capture.TypeConfigs, "abc-sw-01", base+"system uptime is 2 weeks\nbanner motd production\n")
	res, err := f.loader.IngestCaptureFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Changed || res.Change == nil {
		t.Fatal("expected a change")
	}
	if res.Change.PriorHash != firstHash {
		t.Errorf("prior hash mismatch")
	}
	if res.Change.Severity != string(change.SeverityModerate) {
		t.Errorf("severity: got %s", res.Change.Severity)
	}
	if res.Change.LinesAdded+res.Change.LinesRemoved != 4 {
		t.Errorf("line deltas: added=%d removed=%d", res.Change.LinesAdded, res.Change.LinesRemoved)
	}
	if res.Change.DiffPath == "" {
		t.Error("diff artifact path missing")
	}

	// Archive row carries the prior content hash (current/archive invariant).
	d, _ := f.store.GetDevice("abc-sw-01")
	archived, _ := f.store.ArchivedCaptures(d.ID, "configs")
	if len(archived) != 1 || archived[0].ContentHash != firstHash {
		t.Errorf("archive rows: %+v", archived)
	}
	current, _ := f.store.CurrentCaptures(d.ID)
	if len(current) != 1 || current[0].ContentHash == firstHash {
		t.Errorf("current row not replaced: %+v", current)
	}
}

func TestIngestCapture_FailureMarkers(t *testing.T) {
	f := newFixture(t)
	f.ingestVersionFingerprint(t)
	content := strings.Repeat("x", 100) + "\n% Invalid input detected at '^' marker.\n"
	path := f.writeCapture(t, capture.TypeConfigs, "abc-sw-01", content)

	if _, err := f.loader.IngestCaptureFile(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	d, _ := f.store.GetDevice("abc-sw-01")
	current, _ := f.store.CurrentCaptures(d.ID)
	if len(current) != 1 || current[0].Success {
		t.Errorf("failure marker capture recorded as success: %+v", current)
	}
}

func TestIngestCaptureDir(t *testing.T) {
	f := newFixture(t)
	f.ingestVersionFingerprint(t)

	f.writeCapture(t, capture.TypeConfigs, "abc-sw-01", strings.Repeat("line\n", 20))
	f.writeCapture(t, capture.TypeVersion, "abc-sw-01", testutil.SampleIOSVersion)
	f.writeCapture(t, capture.TypeARP, "ghost-sw-01", strings.Repeat("line\n", 20))

	ingested, skipped, failed, err := f.loader.IngestCaptureDir(context.Background(), f.capDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ingested != 2 || skipped != 1 || failed != 0 {
		t.Errorf("counts: ingested=%d skipped=%d failed=%d", ingested, skipped, failed)
	}
}

func TestIngestFingerprintDir(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	rec := &fingerprint.Record{
		Hostname:       "XYZ-RT-01",
		Host:           "10.9.0.1",
		Model:          "ISR4331",
		Version:        "16.9.4",
		SerialNumber:   "FDO1111AAAA",
		AdditionalInfo: fingerprint.AdditionalInfo{Vendor: "cisco_ios"},
	}
	data, err := rec.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if err := capture.WriteAtomic(fingerprint.RecordPath(dir, "xyz-rt-01"), data); err != nil {
		t.Fatal(err)
	}

	loaded, failed, err := f.loader.IngestFingerprintDir(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if loaded != 1 || failed != 0 {
		t.Errorf("loaded=%d failed=%d", loaded, failed)
	}

	d, err := f.store.GetDevice("xyz-rt-01")
	if err != nil {
		t.Fatal(err)
	}
	// No command outputs recorded: flat record fields are authoritative.
	if d.Model != "ISR4331" || d.SoftwareVersion != "16.9.4" {
		t.Errorf("flat fields: %+v", d)
	}
	statuses, _ := f.store.DeviceStatuses()
	if statuses[0].Role != "router" {
		t.Errorf("role derivation: %+v", statuses[0])
	}
}
