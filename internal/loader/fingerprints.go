package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetcap/fleetcap/internal/fingerprint"
	"github.com/fleetcap/fleetcap/internal/inventory"
	"github.com/fleetcap/fleetcap/internal/store"
)

// roleFromName derives a device role from naming convention. Devices
// outside the convention land in "unknown"; the role row is still created
// so site inventory groups cleanly.
func roleFromName(normalized string) string {
	switch {
	case strings.Contains(normalized, "-sw-"), strings.Contains(normalized, "-stack-"):
		return "switch"
	case strings.Contains(normalized, "-rt-"), strings.Contains(normalized, "-gw-"),
		strings.Contains(normalized, "-rtr-"):
		return "router"
	case strings.Contains(normalized, "-fw-"):
		return "firewall"
	case strings.Contains(normalized, "-ap-"), strings.Contains(normalized, "-wlc-"):
		return "wireless"
	default:
		return "unknown"
	}
}

// IngestFingerprint loads one fingerprint record into the store: reference
// rows, the device, replaced serial/stack/component children, recomputed
// invariants, and the extraction audit row — all in a single transaction.
func (l *Loader) IngestFingerprint(ctx context.Context, rec *fingerprint.Record, sourcePath string) error {
	hostname := rec.Hostname
	if hostname == "" {
		return fmt.Errorf("loader: fingerprint %s has no hostname", sourcePath)
	}
	normalized := inventory.NormalizeName(hostname)
	site := inventory.SiteFromName(hostname)

	// Re-run the engine over the recorded command outputs: the parse is
	// reproducible from the raw text, and the audit row documents it.
	derived, ext := l.deriveFromOutputs(rec)
	components := l.componentsFromOutputs(rec)

	vendor := derived.Vendor
	if vendor == "" {
		vendor = fingerprint.VendorFromTag(rec.AdditionalInfo.Vendor)
	}

	model := derived.Model
	if model == "" {
		model = rec.Model
	}
	version := derived.Version
	if version == "" {
		version = rec.Version
	}
	serials := derived.Serials
	if len(serials) == 0 {
		serials = fingerprint.SplitSerials(rec.SerialNumber)
	}
	members := derived.StackMembers
	if len(members) == 0 && len(serials) >= 2 {
		members = synthesize(serials, model)
	}

	capturedAt := rec.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}

	return l.store.WriteTx(ctx, func(tx *store.Tx) error {
		siteID, err := tx.UpsertSite(site)
		if err != nil {
			return err
		}
		var vendorID int64
		if vendor != "" {
			if vendorID, err = tx.UpsertVendor(vendor); err != nil {
				return err
			}
		}
		var typeID int64
		if rec.AdditionalInfo.Vendor != "" {
			typeID, err = tx.UpsertDeviceType(rec.AdditionalInfo.Vendor,
				rec.AdditionalInfo.NetmikoDriver, rec.AdditionalInfo.NapalmDriver)
			if err != nil {
				return err
			}
		}
		roleID, err := tx.UpsertRole(roleFromName(normalized))
		if err != nil {
			return err
		}

		deviceID, err := tx.UpsertDevice(&store.Device{
			Name:            hostname,
			NormalizedName:  normalized,
			SiteID:          siteID,
			VendorID:        vendorID,
			DeviceTypeID:    typeID,
			RoleID:          roleID,
			Model:           model,
			SoftwareVersion: version,
			MgmtAddress:     rec.Host,
			LastFingerprint: capturedAt.Format(time.RFC3339),
			SourceFile:      sourcePath,
		})
		if err != nil {
			return err
		}

		if err := tx.ReplaceSerials(deviceID, serials); err != nil {
			return err
		}
		if err := tx.ReplaceStackMembers(deviceID, toStoreMembers(members)); err != nil {
			return err
		}
		if err := tx.ReplaceComponents(deviceID, toStoreComponents(components)); err != nil {
			return err
		}
		if err := tx.RecomputeInvariants(deviceID); err != nil {
			return err
		}

		return tx.InsertExtraction(&store.Extraction{
			DeviceID:   deviceID,
			Timestamp:  ext.Timestamp,
			TemplateID: ext.TemplateID,
			Score:      ext.Score,
			Success:    ext.Success,
			FieldCount: ext.FieldCount,
			Metadata:   ext.Metadata,
		})
	})
}

// deriveFromOutputs parses the recorded version-class output, falling back
// to the record's own flat fields when no template matches. The extraction
// audit reflects what the engine actually decided.
func (l *Loader) deriveFromOutputs(rec *fingerprint.Record) (fingerprint.DeviceRecord, fingerprint.Extraction) {
	for cmd, output := range rec.CommandOutputs {
		if !strings.Contains(strings.ToLower(cmd), "version") &&
			!strings.Contains(strings.ToLower(cmd), "system") {
			continue
		}
		res, ext, err := l.opts.Engine.Parse(cmd, output, rec.AdditionalInfo.Vendor)
		if err != nil {
			var nm *fingerprint.NoMatchError
			if errors.As(err, &nm) {
				log.Warn().Str("hostname", rec.Hostname).Str("command", cmd).Msg("no template matched, ingesting raw record fields")
				return fingerprint.DeviceRecord{}, ext
			}
			return fingerprint.DeviceRecord{}, ext
		}
		return fingerprint.DeriveDevice(res, rec.Hostname), ext
	}
	// No version output recorded at all: still an audit row.
	return fingerprint.DeviceRecord{}, fingerprint.Extraction{Timestamp: time.Now().UTC(), Metadata: "{}"}
}

func (l *Loader) componentsFromOutputs(rec *fingerprint.Record) []fingerprint.Component {
	for cmd, output := range rec.CommandOutputs {
		if !strings.Contains(strings.ToLower(cmd), "inventory") {
			continue
		}
		res, _, err := l.opts.Engine.Parse(cmd, output, rec.AdditionalInfo.Vendor)
		if err != nil {
			continue
		}
		return fingerprint.DeriveComponents(res)
	}
	return nil
}

func synthesize(serials []string, joinedModels string) []fingerprint.StackMember {
	models := fingerprint.SplitSerials(joinedModels)
	members := make([]fingerprint.StackMember, 0, len(serials))
	for i, sn := range serials {
		model := ""
		switch {
		case i < len(models):
			model = models[i]
		case len(models) > 0:
			model = models[len(models)-1]
		}
		members = append(members, fingerprint.StackMember{
			Position: i + 1, Model: model, Serial: sn, IsMaster: i == 0,
		})
	}
	return members
}

func toStoreMembers(members []fingerprint.StackMember) []store.StackMember {
	out := make([]store.StackMember, 0, len(members))
	for _, m := range members {
		out = append(out, store.StackMember{
			Position: m.Position, Model: m.Model, Serial: m.Serial, IsMaster: m.IsMaster,
		})
	}
	return out
}

func toStoreComponents(comps []fingerprint.Component) []store.Component {
	out := make([]store.Component, 0, len(comps))
	for _, c := range comps {
		out = append(out, store.Component{
			Kind: string(c.Kind), Name: c.Name, Description: c.Description,
			Serial: c.Serial, Position: c.Position, Source: c.Source, Confidence: c.Confidence,
		})
	}
	return out
}

// IngestFingerprintDir loads every *.json record under dir. It returns the
// number of records loaded and the number that failed.
func (l *Loader) IngestFingerprintDir(ctx context.Context, dir string) (loaded, failed int, err error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, 0, fmt.Errorf("loader: glob fingerprint dir %s: %w", dir, err)
	}
	for _, f := range files {
		if ctx.Err() != nil {
			return loaded, failed, ctx.Err()
		}
		rec, loadErr := fingerprint.LoadRecord(f)
		if loadErr != nil {
			failed++
			log.Error().Err(loadErr).Str("path", f).Msg("fingerprint record unreadable")
			continue
		}
		if ingErr := l.IngestFingerprint(ctx, rec, f); ingErr != nil {
			failed++
			log.Error().Err(ingErr).Str("path", f).Msg("fingerprint ingest failed")
			var fatal *store.FatalError
			if errors.As(ingErr, &fatal) {
				return loaded, failed, ingErr
			}
			continue
		}
		loaded++
	}
	return loaded, failed, nil
}
