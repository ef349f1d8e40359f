package fingerprint

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetcap/fleetcap/internal/template"
)

// Weights are the scoring bonuses. The base score is the count of
// non-empty extracted fields.
type Weights struct {
	PerRecord     int // per record produced
	RequiredField int // the template's required field is present
	VendorHint    int // template vendor tag agrees with the caller's hint
	Minimum       int // winner must reach this score
}

// DefaultWeights returns the standard scoring weights.
func DefaultWeights() Weights {
	return Weights{PerRecord: 5, RequiredField: 10, VendorHint: 3, Minimum: 1}
}

// NoMatchError reports that no candidate template reached the minimum
// score. It is a warning, not a failure: the raw capture stays
// authoritative.
type NoMatchError struct {
	Command string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("fingerprint: no template matched output of %q", e.Command)
}

// ParseResult is the winning parse.
type ParseResult struct {
	Template *template.Template
	Records  []template.Record
	Score    int
	// Scores holds every candidate's score, for the audit blob.
	Scores map[string]int
}

// Extraction is the audit row recorded for every engine call. It is
// authoritative for gap analysis and for reproducing selection decisions.
type Extraction struct {
	Timestamp  time.Time
	TemplateID string
	Score      int
	Success    bool
	FieldCount int
	Metadata   string // JSON blob of per-candidate scores
}

// Engine scores candidate templates against command output.
type Engine struct {
	store   *template.Store
	weights Weights
}

// NewEngine creates an engine over the given catalog.
func NewEngine(store *template.Store, w Weights) *Engine {
	return &Engine{store: store, weights: w}
}

// Parse selects the best template for the command output. vendorHint may
// be empty. The returned Extraction must be persisted by the caller
// regardless of the outcome.
func (e *Engine) Parse(commandText, rawOutput, vendorHint string) (*ParseResult, Extraction, error) {
	ext := Extraction{Timestamp: time.Now().UTC()}

	candidates := e.store.Candidates(commandText)
	scores := make(map[string]int, len(candidates))

	var best *ParseResult
	for _, tmpl := range candidates {
		records, err := tmpl.Parse(rawOutput)
		if err != nil {
			scores[tmpl.ID] = 0
			continue
		}

		score := template.FieldCount(records)
		score += e.weights.PerRecord * len(records)
		if tmpl.Required != "" && hasField(records, tmpl.Required) {
			score += e.weights.RequiredField
		}
		if vendorHint != "" && tmpl.Vendor == vendorHint {
			score += e.weights.VendorHint
		}
		scores[tmpl.ID] = score

		// Strict greater-than keeps the lexicographically first ID on
		// ties; candidates arrive ordered by ID.
		if best == nil || score > best.Score {
			best = &ParseResult{Template: tmpl, Records: records, Score: score}
		}
	}

	ext.Metadata = marshalScores(scores)

	if best == nil || best.Score < e.weights.Minimum {
		log.Debug().Str("command", commandText).Int("candidates", len(candidates)).Msg("no template matched")
		return nil, ext, &NoMatchError{Command: commandText}
	}

	best.Scores = scores
	ext.TemplateID = best.Template.ID
	ext.Score = best.Score
	ext.Success = true
	ext.FieldCount = template.FieldCount(best.Records)
	return best, ext, nil
}

func hasField(records []template.Record, name string) bool {
	for _, r := range records {
		if r[name] != "" {
			return true
		}
	}
	return false
}

func marshalScores(scores map[string]int) string {
	blob, err := json.Marshal(scores)
	if err != nil {
		return "{}"
	}
	return string(blob)
}
