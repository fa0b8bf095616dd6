package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/coderisk/coupler/internal/apperrors"
	"github.com/coderisk/coupler/internal/models"
)

// mapstructureDecoder builds a decoder that rejects any key in the source
// map that doesn't correspond to a field on out, using tag "json" to match
// the field names AnalysisOptions is already tagged with for the wire
// format (spec.md §6.2 names are stable on the wire, i.e. JSON keys).
func mapstructureDecoder(out interface{}) (*mapstructure.Decoder, error) {
	return mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: false,
		TagName:          "json",
	})
}

// ValidationResult accumulates errors found while validating an
// AnalysisOptions record, mirroring the teacher's ValidationResult shape
// (internal/config/validator.go) but scoped to this spec's option set
// instead of deployment-mode credentials.
type ValidationResult struct {
	Errors []string
}

// Valid reports whether no errors were recorded.
func (vr *ValidationResult) Valid() bool { return len(vr.Errors) == 0 }

func (vr *ValidationResult) add(format string, args ...interface{}) {
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// Error implements the error interface so a failed ValidationResult can be
// returned directly where an error is expected.
func (vr *ValidationResult) Error() string {
	return "invalid analysis options: " + strings.Join(vr.Errors, "; ")
}

// ValidateAnalysisOptions checks the enumerated constraints implied by
// spec.md §6.2 and §4.1/§4.6/§4.9 (positive sizes, known enum values,
// well-formed regexes deferred to the ticket grouper).
func ValidateAnalysisOptions(o models.AnalysisOptions) error {
	vr := &ValidationResult{}

	if o.MinRevisions < 0 {
		vr.add("min_revisions must be >= 0, got %d", o.MinRevisions)
	}
	if o.MaxChangesetSize <= 0 {
		vr.add("max_changeset_size must be > 0, got %d", o.MaxChangesetSize)
	}
	if o.MaxLogicalChangesetSize <= 0 {
		vr.add("max_logical_changeset_size must be > 0, got %d", o.MaxLogicalChangesetSize)
	}
	if o.MinCooccurrence < 0 {
		vr.add("min_cooccurrence must be >= 0, got %d", o.MinCooccurrence)
	}
	if o.TopKEdgesPerFile <= 0 {
		vr.add("topk_edges_per_file must be > 0, got %d", o.TopKEdgesPerFile)
	}
	if o.ComponentDepth <= 0 {
		vr.add("component_depth must be > 0, got %d", o.ComponentDepth)
	}
	if o.AuthorTimeWindowHours <= 0 {
		vr.add("author_time_window_hours must be > 0, got %d", o.AuthorTimeWindowHours)
	}
	if o.MaxValidationIssuesSample < 0 {
		vr.add("max_validation_issues_sample must be >= 0, got %d", o.MaxValidationIssuesSample)
	}
	if o.WindowDays != nil && *o.WindowDays <= 0 {
		vr.add("window_days must be > 0 when set, got %d", *o.WindowDays)
	}
	if o.DecayHalfLifeDays != nil && *o.DecayHalfLifeDays <= 0 {
		vr.add("decay_half_life_days must be > 0 when set, got %d", *o.DecayHalfLifeDays)
	}

	switch o.ChangesetMode {
	case models.ByCommit, models.ByAuthorTime, models.ByTicketID:
	default:
		vr.add("changeset_mode must be one of by_commit|by_author_time|by_ticket_id, got %q", o.ChangesetMode)
	}
	if o.ChangesetMode == models.ByTicketID && strings.TrimSpace(o.TicketIDPattern) == "" {
		vr.add("ticket_id_pattern is required when changeset_mode=by_ticket_id")
	}

	switch o.ValidationMode {
	case models.ValidationStrict, models.ValidationSoft, models.ValidationPermissive:
	default:
		vr.add("validation_mode must be one of strict|soft|permissive, got %q", o.ValidationMode)
	}

	switch o.CopyPolicy {
	case models.CopySeparate, models.CopyInherit, "":
	default:
		vr.add("copy_policy must be one of separate|inherit, got %q", o.CopyPolicy)
	}

	if !vr.Valid() {
		return apperrors.InputErrorf("%s", vr.Error())
	}
	return nil
}
