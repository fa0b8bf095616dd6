// Package revlog parses the output of `git log --name-status -z` into a
// stream of commit/change records, rejecting malformed tokens before they
// ever reach the entity index (C4) or edge builder (C7).
package revlog

import (
	"regexp"
	"strings"

	"github.com/coderisk/coupler/internal/models"
)

var statusRe = regexp.MustCompile(`^([AMDTUXB]|[RC]\d{2,3})$`)

var renameCodeRe = statusRe // same shape check, reused below for path rejection
var renameLikeRe = regexp.MustCompile(`^[RC]\d{2,3}$`)
var hexOIDRe = regexp.MustCompile(`^[0-9a-f]{40}$`)
var alphaRe = regexp.MustCompile(`^[A-Za-z]+$`)

// sentinelPrefix is the commit-delimiter literal used by the tokenizer (C2).
// A path token can never legitimately start with it since it is not a valid
// filesystem path component on any platform git runs on.
const sentinelPrefix = "__CODE_INTEL_COMMIT__"

// ValidateStatus reports whether tok is a well-formed git name-status code:
// a single-letter status, or a rename/copy code followed by a 2-3 digit
// similarity score.
func ValidateStatus(tok string) bool {
	return statusRe.MatchString(tok)
}

// ValidatePath reports whether tok is an acceptable path token, applying the
// reject rules in order. ok is false whenever the token is rejected; issue
// is non-nil whenever the rejection (or, in permissive mode, the acceptance
// of an otherwise-rejected token) should be recorded by the caller. The
// returned issue carries no commit id; the caller fills in CommitOID for
// attribution. ValidatePath itself has no I/O and is deterministic for a
// given (tok, mode).
func ValidatePath(tok string, mode models.ValidationMode) (ok bool, issue *models.ValidationIssue) {
	reason := rejectReason(tok)
	if reason == "" {
		return true, nil
	}

	switch mode {
	case models.ValidationPermissive:
		return true, &models.ValidationIssue{
			Kind:     reason,
			Severity: models.SeverityAccepted,
			Token:    tok,
		}
	default: // strict and soft both reject; the caller decides abort vs skip
		return false, &models.ValidationIssue{
			Kind:     reason,
			Severity: models.SeverityRejected,
			Token:    tok,
		}
	}
}

// rejectReason returns a short machine-readable reason tok fails path
// validation, or "" if tok is acceptable.
func rejectReason(tok string) string {
	switch {
	case len(tok) <= 2 && alphaRe.MatchString(tok):
		return "short_alpha"
	case renameCodeRe.MatchString(tok):
		return "status_code_match"
	case renameLikeRe.MatchString(tok):
		return "rename_code_shaped"
	case hexOIDRe.MatchString(tok):
		return "commit_oid_shaped"
	case strings.Contains(tok, "@") && !strings.Contains(tok, "/"):
		return "email_shaped"
	case strings.HasPrefix(tok, sentinelPrefix):
		return "sentinel_prefixed"
	case len(tok) <= 3 && alphaRe.MatchString(tok):
		return "short_alpha_acronym"
	default:
		return ""
	}
}
