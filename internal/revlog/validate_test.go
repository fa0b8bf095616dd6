package revlog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coderisk/coupler/internal/models"
)

func TestValidateStatus(t *testing.T) {
	valid := []string{"A", "M", "D", "T", "U", "X", "B", "R100", "C85"}
	for _, s := range valid {
		assert.True(t, ValidateStatus(s), "expected %q to be a valid status", s)
	}

	invalid := []string{"", "AA", "R", "R1", "C1000", "r100", "Z"}
	for _, s := range invalid {
		assert.False(t, ValidateStatus(s), "expected %q to be an invalid status", s)
	}
}

func TestValidatePath_Reject(t *testing.T) {
	cases := []string{
		"ab",                 // short alphabetic
		"M",                  // exact status code
		"R100",               // rename-code shaped
		"deadbeefdeadbeefdeadbeefdeadbeefdeadbeef", // 40-hex oid
		"jane@doe",           // email-shaped, no slash
		"__CODE_INTEL_COMMIT__extra",
		"IDE", // short all-alpha acronym
	}
	for _, tok := range cases {
		ok, issue := ValidatePath(tok, models.ValidationSoft)
		assert.False(t, ok, "expected %q to be rejected", tok)
		if assert.NotNil(t, issue) {
			assert.Equal(t, models.SeverityRejected, issue.Severity)
		}
	}
}

func TestValidatePath_Accept(t *testing.T) {
	cases := []string{
		"src/main.go",
		"internal/coupling/edges.go",
		"README.md",
		"a/b/c.txt",
	}
	for _, tok := range cases {
		ok, issue := ValidatePath(tok, models.ValidationSoft)
		assert.True(t, ok, "expected %q to be accepted", tok)
		assert.Nil(t, issue)
	}
}

func TestValidatePath_PermissiveAcceptsWithIssue(t *testing.T) {
	ok, issue := ValidatePath("jane@doe", models.ValidationPermissive)
	assert.True(t, ok)
	if assert.NotNil(t, issue) {
		assert.Equal(t, models.SeverityAccepted, issue.Severity)
		assert.Equal(t, "email_shaped", issue.Kind)
	}
}

func TestValidatePath_StrictRejectsSameAsSoft(t *testing.T) {
	ok, issue := ValidatePath("M", models.ValidationStrict)
	assert.False(t, ok)
	assert.NotNil(t, issue)
	assert.Equal(t, models.SeverityRejected, issue.Severity)
}
