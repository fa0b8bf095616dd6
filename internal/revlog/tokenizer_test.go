package revlog

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coderisk/coupler/internal/models"
)

// buildStream assembles a synthetic NUL-delimited git log --name-status -z
// stream for one or more commits, using the same field order as PrettyFormat.
func buildStream(commits [][]string) string {
	var b strings.Builder
	for _, c := range commits {
		for _, f := range c {
			b.WriteString(f)
			b.WriteByte(0)
		}
	}
	return b.String()
}

func collect(t *testing.T, r string, mode models.ValidationMode) ([]Record, error) {
	t.Helper()
	var recs []Record
	var retErr error
	for rec, err := range Tokenize(context.Background(), strings.NewReader(r), "repo1", mode) {
		if err != nil {
			retErr = err
			break
		}
		recs = append(recs, rec)
	}
	return recs, retErr
}

func TestTokenize_SingleCommitSingleChange(t *testing.T) {
	stream := buildStream([][]string{
		{
			Sentinel, "abc123", "", "Jane Dev", "jane@example.com", "1700000000", "1700000100", "fix bug",
			"M", "src/main.go",
		},
	})

	recs, err := collect(t, stream, models.ValidationSoft)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, "abc123", rec.Commit.CommitOID)
	assert.Equal(t, "Jane Dev", rec.Commit.AuthorName)
	assert.False(t, rec.Commit.IsMerge)
	assert.Equal(t, 0, rec.Commit.ParentCount)
	require.Len(t, rec.Changes, 1)
	assert.Equal(t, models.Status("M"), rec.Changes[0].Status)
	assert.Equal(t, "src/main.go", rec.Changes[0].PathAtCommit)
}

func TestTokenize_MergeCommit(t *testing.T) {
	stream := buildStream([][]string{
		{
			Sentinel, "m1", "p1 p2", "Jane Dev", "jane@example.com", "1700000000", "1700000100", "merge",
		},
	})

	recs, err := collect(t, stream, models.ValidationSoft)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Commit.IsMerge)
	assert.Equal(t, 2, recs[0].Commit.ParentCount)
	assert.Empty(t, recs[0].Changes)
}

func TestTokenize_RenameCarriesTwoPaths(t *testing.T) {
	stream := buildStream([][]string{
		{
			Sentinel, "r1", "", "Jane Dev", "jane@example.com", "1700000000", "1700000100", "rename",
			"R095", "old/path.go", "new/path.go",
		},
	})

	recs, err := collect(t, stream, models.ValidationSoft)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Len(t, recs[0].Changes, 1)
	assert.Equal(t, "old/path.go", recs[0].Changes[0].OldPath)
	assert.Equal(t, "new/path.go", recs[0].Changes[0].PathAtCommit)
}

func TestTokenize_MultipleCommits(t *testing.T) {
	stream := buildStream([][]string{
		{
			Sentinel, "c1", "", "A", "a@example.com", "1700000000", "1700000100", "first",
			"A", "one.go",
		},
		{
			Sentinel, "c2", "c1", "B", "b@example.com", "1700000200", "1700000300", "second",
			"M", "one.go",
			"D", "two.go",
		},
	})

	recs, err := collect(t, stream, models.ValidationSoft)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "c1", recs[0].Commit.CommitOID)
	assert.Equal(t, "c2", recs[1].Commit.CommitOID)
	assert.Len(t, recs[1].Changes, 2)
}

func TestTokenize_SoftModeResyncsOnInvalidStatus(t *testing.T) {
	stream := buildStream([][]string{
		{
			Sentinel, "c1", "", "A", "a@example.com", "1700000000", "1700000100", "first",
			"ZZ", "junk-status-token",
			"M", "real.go",
		},
	})

	recs, err := collect(t, stream, models.ValidationSoft)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Len(t, recs[0].Changes, 1)
	assert.Equal(t, "real.go", recs[0].Changes[0].PathAtCommit)
	assert.NotEmpty(t, recs[0].Issues)
}

func TestTokenize_StrictModeAbortsOnInvalidStatus(t *testing.T) {
	stream := buildStream([][]string{
		{
			Sentinel, "c1", "", "A", "a@example.com", "1700000000", "1700000100", "first",
			"ZZ", "junk-status-token",
		},
	})

	_, err := collect(t, stream, models.ValidationStrict)
	require.Error(t, err)
}

func TestTokenize_StrictModeAbortsOnInvalidPath(t *testing.T) {
	stream := buildStream([][]string{
		{
			Sentinel, "c1", "", "A", "a@example.com", "1700000000", "1700000100", "first",
			"M", "M",
		},
	})

	_, err := collect(t, stream, models.ValidationStrict)
	require.Error(t, err)
}

func TestTokenize_SoftModeResyncsOnInvalidPath(t *testing.T) {
	stream := buildStream([][]string{
		{
			Sentinel, "c1", "", "A", "a@example.com", "1700000000", "1700000100", "first",
			"M", "M",
			"A", "real.go",
		},
	})

	recs, err := collect(t, stream, models.ValidationSoft)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Len(t, recs[0].Changes, 2)
	assert.Equal(t, "real.go", recs[0].Changes[1].PathAtCommit)
	assert.NotEmpty(t, recs[0].Issues)
}
