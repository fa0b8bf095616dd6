package changeset_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coderisk/coupler/internal/changeset"
	"github.com/coderisk/coupler/internal/models"
)

func opts() models.AnalysisOptions {
	o := models.DefaultAnalysisOptions()
	o.MaxChangesetSize = 10
	return o
}

func TestByCommit_DropsSingleFileAndOversizedCommits(t *testing.T) {
	commits := []changeset.CommitChangeset{
		{CommitOID: "c1", CommitterTS: 100, EntityIDs: []int64{1}},          // single file: dropped
		{CommitOID: "c2", CommitterTS: 200, EntityIDs: []int64{1, 2}},       // kept
		{CommitOID: "c3", CommitterTS: 300, EntityIDs: make11IDs()},         // oversized: dropped
	}
	txns, err := changeset.Group(commits, opts(), time.Unix(1000, 0))
	require.NoError(t, err)
	require.Len(t, txns, 1)
	require.Equal(t, int64(200), txns[0].TS)
	require.Equal(t, 1.0, txns[0].Weight)
}

func make11IDs() []int64 {
	ids := make([]int64, 11)
	for i := range ids {
		ids[i] = int64(i)
	}
	return ids
}

func TestByAuthorTime_MergesWithinWindow(t *testing.T) {
	o := opts()
	o.ChangesetMode = models.ByAuthorTime
	o.AuthorTimeWindowHours = 1 // 3600s

	commits := []changeset.CommitChangeset{
		{CommitOID: "c1", AuthorEmail: "a@x.com", CommitterTS: 0, EntityIDs: []int64{1}},
		{CommitOID: "c2", AuthorEmail: "a@x.com", CommitterTS: 1000, EntityIDs: []int64{2}},
		{CommitOID: "c3", AuthorEmail: "a@x.com", CommitterTS: 10000, EntityIDs: []int64{3}}, // outside window
	}
	txns, err := changeset.Group(commits, o, time.Unix(100000, 0))
	require.NoError(t, err)
	require.Len(t, txns, 2)
	require.Len(t, txns[0].Files, 2)
	require.Len(t, txns[1].Files, 1)
}

func TestByAuthorTime_SplitsByAuthor(t *testing.T) {
	o := opts()
	o.ChangesetMode = models.ByAuthorTime

	commits := []changeset.CommitChangeset{
		{CommitOID: "c1", AuthorEmail: "a@x.com", CommitterTS: 0, EntityIDs: []int64{1}},
		{CommitOID: "c2", AuthorEmail: "b@x.com", CommitterTS: 10, EntityIDs: []int64{2}},
	}
	txns, err := changeset.Group(commits, o, time.Unix(100000, 0))
	require.NoError(t, err)
	require.Len(t, txns, 2)
}

func TestByTicketID_GroupsBySubjectToken(t *testing.T) {
	o := opts()
	o.ChangesetMode = models.ByTicketID
	o.TicketIDPattern = `(JIRA-\d+)`

	commits := []changeset.CommitChangeset{
		{CommitOID: "c1", Subject: "fix JIRA-42 bug", CommitterTS: 100, EntityIDs: []int64{1}},
		{CommitOID: "c2", Subject: "JIRA-42 followup", CommitterTS: 200, EntityIDs: []int64{2}},
		{CommitOID: "c3", Subject: "unrelated change", CommitterTS: 300, EntityIDs: []int64{3, 4}},
	}
	txns, err := changeset.Group(commits, o, time.Unix(100000, 0))
	require.NoError(t, err)
	require.Len(t, txns, 2) // one JIRA-42 group, one fallback by_commit txn

	var ticketTxn, fallbackTxn changeset.Transaction
	for _, tx := range txns {
		if len(tx.Files) == 2 && tx.TS == 100 {
			ticketTxn = tx
		} else {
			fallbackTxn = tx
		}
	}
	require.Len(t, ticketTxn.Files, 2)
	require.Len(t, fallbackTxn.Files, 2)
}

func TestDecay_HalvesWeightAtHalfLife(t *testing.T) {
	o := opts()
	halfLife := 10
	o.DecayHalfLifeDays = &halfLife

	commits := []changeset.CommitChangeset{
		{CommitOID: "c1", CommitterTS: 0, EntityIDs: []int64{1, 2}},
	}
	now := time.Unix(10*86400, 0)
	txns, err := changeset.Group(commits, o, now)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	require.InDelta(t, 0.5, txns[0].Weight, 1e-9)
}
