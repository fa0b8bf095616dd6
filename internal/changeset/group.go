// Package changeset implements the changeset grouper (C6): folding resolved
// per-commit changes into the transactions the edge builder (C7) counts
// co-occurrence over, under one of three policies. The package is a small
// set of pure, composable functions in the teacher's internal/clqs style
// (internal/clqs/component1.go etc.) rather than a single monolithic
// grouping method — each policy is its own function, and weighting is a
// separate pass applied uniformly afterward.
package changeset

import (
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/coderisk/coupler/internal/models"
)

// CommitChangeset is one commit's resolved, filtered set of touched
// entities — the extractor's (C5) output, already past path/extension/date
// filters and entity resolution, ready for C6 to fold into transactions.
type CommitChangeset struct {
	CommitOID   string
	AuthorEmail string
	CommitterTS int64
	Subject     string
	EntityIDs   []int64
}

// Transaction is one grouped unit of co-change: a set of entities considered
// modified together, with a weight (possibly decayed) and a representative
// timestamp, per spec.md §4.6.
type Transaction struct {
	Files map[int64]struct{}
	Weight float64
	TS     int64
}

// fileCount returns the number of distinct entities in t.
func (t Transaction) fileCount() int { return len(t.Files) }

// Group folds commits into transactions per opts.ChangesetMode, then applies
// time-decay weighting if opts.DecayHalfLifeDays is set. now is the
// reference instant for decay — passed explicitly rather than read from
// time.Now() so the function stays pure and deterministic for a fixed input,
// per spec.md §4.6's contract.
func Group(commits []CommitChangeset, opts models.AnalysisOptions, now time.Time) ([]Transaction, error) {
	var txns []Transaction
	var err error

	switch opts.ChangesetMode {
	case models.ByAuthorTime:
		txns = byAuthorTime(commits, opts)
	case models.ByTicketID:
		txns, err = byTicketID(commits, opts)
		if err != nil {
			return nil, err
		}
	default:
		txns = byCommit(commits, opts)
	}

	applyDecay(txns, opts, now)
	return txns, nil
}

// byCommit implements the default policy: one transaction per commit,
// dropping commits whose file count is below 2 or above max_changeset_size.
func byCommit(commits []CommitChangeset, opts models.AnalysisOptions) []Transaction {
	out := make([]Transaction, 0, len(commits))
	for _, c := range commits {
		if len(c.EntityIDs) < 2 || len(c.EntityIDs) > opts.MaxChangesetSize {
			continue
		}
		out = append(out, Transaction{
			Files:  toSet(c.EntityIDs),
			Weight: 1.0,
			TS:     c.CommitterTS,
		})
	}
	return out
}

// byAuthorTime accumulates consecutive (in committer_ts order) commits by
// the same author into one transaction while each new commit's timestamp
// stays within author_time_window_hours of the transaction's start,
// dropping transactions wider than max_logical_changeset_size.
func byAuthorTime(commits []CommitChangeset, opts models.AnalysisOptions) []Transaction {
	sorted := make([]CommitChangeset, len(commits))
	copy(sorted, commits)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CommitterTS < sorted[j].CommitterTS })

	windowSecs := int64(opts.AuthorTimeWindowHours) * 3600
	var out []Transaction

	var curAuthor string
	var curStart int64
	var curFiles map[int64]struct{}
	flush := func() {
		if curFiles == nil {
			return
		}
		if len(curFiles) <= opts.MaxLogicalChangesetSize {
			out = append(out, Transaction{Files: curFiles, Weight: 1.0, TS: curStart})
		}
		curFiles = nil
	}

	for _, c := range sorted {
		if curFiles != nil && c.AuthorEmail == curAuthor && c.CommitterTS <= curStart+windowSecs {
			for _, id := range c.EntityIDs {
				curFiles[id] = struct{}{}
			}
			continue
		}
		flush()
		curAuthor = c.AuthorEmail
		curStart = c.CommitterTS
		curFiles = toSet(c.EntityIDs)
	}
	flush()
	return out
}

// byTicketID groups commits whose subject matches opts.TicketIDPattern by
// their first capture group (the ticket token), falling back to per-commit
// grouping (as byCommit would) for commits whose subject doesn't match.
func byTicketID(commits []CommitChangeset, opts models.AnalysisOptions) ([]Transaction, error) {
	re, err := regexp.Compile(opts.TicketIDPattern)
	if err != nil {
		return nil, err
	}

	byTicket := map[string][]CommitChangeset{}
	var unmatched []CommitChangeset
	var order []string
	for _, c := range commits {
		m := re.FindStringSubmatch(c.Subject)
		if len(m) < 2 || m[1] == "" {
			unmatched = append(unmatched, c)
			continue
		}
		ticket := m[1]
		if _, seen := byTicket[ticket]; !seen {
			order = append(order, ticket)
		}
		byTicket[ticket] = append(byTicket[ticket], c)
	}

	var out []Transaction
	for _, ticket := range order {
		group := byTicket[ticket]
		files := map[int64]struct{}{}
		var earliest int64 = math.MaxInt64
		for _, c := range group {
			for _, id := range c.EntityIDs {
				files[id] = struct{}{}
			}
			if c.CommitterTS < earliest {
				earliest = c.CommitterTS
			}
		}
		if len(files) > 1 && len(files) <= opts.MaxLogicalChangesetSize {
			out = append(out, Transaction{Files: files, Weight: 1.0, TS: earliest})
		}
	}
	out = append(out, byCommit(unmatched, opts)...)
	return out, nil
}

// applyDecay rescales each transaction's weight by 2^(-age_days/D) in place
// when opts.DecayHalfLifeDays is set, per spec.md §4.6.
func applyDecay(txns []Transaction, opts models.AnalysisOptions, now time.Time) {
	if opts.DecayHalfLifeDays == nil || *opts.DecayHalfLifeDays <= 0 {
		return
	}
	halfLife := float64(*opts.DecayHalfLifeDays)
	nowTS := now.Unix()
	for i := range txns {
		ageDays := float64(nowTS-txns[i].TS) / 86400.0
		if ageDays < 0 {
			ageDays = 0
		}
		txns[i].Weight *= math.Pow(2, -ageDays/halfLife)
	}
}

func toSet(ids []int64) map[int64]struct{} {
	s := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}
