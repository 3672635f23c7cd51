package pipeline

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	cerrors "github.com/Punky2280/dat-bitch-cartrita-sub005/internal/errors"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/index"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/store"
)

// InconsistencyType categorizes detected cross-store issues.
type InconsistencyType int

const (
	// InconsistencyOrphanVector indicates a vector entry without a record.
	InconsistencyOrphanVector InconsistencyType = iota
	// InconsistencyOrphanLexical indicates a lexical entry without a record.
	InconsistencyOrphanLexical
	// InconsistencyMissingVector indicates a record missing from the vector index.
	InconsistencyMissingVector
	// InconsistencyMissingLexical indicates a record missing from the lexical index.
	InconsistencyMissingLexical
)

func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanVector:
		return "orphan_vector"
	case InconsistencyOrphanLexical:
		return "orphan_lexical"
	case InconsistencyMissingVector:
		return "missing_vector"
	case InconsistencyMissingLexical:
		return "missing_lexical"
	default:
		return "unknown"
	}
}

// Inconsistency is one detected cross-store issue.
type Inconsistency struct {
	Type     InconsistencyType
	RecordID string
	ModelTag string
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	ModelTag        string
	Checked         int
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// Consistent reports whether the check found no issues.
func (r *CheckResult) Consistent() bool {
	return len(r.Inconsistencies) == 0
}

// ConsistencyChecker validates one model tag's indexes against the record
// store, which is the source of truth. Orphans are index entries whose
// record is gone; missing entries are records absent from an index.
type ConsistencyChecker struct {
	records store.RecordStore
	vectors *index.Manager
	lexical LexicalProvider
}

// NewConsistencyChecker creates a checker over the given stores.
func NewConsistencyChecker(records store.RecordStore, vectors *index.Manager, lexical LexicalProvider) *ConsistencyChecker {
	return &ConsistencyChecker{
		records: records,
		vectors: vectors,
		lexical: lexical,
	}
}

// Check scans one model tag for inconsistencies. O(n) in the total number
// of entries across the record store and both indexes.
func (c *ConsistencyChecker) Check(ctx context.Context, modelTag string) (*CheckResult, error) {
	start := time.Now()
	var issues []Inconsistency

	recordIDs, err := c.records.AllIDs(ctx, modelTag)
	if err != nil {
		return nil, err
	}
	recordSet := make(map[string]bool, len(recordIDs))
	for _, id := range recordIDs {
		recordSet[id] = true
	}

	vectorIDs := c.vectors.AllIDs(modelTag)

	lexIdx, err := c.lexical.LexicalFor(modelTag)
	if err != nil {
		return nil, err
	}
	lexicalIDs, err := lexIdx.AllIDs()
	if err != nil {
		return nil, err
	}

	for _, id := range vectorIDs {
		if !recordSet[id] {
			issues = append(issues, Inconsistency{
				Type:     InconsistencyOrphanVector,
				RecordID: id,
				ModelTag: modelTag,
			})
		}
	}
	for _, id := range lexicalIDs {
		if !recordSet[id] {
			issues = append(issues, Inconsistency{
				Type:     InconsistencyOrphanLexical,
				RecordID: id,
				ModelTag: modelTag,
			})
		}
	}

	vectorSet := make(map[string]bool, len(vectorIDs))
	for _, id := range vectorIDs {
		vectorSet[id] = true
	}
	lexicalSet := make(map[string]bool, len(lexicalIDs))
	for _, id := range lexicalIDs {
		lexicalSet[id] = true
	}

	for _, id := range recordIDs {
		if !vectorSet[id] {
			issues = append(issues, Inconsistency{
				Type:     InconsistencyMissingVector,
				RecordID: id,
				ModelTag: modelTag,
			})
		}
		if !lexicalSet[id] {
			issues = append(issues, Inconsistency{
				Type:     InconsistencyMissingLexical,
				RecordID: id,
				ModelTag: modelTag,
			})
		}
	}

	return &CheckResult{
		ModelTag:        modelTag,
		Checked:         len(recordIDs),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Repair fixes detected inconsistencies. Orphans are removed from the
// indexes; missing entries are restored from the record store, which holds
// both the vector and the text. Restore failures are collected, not fatal,
// so one bad entry does not abort the rest of the repair.
func (c *ConsistencyChecker) Repair(ctx context.Context, issues []Inconsistency) error {
	var failed int

	for _, issue := range issues {
		var err error
		switch issue.Type {
		case InconsistencyOrphanVector:
			c.vectors.Remove(issue.ModelTag, issue.RecordID)
		case InconsistencyOrphanLexical:
			if lexIdx, provErr := c.lexical.LexicalFor(issue.ModelTag); provErr == nil {
				err = lexIdx.Remove(ctx, []string{issue.RecordID})
			} else {
				err = provErr
			}
		case InconsistencyMissingVector:
			err = c.restoreVector(ctx, issue)
		case InconsistencyMissingLexical:
			err = c.restoreLexical(ctx, issue)
		}
		if err != nil {
			failed++
			slog.Warn("repair_failed",
				slog.String("type", issue.Type.String()),
				slog.String("id", issue.RecordID),
				slog.String("model_tag", issue.ModelTag),
				slog.String("error", err.Error()))
		}
	}

	if failed > 0 {
		return cerrors.IndexInconsistency(
			"consistency repair left unresolved entries", nil).
			WithDetail("failed", strconv.Itoa(failed))
	}
	slog.Info("consistency_repair_complete", slog.Int("repaired", len(issues)))
	return nil
}

func (c *ConsistencyChecker) restoreVector(ctx context.Context, issue Inconsistency) error {
	rec, err := c.records.Get(ctx, issue.RecordID, issue.ModelTag)
	if err != nil {
		return err
	}
	if err := c.vectors.EnsureReady(issue.ModelTag); err != nil {
		return err
	}
	return c.vectors.Insert(issue.ModelTag, rec.ID, rec.Vector)
}

func (c *ConsistencyChecker) restoreLexical(ctx context.Context, issue Inconsistency) error {
	rec, err := c.records.Get(ctx, issue.RecordID, issue.ModelTag)
	if err != nil {
		return err
	}
	lexIdx, err := c.lexical.LexicalFor(issue.ModelTag)
	if err != nil {
		return err
	}
	return lexIdx.Insert(ctx, rec.ID, rec.Text)
}

// QuickCheck verifies only that counts match across stores for one model
// tag. Cheap enough to run at startup.
func (c *ConsistencyChecker) QuickCheck(ctx context.Context, modelTag string) (bool, error) {
	recordCount, err := c.records.Count(ctx, modelTag)
	if err != nil {
		return false, err
	}

	vectorCount := c.vectors.Count(modelTag)

	lexIdx, err := c.lexical.LexicalFor(modelTag)
	if err != nil {
		return false, err
	}
	lexicalCount := lexIdx.Stats().DocumentCount

	consistent := recordCount == vectorCount && recordCount == lexicalCount
	if !consistent {
		slog.Debug("index_counts_mismatch",
			slog.String("model_tag", modelTag),
			slog.Int("records", recordCount),
			slog.Int("vector", vectorCount),
			slog.Int("lexical", lexicalCount))
	}
	return consistent, nil
}
