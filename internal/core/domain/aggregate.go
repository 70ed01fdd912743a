package domain

import (
	"fmt"
	"sort"
	"time"
)

// GroupingMode selects how records are collapsed into groups.
type GroupingMode string

const (
	// GroupByStatement keys groups on the raw statement text, so calls that
	// differ only in bound values share a group. This is the default.
	GroupByStatement GroupingMode = "statement"
	// GroupByRenderedSQL keys groups on the statement with its parameters
	// substituted, so only literally identical calls are counted as repeats.
	GroupByRenderedSQL GroupingMode = "rendered_sql"
)

// Valid reports whether m is a known mode. The zero value means GroupByStatement.
func (m GroupingMode) Valid() bool {
	switch m {
	case GroupByStatement, GroupByRenderedSQL, "":
		return true
	}
	return false
}

// Signer mints re-execution tokens. ok is false when the pair may not be signed.
type Signer interface {
	Sign(statement string, params Params) (token string, ok bool)
}

// QueryExecution is one run of a grouped statement.
type QueryExecution struct {
	SequenceNumber  int           `json:"sequence_number"`
	Duration        time.Duration `json:"duration"`
	Params          Params        `json:"params"`
	Context         string        `json:"context,omitempty"`
	Stack           []string      `json:"stack"`
	ShortenedStack  []string      `json:"shortened_stack"`
	DuringRendering bool          `json:"during_rendering"`
	Token           string        `json:"token,omitempty"`
}

// QueryGroup collects every execution sharing a group key.
type QueryGroup struct {
	ID            int              `json:"id"`
	Key           string           `json:"key"`
	Statement     string           `json:"statement"`
	SQL           string           `json:"sql"`
	TotalDuration time.Duration    `json:"total_duration"`
	Executions    []QueryExecution `json:"executions"`
}

// Count returns the number of executions in the group.
func (g QueryGroup) Count() int { return len(g.Executions) }

// AverageDuration returns the mean execution time, or zero for an empty group.
func (g QueryGroup) AverageDuration() time.Duration {
	if len(g.Executions) == 0 {
		return 0
	}
	return g.TotalDuration / time.Duration(len(g.Executions))
}

// AggregationResult is the summary of every query run during one request.
// Groups are ordered by ID; IDs are 1-based in first-seen order.
type AggregationResult struct {
	Groups                 []QueryGroup  `json:"groups"`
	TotalSQLTime           time.Duration `json:"total_sql_time"`
	SQLTimeDuringRendering time.Duration `json:"sql_time_during_rendering"`
	TotalExecutionCount    int           `json:"total_execution_count"`
	RepeatedGroups         []int         `json:"repeated_groups"`
	AvoidableTime          time.Duration `json:"avoidable_time"`
	QueriesByDuration      []int         `json:"queries_by_duration"`
}

// Group returns the group with the given id.
func (r *AggregationResult) Group(id int) (QueryGroup, bool) {
	if r == nil || id < 1 || id > len(r.Groups) {
		return QueryGroup{}, false
	}
	return r.Groups[id-1], true
}

// Execution returns the execution with the given sequence number.
func (r *AggregationResult) Execution(seq int) (QueryExecution, bool) {
	if r == nil {
		return QueryExecution{}, false
	}
	for _, g := range r.Groups {
		for _, e := range g.Executions {
			if e.SequenceNumber == seq {
				return e, true
			}
		}
	}
	return QueryExecution{}, false
}

// Clone returns a deep copy that shares no slices or maps with r.
func (r *AggregationResult) Clone() *AggregationResult {
	if r == nil {
		return nil
	}
	out := *r
	out.RepeatedGroups = cloneSlice(r.RepeatedGroups)
	out.QueriesByDuration = cloneSlice(r.QueriesByDuration)
	out.Groups = make([]QueryGroup, len(r.Groups))
	for i, g := range r.Groups {
		cg := g
		cg.Executions = make([]QueryExecution, len(g.Executions))
		for j, e := range g.Executions {
			ce := e
			ce.Params = e.Params.Clone()
			ce.Stack = cloneSlice(e.Stack)
			ce.ShortenedStack = cloneSlice(e.ShortenedStack)
			cg.Executions[j] = ce
		}
		out.Groups[i] = cg
	}
	return &out
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

// Aggregator groups the queries of one request and derives timing metrics.
// It holds no mutable state and is safe for concurrent use.
type Aggregator struct {
	signer     Signer
	classifier RenderClassifier
	stack      StackPolicy
	mode       GroupingMode
}

// NewAggregator builds an Aggregator. signer and classifier may be nil, in
// which case no tokens are minted and no time is attributed to rendering.
func NewAggregator(signer Signer, classifier RenderClassifier, stack StackPolicy, mode GroupingMode) *Aggregator {
	if mode == "" {
		mode = GroupByStatement
	}
	return &Aggregator{
		signer:     signer,
		classifier: classifier,
		stack:      stack,
		mode:       mode,
	}
}

// Mode returns the grouping mode in effect.
func (a *Aggregator) Mode() GroupingMode { return a.mode }

// Aggregate groups records by key and computes the request-level metrics.
// A malformed record aborts the whole call.
func (a *Aggregator) Aggregate(records []QueryRecord) (*AggregationResult, error) {
	result := &AggregationResult{
		Groups:            []QueryGroup{},
		RepeatedGroups:    []int{},
		QueriesByDuration: make([]int, 0, len(records)),
	}
	index := make(map[string]int, len(records)) // key -> position in result.Groups

	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}

		key := a.groupKey(rec)
		pos, ok := index[key]
		if !ok {
			pos = len(result.Groups)
			index[key] = pos
			result.Groups = append(result.Groups, QueryGroup{
				ID:        pos + 1,
				Key:       key,
				Statement: rec.Statement,
			})
		}

		exec := a.execution(i+1, rec)
		g := &result.Groups[pos]
		g.Executions = append(g.Executions, exec)
		g.TotalDuration += rec.Duration
		g.SQL = FormatSQL(rec.Statement, rec.Params)

		result.TotalSQLTime += rec.Duration
		result.TotalExecutionCount++
		if exec.DuringRendering {
			result.SQLTimeDuringRendering += rec.Duration
		}
		result.QueriesByDuration = append(result.QueriesByDuration, exec.SequenceNumber)
	}

	for _, g := range result.Groups {
		if g.Count() > 1 {
			result.RepeatedGroups = append(result.RepeatedGroups, g.ID)
			result.AvoidableTime += g.AverageDuration() * time.Duration(g.Count()-1)
		}
	}

	durations := make([]time.Duration, len(records))
	for i, rec := range records {
		durations[i] = rec.Duration
	}
	sort.SliceStable(result.QueriesByDuration, func(i, j int) bool {
		return durations[result.QueriesByDuration[i]-1] > durations[result.QueriesByDuration[j]-1]
	})

	return result, nil
}

func (a *Aggregator) groupKey(rec QueryRecord) string {
	if a.mode == GroupByRenderedSQL {
		return FormatSQL(rec.Statement, rec.Params)
	}
	return rec.Statement
}

func (a *Aggregator) execution(seq int, rec QueryRecord) QueryExecution {
	stack := a.stack.Format(rec.Stack)
	short := Shorten(stack)

	exec := QueryExecution{
		SequenceNumber: seq,
		Duration:       rec.Duration,
		Params:         rec.Params.Clone(),
		Context:        rec.Context,
		Stack:          stack,
		ShortenedStack: short,
	}
	if a.classifier != nil {
		exec.DuringRendering = a.classifier.IsRendering(short)
	}
	if a.signer != nil {
		if token, ok := a.signer.Sign(rec.Statement, rec.Params); ok {
			exec.Token = token
		}
	}
	return exec
}
