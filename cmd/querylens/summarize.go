package main

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/guillermoBallester/querylens/internal/adapter/policy"
	"github.com/guillermoBallester/querylens/internal/core/domain"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// statementWidth truncates statements in the summary table.
const statementWidth = 60

func newSummarizeCmd() *cobra.Command {
	var groupBy, stackPolicyFile string
	cmd := &cobra.Command{
		Use:   "summarize FILE",
		Short: "Aggregate NDJSON query records and print a summary table",
		Long: `summarize reads one JSON query record per line (use - for stdin), groups them
the same way the server does and prints groups ranked by total time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := domain.GroupingMode(groupBy)
			if !mode.Valid() {
				return fmt.Errorf("invalid --group-by value %q", groupBy)
			}
			pol := policy.Default()
			if stackPolicyFile != "" {
				var err error
				if pol, err = policy.LoadFromFile(stackPolicyFile); err != nil {
					return fmt.Errorf("loading stack policy: %w", err)
				}
			}

			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			records, err := readRecords(in)
			if err != nil {
				return err
			}
			// No signer: summaries never hand out replay tokens.
			agg := domain.NewAggregator(nil, pol.Classifier(), pol.StackPolicy(), mode)
			result, err := agg.Aggregate(records)
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&groupBy, "group-by", string(domain.GroupByStatement), "Grouping key: statement or rendered_sql")
	cmd.Flags().StringVar(&stackPolicyFile, "stack-policy-file", "", "Path to stack policy YAML")
	return cmd
}

// readRecords decodes a stream of JSON records. Blank lines are ignored by
// the decoder.
func readRecords(r io.Reader) ([]domain.QueryRecord, error) {
	dec := json.NewDecoder(r)
	var records []domain.QueryRecord
	for {
		var rec domain.QueryRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w: %w", len(records)+1, domain.ErrMalformedRecord, err)
		}
		records = append(records, rec)
	}
}

func printSummary(w io.Writer, r *domain.AggregationResult) error {
	repeated := make(map[int]bool, len(r.RepeatedGroups))
	for _, id := range r.RepeatedGroups {
		repeated[id] = true
	}

	data := pterm.TableData{{"#", "Count", "Total ms", "Avg ms", "Repeated", "Statement"}}
	for _, g := range groupsByTotal(r.Groups) {
		mark := ""
		if repeated[g.ID] {
			mark = "yes"
		}
		data = append(data, []string{
			strconv.Itoa(g.ID),
			strconv.Itoa(g.Count()),
			formatMS(g.TotalDuration),
			formatMS(g.AverageDuration()),
			mark,
			truncate(oneLine(g.Statement), statementWidth),
		})
	}

	if err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithWriter(w).WithData(data).Render(); err != nil {
		return fmt.Errorf("rendering table: %w", err)
	}
	pterm.Fprintln(w, domain.Subtitle(r.TotalExecutionCount, true),
		"in", formatMS(r.TotalSQLTime), "ms;",
		formatMS(r.AvoidableTime), "ms avoidable;",
		formatMS(r.SQLTimeDuringRendering), "ms during rendering")
	return nil
}

// groupsByTotal orders groups by total duration, longest first, keeping ID
// order for ties.
func groupsByTotal(groups []domain.QueryGroup) []domain.QueryGroup {
	out := slices.Clone(groups)
	slices.SortStableFunc(out, func(a, b domain.QueryGroup) int {
		return cmp.Compare(b.TotalDuration, a.TotalDuration)
	})
	return out
}

func formatMS(d time.Duration) string {
	return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', 2, 64)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
