package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/montanaflynn/stats"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/signalnine/hpobench/internal/result"
)

type TargetSummary struct {
	Scenario string  `json:"scenario"`
	Instance string  `json:"instance"`
	Count    int     `json:"count"`
	Failed   int     `json:"failed"`
	Best     float64 `json:"best"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	StdDev   float64 `json:"stddev"`
}

// Generate reads the evaluations of a run and writes one summary row per
// (scenario, instance).
func Generate(runDir, format string, w io.Writer) error {
	evals, err := collectEvaluations(runDir)
	if err != nil {
		return err
	}
	metas, err := collectMetas(runDir)
	if err != nil {
		return err
	}
	summaries, err := aggregate(evals, metas)
	if err != nil {
		return err
	}

	switch format {
	case "markdown":
		return writeMarkdown(summaries, w)
	case "json":
		return writeJSON(summaries, w)
	default:
		return writeTable(summaries, w)
	}
}

func collectEvaluations(runDir string) ([]*result.Evaluation, error) {
	path := filepath.Join(runDir, result.DatabaseFile)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	store, err := result.OpenStore(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.List(result.Filter{})
}

func collectMetas(runDir string) ([]*result.SweepMeta, error) {
	var metas []*result.SweepMeta
	err := filepath.Walk(runDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Name() == result.MetaFile {
			meta, err := result.ReadSweepMeta(path)
			if err != nil {
				log.Warnf("Skipping %s: %v", path, err)
				return nil
			}
			metas = append(metas, meta)
		}
		return nil
	})
	return metas, err
}

type targetKey struct{ scenario, instance string }

func aggregate(evals []*result.Evaluation, metas []*result.SweepMeta) ([]TargetSummary, error) {
	values := lo.GroupBy(evals, func(e *result.Evaluation) targetKey {
		return targetKey{e.Scenario, e.Instance}
	})
	failed := map[targetKey]int{}
	for _, m := range metas {
		k := targetKey{m.Scenario, m.Instance}
		failed[k] += m.Failed
		if _, ok := values[k]; !ok {
			values[k] = nil
		}
	}

	var summaries []TargetSummary
	for k, group := range values {
		s := TargetSummary{Scenario: k.scenario, Instance: k.instance, Count: len(group), Failed: failed[k]}
		if len(group) > 0 {
			data := stats.Float64Data(lo.Map(group, func(e *result.Evaluation, _ int) float64 { return e.FunctionValue }))
			var err error
			if s.Best, err = data.Min(); err != nil {
				return nil, fmt.Errorf("summarizing %s/%s: %w", k.scenario, k.instance, err)
			}
			if s.Mean, err = data.Mean(); err != nil {
				return nil, fmt.Errorf("summarizing %s/%s: %w", k.scenario, k.instance, err)
			}
			if s.Median, err = data.Median(); err != nil {
				return nil, fmt.Errorf("summarizing %s/%s: %w", k.scenario, k.instance, err)
			}
			if s.StdDev, err = data.StandardDeviation(); err != nil {
				return nil, fmt.Errorf("summarizing %s/%s: %w", k.scenario, k.instance, err)
			}
		}
		summaries = append(summaries, s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Scenario != summaries[j].Scenario {
			return summaries[i].Scenario < summaries[j].Scenario
		}
		return summaries[i].Instance < summaries[j].Instance
	})
	return summaries, nil
}

func writeTable(summaries []TargetSummary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tINSTANCE\tCOUNT\tFAILED\tBEST\tMEAN\tMEDIAN\tSTDDEV")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.4f\t%.4f\t%.4f\t%.4f\n",
			s.Scenario, s.Instance, s.Count, s.Failed, s.Best, s.Mean, s.Median, s.StdDev)
	}
	return tw.Flush()
}

func writeMarkdown(summaries []TargetSummary, w io.Writer) error {
	fmt.Fprintln(w, "| Scenario | Instance | Count | Failed | Best | Mean | Median | StdDev |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|---|")
	for _, s := range summaries {
		fmt.Fprintf(w, "| %s | %s | %d | %d | %.4f | %.4f | %.4f | %.4f |\n",
			s.Scenario, s.Instance, s.Count, s.Failed, s.Best, s.Mean, s.Median, s.StdDev)
	}
	return nil
}

func writeJSON(summaries []TargetSummary, w io.Writer) error {
	if summaries == nil {
		summaries = []TargetSummary{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}
