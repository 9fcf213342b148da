package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/turtacn/MetaNet-Generalizer/internal/application/generalize"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/run"
	"github.com/turtacn/MetaNet-Generalizer/internal/generalization"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/search/opensearch"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

const (
	formatJSON  = "json"
	formatYAML  = "yaml"
	formatTable = "table"
)

func validateFormat(format string) error {
	switch format {
	case formatJSON, formatYAML, formatTable:
		return nil
	}
	return errors.Newf(errors.ErrCodeBadRequest, "invalid output format %q", format).
		WithDetail("must be json, yaml or table")
}

// writeStructured encodes v as JSON or YAML. It reports false for the table
// format, which every caller renders itself.
func writeStructured(w io.Writer, format string, v interface{}) (bool, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	t.SetBorder(false)
	return t
}

func colorStatus(s run.Status) string {
	switch s {
	case run.StatusSucceeded:
		return color.GreenString(string(s))
	case run.StatusFailed:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func joinMembers(members []string, limit int) string {
	if len(members) <= limit {
		return strings.Join(members, ", ")
	}
	return strings.Join(members[:limit], ", ") + fmt.Sprintf(", +%d", len(members)-limit)
}

func sortedKeys(m map[string]generalization.SpeciesCluster) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeOutput(w io.Writer, format string, out *generalize.Output) error {
	if done, err := writeStructured(w, format, out); done {
		return err
	}
	writeRunSummary(w, out.Run)
	if out.View != nil {
		fmt.Fprintln(w)
		writeView(w, out.View)
	}
	return nil
}

func writeRunSummary(w io.Writer, r *run.Run) {
	if r == nil {
		return
	}
	fmt.Fprintf(w, "Run %s  %s  (%s)\n", color.CyanString(r.ID), colorStatus(r.Status), r.Source)
	fmt.Fprintf(w, "  network:  %s\n", r.NetworkID)
	fmt.Fprintf(w, "  digest:   %s\n", r.Digest)
	if r.Error != "" {
		fmt.Fprintf(w, "  error:    %s\n", color.RedString(r.Error))
	}
	st := r.Stats
	fmt.Fprintf(w, "  clusters: %d species, %d reactions (%d generalized), %d placeholders\n",
		st.SpeciesClusters, st.ReactionClusters, st.GeneralizedReactions, st.Placeholders)
	fmt.Fprintf(w, "  elapsed:  %s\n", st.Elapsed)
}

func writeView(w io.Writer, v *generalization.View) {
	t := newTable(w, "Group", "Name", "Term", "Compartment", "Members")
	for _, g := range v.SpeciesGroups {
		t.Append([]string{g.ID, g.Name, g.TermID, g.Compartment, joinMembers(g.Members, 6)})
	}
	if u := v.Ubiquitous; u != nil {
		t.Append([]string{u.ID, color.MagentaString(u.Name), "", "", joinMembers(u.Members, 6)})
	}
	t.Render()

	fmt.Fprintln(w)
	t = newTable(w, "Group", "Name", "Reversible", "Members")
	for _, g := range v.ReactionGroups {
		t.Append([]string{g.ID, g.Name, strconv.FormatBool(g.Reversible), joinMembers(g.Members, 6)})
	}
	t.Render()
}

func writeRuns(w io.Writer, format string, page *generalize.ListResult) error {
	if done, err := writeStructured(w, format, page); done {
		return err
	}
	t := newTable(w, "ID", "Network", "Status", "Source", "Species clusters", "Reaction clusters", "Finished")
	for _, r := range page.Runs {
		t.Append([]string{
			r.ID,
			r.NetworkID,
			colorStatus(r.Status),
			string(r.Source),
			strconv.Itoa(r.Stats.SpeciesClusters),
			strconv.Itoa(r.Stats.ReactionClusters),
			formatTime(r.FinishedAt),
		})
	}
	t.Render()
	fmt.Fprintf(w, "\n%d of %d runs (offset %d)\n", len(page.Runs), page.Total, page.Offset)
	return nil
}

func writeRun(w io.Writer, format string, r *run.Run) error {
	if done, err := writeStructured(w, format, r); done {
		return err
	}
	writeRunSummary(w, r)
	if r.Result == nil {
		return nil
	}
	fmt.Fprintln(w)
	t := newTable(w, "Species", "Compartment", "Term")
	for _, id := range sortedKeys(r.Result.Species) {
		c := r.Result.Species[id]
		t.Append([]string{id, c.Compartment, c.TermID})
	}
	t.Render()
	return nil
}

func writeSearch(w io.Writer, format string, res *opensearch.SearchResult) error {
	if done, err := writeStructured(w, format, res); done {
		return err
	}
	t := newTable(w, "Run", "Network", "Group", "Name", "Term", "Members")
	for _, h := range res.Hits {
		name := h.Name
		if h.Ubiquitous {
			name = color.MagentaString(name)
		}
		t.Append([]string{h.RunID, h.NetworkID, h.GroupID, name, h.TermID, strconv.Itoa(h.MemberCount)})
	}
	t.Render()
	fmt.Fprintf(w, "\n%d of %d groups\n", len(res.Hits), res.Total)
	return nil
}
