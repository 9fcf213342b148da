package cli

import (
	"github.com/spf13/cobra"

	"github.com/turtacn/MetaNet-Generalizer/internal/application/generalize"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/search/opensearch"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded generalization runs",
	}

	var (
		networkID string
		limit     int
		offset    int
		format    string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			if limit <= 0 || limit > maxPageSize {
				return errors.Newf(errors.ErrCodeBadRequest, "limit must be within [1, %d]", maxPageSize)
			}
			if offset < 0 {
				return errors.New(errors.ErrCodeBadRequest, "offset must not be negative")
			}
			st, err := stackFromCmd(cmd)
			if err != nil {
				return err
			}
			defer st.Close()
			if st.Runs == nil {
				return errors.New(errors.ErrCodeFeatureDisabled, "run store is not configured").WithDetail("set database.enabled")
			}

			runs, total, err := st.Runs.List(cmd.Context(), networkID, limit, offset)
			if err != nil {
				return err
			}
			return writeRuns(cmd.OutOrStdout(), format, &generalize.ListResult{
				Runs: runs, Total: total, Limit: limit, Offset: offset,
			})
		},
	}
	list.Flags().StringVar(&networkID, "network-id", "", "only runs of this network")
	list.Flags().IntVar(&limit, "limit", defaultPageSize, "page size")
	list.Flags().IntVar(&offset, "offset", 0, "page offset")
	list.Flags().StringVarP(&format, "output", "o", formatTable, "output format: json|yaml|table")

	var showFormat string
	show := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show one run and its archived result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(showFormat); err != nil {
				return err
			}
			st, err := stackFromCmd(cmd)
			if err != nil {
				return err
			}
			defer st.Close()
			if st.Runs == nil {
				return errors.New(errors.ErrCodeFeatureDisabled, "run store is not configured").WithDetail("set database.enabled")
			}

			r, err := st.Runs.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if r.Result == nil && r.ArtifactKey != "" && st.Artifacts != nil {
				res, err := st.Artifacts.Get(cmd.Context(), r.ArtifactKey)
				if err != nil {
					st.Logger.Warn("Failed to load run artifact", logging.String("key", r.ArtifactKey), logging.Err(err))
				} else {
					r.Result = res
				}
			}
			return writeRun(cmd.OutOrStdout(), showFormat, r)
		},
	}
	show.Flags().StringVarP(&showFormat, "output", "o", formatTable, "output format: json|yaml|table")

	cmd.AddCommand(list, show)
	return cmd
}

func newSearchCmd() *cobra.Command {
	var (
		q      opensearch.SearchQuery
		format string
	)
	cmd := &cobra.Command{
		Use:   "search [TEXT]",
		Short: "Search indexed species groups",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			if len(args) == 1 {
				q.Text = args[0]
			}
			st, err := stackFromCmd(cmd)
			if err != nil {
				return err
			}
			defer st.Close()
			if st.Index == nil {
				return errors.New(errors.ErrCodeFeatureDisabled, "group index is not configured").WithDetail("set opensearch.enabled")
			}

			res, err := st.Index.Search(cmd.Context(), q)
			if err != nil {
				return err
			}
			return writeSearch(cmd.OutOrStdout(), format, res)
		},
	}
	cmd.Flags().StringVar(&q.NetworkID, "network-id", "", "only groups of this network")
	cmd.Flags().StringVar(&q.TermID, "term-id", "", "only groups represented by this term")
	cmd.Flags().IntVar(&q.From, "from", 0, "result offset")
	cmd.Flags().IntVar(&q.Size, "size", defaultPageSize, "result count")
	cmd.Flags().StringVarP(&format, "output", "o", formatTable, "output format: json|yaml|table")
	return cmd
}

// stackFromCmd connects the enabled adapters without loading an ontology.
func stackFromCmd(cmd *cobra.Command) (*Stack, error) {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return nil, err
	}
	return NewStack(cmd.Context(), cliCtx.Config, cliCtx.Logger, StackOptions{})
}
