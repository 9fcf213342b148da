package cli

import (
	"bytes"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/MetaNet-Generalizer/internal/application/generalize"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/network"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

type generalizeOptions struct {
	networkPath   string
	ontologyPath  string
	format        string
	outPath       string
	persist       bool
	refresh       bool
	inferUnmapped bool
	workers       int
}

func newGeneralizeCmd() *cobra.Command {
	opts := &generalizeOptions{}

	cmd := &cobra.Command{
		Use:   "generalize",
		Short: "Generalize one network and print the generalized view",
		Example: "  metanet generalize --network model.json --ontology chebi.obo\n" +
			"  cat model.json | metanet generalize --network - -o yaml --out view.yaml",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGeneralize(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.networkPath, "network", "n", "", `network JSON file, "-" for stdin (required)`)
	f.StringVar(&opts.ontologyPath, "ontology", "", "OBO ontology file (default: engine.ontology_path)")
	f.StringVarP(&opts.format, "output", "o", formatTable, "output format: json|yaml|table")
	f.StringVar(&opts.outPath, "out", "", "write the output to this file instead of stdout")
	f.BoolVar(&opts.persist, "persist", false, "record the run in the run store and fan out to the enabled sinks")
	f.BoolVar(&opts.refresh, "refresh", false, "bypass the result cache")
	f.BoolVar(&opts.inferUnmapped, "infer-unmapped", false, "infer clusters for species without an ontology term")
	f.IntVar(&opts.workers, "workers", 0, "engine fan-out (default: engine.workers)")
	_ = cmd.MarkFlagRequired("network")
	return cmd
}

func runGeneralize(cmd *cobra.Command, opts *generalizeOptions) error {
	if err := validateFormat(opts.format); err != nil {
		return err
	}
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	cfg := *cliCtx.Config
	if cmd.Flags().Changed("infer-unmapped") {
		cfg.Engine.InferUnmapped = opts.inferUnmapped
	}
	if opts.workers > 0 {
		cfg.Engine.Workers = opts.workers
	}
	logger := cliCtx.Logger

	var net *network.Network
	if opts.networkPath == "-" {
		net, err = network.Decode(cmd.InOrStdin())
	} else {
		net, err = network.LoadFile(opts.networkPath)
	}
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := NewStack(ctx, &cfg, logger, StackOptions{OntologyPath: opts.ontologyPath, WithService: true})
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.persist && st.Runs == nil {
		logger.Warn("Run store disabled, --persist records nothing")
	}

	out, err := st.Service.Generalize(ctx, &generalize.GeneralizeInput{
		Network: net,
		Persist: opts.persist,
		Refresh: opts.refresh,
	})
	if err != nil {
		return err
	}

	if path := cfg.Metrics.TextfilePath; path != "" {
		if werr := st.Collector.WriteTextfile(path); werr != nil {
			logger.Warn("Failed to write metrics textfile", logging.String("path", path), logging.Err(werr))
		}
	}

	if opts.outPath == "" {
		return writeOutput(cmd.OutOrStdout(), opts.format, out)
	}
	var buf bytes.Buffer
	if err := writeOutput(&buf, opts.format, out); err != nil {
		return err
	}
	if err := os.WriteFile(opts.outPath, buf.Bytes(), 0o644); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to write output file").WithDetail(opts.outPath)
	}
	logger.Info("Output written", logging.String("path", opts.outPath), logging.String("run_id", out.Run.ID))
	return nil
}
