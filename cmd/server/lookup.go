package main

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/rxscout/backend/internal/app"
	"github.com/rxscout/backend/internal/domain"
	"github.com/rxscout/backend/internal/usecase"
)

var (
	lookupLat      float64
	lookupLon      float64
	lookupCompare  []string
	lookupGenerics bool
	lookupInfo     bool
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <query>",
	Short: "Run one query through the pipeline and print the JSON payload",
	Example: `  rxscout lookup "ibuprofen near me" --lat 32.7157 --lon -117.1611
  rxscout lookup "metformin 500mg" --compare retail,online
  rxscout lookup lipitor --generics`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := app.New(cfg, app.Options{})
		if err != nil {
			return eris.Wrap(err, "init pipeline")
		}
		defer env.Close(context.Background())

		var origin *domain.Coordinates
		if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
			origin = &domain.Coordinates{Lat: lookupLat, Lon: lookupLon}
		}

		req := lookupRequest{
			query:    args[0],
			origin:   origin,
			compare:  cmd.Flags().Changed("compare"),
			types:    lookupCompare,
			generics: lookupGenerics,
			info:     lookupInfo,
		}
		return runLookup(cmd.Context(), env.Service, req, cmd.OutOrStdout())
	},
}

type lookupRequest struct {
	query    string
	origin   *domain.Coordinates
	compare  bool
	types    []string
	generics bool
	info     bool
}

func runLookup(ctx context.Context, svc *usecase.PharmacyService, req lookupRequest, out io.Writer) error {
	var (
		payload interface{}
		err     error
	)
	switch {
	case req.generics:
		payload, err = svc.FindGenericAlternatives(ctx, req.query)
	case req.info:
		payload, err = svc.GetMedicationInfo(ctx, req.query)
	case req.compare:
		types, perr := parseTypes(req.types)
		if perr != nil {
			return perr
		}
		payload, err = svc.ComparePrices(ctx, req.query, types)
	default:
		payload, err = svc.FindPharmacies(ctx, req.query, req.origin)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(payload), "encode result")
}

func parseTypes(raw []string) ([]domain.PharmacyType, error) {
	types := make([]domain.PharmacyType, 0, len(raw))
	for _, r := range raw {
		t, ok := domain.ParsePharmacyType(strings.ToLower(strings.TrimSpace(r)))
		if !ok || t == domain.PharmacyUnknown {
			return nil, eris.Errorf("unknown pharmacy type %q (want retail, online or discount)", r)
		}
		types = append(types, t)
	}
	return types, nil
}

func init() {
	lookupCmd.Flags().Float64Var(&lookupLat, "lat", 0, "caller latitude for near-me queries")
	lookupCmd.Flags().Float64Var(&lookupLon, "lon", 0, "caller longitude for near-me queries")
	lookupCmd.Flags().StringSliceVar(&lookupCompare, "compare", nil, "compare prices across pharmacy types (retail,online,discount)")
	lookupCmd.Flags().BoolVar(&lookupGenerics, "generics", false, "list generic alternatives for a brand name")
	lookupCmd.Flags().BoolVar(&lookupInfo, "info", false, "summarise the medication")
	lookupCmd.MarkFlagsMutuallyExclusive("compare", "generics", "info")
	rootCmd.AddCommand(lookupCmd)
}
