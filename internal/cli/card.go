package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
	"iq-card-service/internal/avatar"
	"iq-card-service/internal/card"
	"iq-card-service/internal/config"
	"iq-card-service/internal/domain"
	"iq-card-service/internal/scoring"
)

type cardFlags struct {
	brand     string
	handle    string
	name      string
	score     int
	questions int
	out       string
}

// NewCardCmd renders a share card offline, without running a quiz.
func NewCardCmd(configPath *string) *cobra.Command {
	var f cardFlags
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Export a share card PNG for a given score",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCard(cmd.Context(), *configPath, f)
		},
	}
	cmd.Flags().StringVar(&f.brand, "brand", "", "brand id (defaults to the first configured brand)")
	cmd.Flags().StringVar(&f.handle, "handle", "", "X handle for the avatar")
	cmd.Flags().StringVar(&f.name, "name", "", "display name")
	cmd.Flags().IntVar(&f.score, "score", 0, "points scored")
	cmd.Flags().IntVar(&f.questions, "questions", 10, "number of questions in the run")
	cmd.Flags().StringVar(&f.out, "out", ".", "output directory")
	return cmd
}

func runCard(ctx context.Context, configPath string, f cardFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	var brandCfg *config.Brand
	for i := range cfg.Brands {
		if f.brand == "" || cfg.Brands[i].ID == f.brand {
			brandCfg = &cfg.Brands[i]
			break
		}
	}
	if brandCfg == nil {
		return fmt.Errorf("%w: %s", domain.ErrBrandNotFound, f.brand)
	}

	dl, err := exportCard(ctx, cfg, *brandCfg, f)
	if err != nil {
		return err
	}
	path, err := dl.Save(f.out)
	if err != nil {
		return err
	}
	log.Printf("card written to %s", path)
	return nil
}

func exportCard(ctx context.Context, cfg config.Config, b config.Brand, f cardFlags) (card.Download, error) {
	brand := b.Domain()
	resolver := avatar.NewResolver(cfg.AvatarConfig(b))
	profile := domain.Profile{Handle: f.handle, DisplayName: f.name}.Normalize()
	state := resolver.NewState()
	state.SetProfile(profile.Handle, profile.DisplayName)

	maxScore := scoring.MaxScore(f.questions)
	score := f.score
	if score > maxScore {
		score = maxScore
	}
	result := domain.Result{
		Score:    score,
		MaxScore: maxScore,
		IQ:       scoring.IQ(score, maxScore),
		Badge:    scoring.Badge(score, maxScore, brand.Badges),
	}

	client := avatar.NewHTTPClient(config.TTLDuration(cfg.Avatar.Timeout, 5*time.Second))
	exporter := card.NewExporter(card.NewPNGRenderer(), avatar.NewFetcher(client, nil), exportOptions(cfg))
	c := card.Card{
		Brand:  brand,
		Label:  profile.Label(resolver.Placeholder()),
		Result: result,
	}
	return exporter.Export(ctx, c, resolver, profile, state)
}
