package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/menu-cli/internal/guard"
	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/internal/pipeline"
	"github.com/sells-group/menu-cli/internal/store"
)

var (
	discoverName       string
	discoverCity       string
	discoverAddress    string
	discoverWebsite    string
	discoverBusinessID string
	discoverSave       bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover and extract the menu for one business",
	Example: `  menu-cli discover --name "Joe's Diner" --city Austin --website joesdiner.com
  menu-cli discover --name "Joe's Diner" --city Austin --business-id joes-atx --save`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mode := "discover"
		if discoverSave {
			if discoverBusinessID == "" {
				return eris.New("--business-id is required with --save")
			}
			mode = "store"
		}
		if err := cfg.Validate(mode); err != nil {
			return err
		}

		desc := model.BusinessDescriptor{
			Name:    discoverName,
			City:    discoverCity,
			Address: discoverAddress,
			Website: discoverWebsite,
		}

		p, cleanup, err := pipeline.Build(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		doc, err := p.Run(ctx, desc)
		if err != nil {
			return eris.Wrap(err, "discover")
		}

		if !discoverSave {
			return printJSON(os.Stdout, doc)
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := st.SaveMenu(ctx, discoverBusinessID, desc, doc)
		if err != nil {
			return eris.Wrap(err, "discover: save")
		}
		zap.L().Info("menu saved",
			zap.String("business_id", discoverBusinessID),
			zap.Bool("stored", res.Stored),
			zap.String("reason", res.Decision.Reason),
		)

		return printJSON(os.Stdout, struct {
			Document *model.MenuDocument `json:"document"`
			Save     *store.SaveResult   `json:"save"`
		}{doc, res})
	},
}

// openStore opens and migrates the configured store.
func openStore(ctx context.Context) (store.Store, error) {
	g, err := guard.New(cfg.Guard)
	if err != nil {
		return nil, eris.Wrap(err, "guard config")
	}
	st, err := store.Open(ctx, cfg.Store, g)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "store migrate")
	}
	return st, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	discoverCmd.Flags().StringVar(&discoverName, "name", "", "business name (required)")
	discoverCmd.Flags().StringVar(&discoverCity, "city", "", "city")
	discoverCmd.Flags().StringVar(&discoverAddress, "address", "", "street address")
	discoverCmd.Flags().StringVar(&discoverWebsite, "website", "", "official website")
	discoverCmd.Flags().StringVar(&discoverBusinessID, "business-id", "", "business id used when saving")
	discoverCmd.Flags().BoolVar(&discoverSave, "save", false, "save the result through the regression guard")
	_ = discoverCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(discoverCmd)
}
