package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/feedopt/feedopt/internal/server"
	"github.com/feedopt/feedopt/internal/utils"
	"github.com/feedopt/feedopt/pkg/storage"
)

// lockedResults writes the last-optimization slot under the same lock the
// CLI uses.
type lockedResults struct {
	*storage.DB
	path string
}

func (r lockedResults) SaveLastResult(ctx context.Context, raw []byte) error {
	return utils.WithLock(r.path, func() error { return r.DB.SaveLastResult(ctx, raw) })
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local formulation API",
	RunE: func(cmd *cobra.Command, args []string) error {
		gw, err := newGateway()
		if err != nil {
			return err
		}
		db, path, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		materials, err := loadMaterials(context.Background(), db, path)
		if err != nil {
			return err
		}

		s := server.New(gw, lockedResults{DB: db, path: path}, materials, viper.GetString("server.username"), viper.GetString("server.password"))
		return s.Start(viper.GetString("server.listen"))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", ":8090", "HTTP listen address")
	serveCmd.Flags().String("username", "", "Basic auth username")
	serveCmd.Flags().String("password", "", "Basic auth password")
	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
	viper.BindPFlag("server.username", serveCmd.Flags().Lookup("username"))
	viper.BindPFlag("server.password", serveCmd.Flags().Lookup("password"))
}
