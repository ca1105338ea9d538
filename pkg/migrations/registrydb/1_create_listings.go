package registrydb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	mghelper "github.com/curatelabs/tcr-middleware/pkg/pgutil/migrations"
	"github.com/curatelabs/tcr-middleware/pkg/registry/store/pg"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating listings table...")
		if err := mghelper.CreateSchema(ctx, db, &pg.ListingDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &pg.ListingDao{}, "whitelisted", "owner")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping listings table...")
		return mghelper.DropTables(ctx, db, &pg.ListingDao{})
	})
}
