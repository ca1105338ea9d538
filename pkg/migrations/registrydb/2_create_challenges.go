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
		log.Println("creating challenges table...")
		if err := mghelper.CreateSchema(ctx, db, &pg.ChallengeDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &pg.ChallengeDao{}, "listing_id", "resolved")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping challenges table...")
		return mghelper.DropTables(ctx, db, &pg.ChallengeDao{})
	})
}
