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
		log.Println("creating reward_claims table...")
		return mghelper.CreateSchema(ctx, db, &pg.RewardClaimDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping reward_claims table...")
		return mghelper.DropTables(ctx, db, &pg.RewardClaimDao{})
	})
}
