// Command reconcile runs one reconciliation pass over a time window and
// prints the summary. Intended for operators and cron jobs; the server also
// runs the pass daily on its own.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/obafemi/settlecore/app/repository"
	"github.com/obafemi/settlecore/internal/pkg/database"
	"github.com/obafemi/settlecore/internal/pkg/env"
	"github.com/obafemi/settlecore/internal/pkg/gateway"
	"github.com/obafemi/settlecore/internal/pkg/reconcile"
	"github.com/obafemi/settlecore/internal/pkg/reportstore"
)

func main() {
	days := flag.Int("days", 1, "how many days back to reconcile")
	flag.Parse()

	env.SetupEnvFile()

	db, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer database.Close(db)

	repos := repository.NewRepositories(db)
	gw := gateway.NewPaystackClientFromEnv()

	var reports reportstore.Store = reportstore.NewLocalStore(env.GetEnv("REPORT_DIR", "./reports"))
	if cfg := reportstore.S3ConfigFromEnv(); cfg.Bucket != "" {
		s3Store, err := reportstore.NewS3Store(context.Background(), cfg)
		if err != nil {
			log.Fatalf("object storage unavailable: %v", err)
		}
		reports = s3Store
	}

	to := time.Now()
	from := to.AddDate(0, 0, -*days)
	res, err := reconcile.NewEngine(repos, gw, reports).Run(context.Background(), from, to)
	if err != nil {
		log.Fatalf("reconciliation failed: %v", err)
	}

	fmt.Printf("window:              %s .. %s\n", from.Format(time.RFC3339), to.Format(time.RFC3339))
	fmt.Printf("matched:             %d\n", res.Summary.Matched)
	fmt.Printf("amount mismatched:   %d\n", res.Summary.Mismatched)
	fmt.Printf("missing in gateway:  %d\n", res.Summary.MissingInGateway)
	fmt.Printf("missing in local:    %d\n", res.Summary.MissingInLocal)
	fmt.Printf("report:              %s\n", res.ReportLocation)

	if res.Summary.Discrepancies() > 0 {
		os.Exit(2)
	}
}
