// Command promo-import bulk-loads promotional coupon codes from
// gzip-compressed code lists into the database. Every imported code becomes
// a percentage coupon with the configured discount.
//
// Code files can contain hundreds of millions of lines with duplicates both
// within and across files, so deduplication uses a bloom filter instead of
// an exact set. The false positive rate means a tiny fraction of codes may
// be skipped as duplicates; for promo imports that trade-off is acceptable.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/svmadhu/jewelcart/internal/storage/postgres"
)

const (
	bloomCapacity = 100_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	minCodeLen    = 6
	maxCodeLen    = 12
)

func main() {
	var (
		dataDir     string
		databaseURL string
		percentOff  int
		description string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.gz code list files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&percentOff, "percent-off", 10, "percentage discount for imported codes")
	flag.StringVar(&description, "description", "Promo code discount", "coupon description for imported codes")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if percentOff <= 0 || percentOff > 100 {
		slog.Error("percent-off must be between 1 and 100")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, percentOff, description); err != nil {
		slog.Error("promo import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("promo import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, percentOff int, description string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list code files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.gz files found in %s", dataDir)
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Readers stream each file concurrently into one channel; a single
	// writer owns the bloom filter and the database connection, so neither
	// needs locking.
	codes := make(chan string, 4096)

	g, ctx := errgroup.WithContext(ctx)

	readers, readersCtx := errgroup.WithContext(ctx)
	for _, f := range files {
		readers.Go(streamCodes(readersCtx, f, codes))
	}
	g.Go(func() error {
		defer close(codes)
		return readers.Wait()
	})

	g.Go(func() error {
		return writeCodes(ctx, pool, codes, percentOff, description)
	})

	return g.Wait()
}

// streamCodes reads one gzip file line by line and sends normalized codes.
func streamCodes(ctx context.Context, path string, out chan<- string) func() error {
	return func() error {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer func() { _ = f.Close() }()

		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()

		var count uint64
		scanner := bufio.NewScanner(gz)
		for scanner.Scan() {
			code := strings.ToUpper(strings.TrimSpace(scanner.Text()))
			if len(code) < minCodeLen || len(code) > maxCodeLen {
				continue
			}

			select {
			case out <- code:
			case <-ctx.Done():
				return ctx.Err()
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("read progress",
					slog.String("file", filepath.Base(path)),
					slog.Uint64("codes", count),
				)
			}
		}
		if err := scanner.Err(); err != nil {
			return errors.Wrapf(err, "scan %s", path)
		}

		slog.Info("file complete",
			slog.String("file", filepath.Base(path)),
			slog.Uint64("codes", count),
		)
		return nil
	}
}

const insertPromoSQL = `INSERT INTO coupons (code, description, discount_type, value, scope, active)
	VALUES ($1, $2, 'percentage', $3, 'all', TRUE)
	ON CONFLICT ((UPPER(code))) DO NOTHING`

// writeCodes dedupes incoming codes with a bloom filter and inserts new ones.
func writeCodes(ctx context.Context, pool *pgxpool.Pool, codes <-chan string, percentOff int, description string) error {
	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	value := decimal.NewFromInt(int64(percentOff))

	var written uint64
	for code := range codes {
		if seen.TestAndAddString(code) {
			continue
		}

		if _, err := pool.Exec(ctx, insertPromoSQL, code, description, value); err != nil {
			return errors.Wrapf(err, "insert coupon %s", code)
		}

		written++
		if written%100_000 == 0 {
			slog.Info("write progress", slog.Uint64("written", written))
		}
	}

	slog.Info("write complete", slog.Uint64("written", written))
	return nil
}
