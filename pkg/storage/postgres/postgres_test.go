package postgres_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/capsule/pkg/storage"
	"github.com/papercomputeco/capsule/pkg/storage/drivertest"
	"github.com/papercomputeco/capsule/pkg/storage/postgres"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("CAPSULE_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("CAPSULE_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Driver", func() {
	drivertest.DriverSpecs(func(ctx context.Context) storage.Driver {
		d, err := postgres.NewDriver(ctx, connStr())
		Expect(err).NotTo(HaveOccurred())

		// Clean all nodes before each test for isolation.
		_, err = d.DB().ExecContext(ctx, "DELETE FROM nodes")
		Expect(err).NotTo(HaveOccurred())
		return d
	})

	It("fails fast on an unreachable server", func() {
		_, err := postgres.NewDriver(context.Background(), "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1")
		Expect(err).To(HaveOccurred())
	})
})
