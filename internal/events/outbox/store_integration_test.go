//go:build integration

package outbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"deepname/pkg/testutil/containers"
)

func TestPostgresStoreContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)

	runStoreContract(t, func(t *testing.T) Store {
		require.NoError(t, pg.TruncateTables(context.Background(), "event_outbox"))
		return NewPostgres(pg.DB)
	})
}
