package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	seen := map[string]int{}
	for _, name := range names {
		base := strings.TrimSuffix(strings.TrimSuffix(name, ".up.sql"), ".down.sql")
		seen[base]++
	}
	for base, n := range seen {
		assert.Equal(t, 2, n, "migration %s needs both up and down files", base)
	}
}

func TestSchemaDeclaresStorageConstraints(t *testing.T) {
	raw, err := fs.ReadFile(FS, "0001_scheduling.up.sql")
	require.NoError(t, err)
	schema := string(raw)

	for _, want := range []string{
		"appointments_no_overlap",
		"appointments_series_member",
		"dayrate_bookings_unit_day",
		"execution_claimed_at",
		"scheduling_audit_events",
		"delivered_at",
	} {
		assert.Contains(t, schema, want)
	}
}
