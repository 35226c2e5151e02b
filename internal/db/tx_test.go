package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTxFromContext_Empty(t *testing.T) {
	assert.Nil(t, TxFromContext(context.Background()))
}

func TestSchemaEmbedded(t *testing.T) {
	for _, table := range []string{"hospitals", "service_categories", "doctors", "patients", "appointments", "waitlist_entries", "event_logs"} {
		assert.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS "+table)
	}
}
