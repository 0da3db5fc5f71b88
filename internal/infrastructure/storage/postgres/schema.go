package postgres

import (
	"context"
	"fmt"

	"seqnum/pkg/logger"
)

// SequenceTable is the table holding sequence definitions.
const SequenceTable = "seq_sequences"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS seq_sequences (
		id               UUID PRIMARY KEY,
		code             TEXT NOT NULL DEFAULT '',
		name             TEXT NOT NULL,
		company_id       UUID,
		implementation   TEXT NOT NULL DEFAULT 'standard'
		                 CHECK (implementation IN ('standard', 'no_gap')),
		active           BOOLEAN NOT NULL DEFAULT TRUE,
		number_next      BIGINT NOT NULL DEFAULT 1,
		number_increment BIGINT NOT NULL DEFAULT 1,
		padding          INTEGER NOT NULL DEFAULT 0 CHECK (padding >= 0),
		prefix           TEXT NOT NULL DEFAULT '',
		suffix           TEXT NOT NULL DEFAULT '',
		auto_reset       BOOLEAN NOT NULL DEFAULT FALSE,
		reset_period     TEXT NOT NULL DEFAULT 'month'
		                 CHECK (reset_period IN ('year', 'month', 'woy', 'day', 'h24', 'min', 'sec')),
		reset_token      TEXT NOT NULL DEFAULT '',
		reset_value      BIGINT NOT NULL DEFAULT 1,
		version          INTEGER NOT NULL DEFAULT 1,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_seq_sequences_code ON seq_sequences (code, id) WHERE active`,
	// Definition changes are published for caches; number_next and
	// reset_token churn is not.
	`CREATE OR REPLACE FUNCTION seq_sequences_notify() RETURNS trigger AS $$
	BEGIN
		IF TG_OP = 'UPDATE' AND OLD.code IS DISTINCT FROM NEW.code THEN
			PERFORM pg_notify('seq_sequences_changed', '');
		ELSIF TG_OP = 'DELETE' THEN
			PERFORM pg_notify('seq_sequences_changed', OLD.code);
		ELSE
			PERFORM pg_notify('seq_sequences_changed', NEW.code);
		END IF;
		RETURN NULL;
	END
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS trg_seq_sequences_notify ON seq_sequences`,
	`CREATE TRIGGER trg_seq_sequences_notify
		AFTER INSERT OR DELETE OR UPDATE OF code, name, company_id, implementation, active,
			number_increment, padding, prefix, suffix, auto_reset, reset_period, reset_value
		ON seq_sequences
		FOR EACH ROW EXECUTE FUNCTION seq_sequences_notify()`,
}

// EnsureSchema creates the tables this service needs if they are missing.
func EnsureSchema(ctx context.Context, q Querier) error {
	for _, stmt := range schemaStatements {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	logger.Info(ctx, "schema ready", "table", SequenceTable)
	return nil
}
