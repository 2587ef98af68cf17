package storage

import (
	"context"
	"fmt"
)

// schema is the full DDL for the delivery data model. Migrate applies it with
// IF NOT EXISTS so it is safe to run on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS vendors (
	id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name             TEXT NOT NULL,
	phone_number_id  TEXT NOT NULL DEFAULT '',
	access_token_enc TEXT NOT NULL DEFAULT '',
	whatsapp_status  TEXT NOT NULL DEFAULT 'pending',
	last_error       TEXT,
	api_key_prefix   TEXT NOT NULL,
	api_key_hash     TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_vendors_api_key_prefix ON vendors(api_key_prefix);

CREATE TABLE IF NOT EXISTS leads (
	id        UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	vendor_id UUID NOT NULL REFERENCES vendors(id),
	name      TEXT NOT NULL DEFAULT '',
	phone     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id        UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	vendor_id UUID NOT NULL REFERENCES vendors(id),
	lead_id   UUID NOT NULL REFERENCES leads(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	vendor_id       UUID NOT NULL REFERENCES vendors(id),
	conversation_id UUID NOT NULL REFERENCES conversations(id),
	direction       TEXT NOT NULL DEFAULT 'outbound',
	channel         TEXT NOT NULL DEFAULT 'whatsapp',
	type            TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'queued',
	retry_count     INT NOT NULL DEFAULT 0,
	error_code      TEXT,
	body            TEXT NOT NULL DEFAULT '',
	template_name   TEXT NOT NULL DEFAULT '',
	template_lang   TEXT NOT NULL DEFAULT '',
	template_params TEXT[] NOT NULL DEFAULT '{}',
	claimed_at      TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_eligible
	ON messages(status, type, created_at)
	WHERE status = 'queued';

CREATE TABLE IF NOT EXISTS message_media (
	id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	message_id UUID NOT NULL REFERENCES messages(id),
	media_type TEXT NOT NULL,
	mime_type  TEXT NOT NULL,
	source_url TEXT NOT NULL,
	caption    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_message_media_message ON message_media(message_id);

CREATE TABLE IF NOT EXISTS message_deliveries (
	id                  UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	message_id          UUID NOT NULL REFERENCES messages(id),
	media_id            UUID REFERENCES message_media(id),
	conversation_id     UUID NOT NULL REFERENCES conversations(id),
	status              TEXT NOT NULL DEFAULT 'queued',
	provider_message_id TEXT,
	error_text          TEXT
);

CREATE INDEX IF NOT EXISTS idx_deliveries_message ON message_deliveries(message_id);
CREATE INDEX IF NOT EXISTS idx_deliveries_provider_id ON message_deliveries(provider_message_id);
`

// Migrate applies the schema to the connected database.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
