package database

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Up      string
	Down    string
}

// Migrations contains all database migrations
var Migrations = []Migration{
	{
		Version: 1,
		Up: `
			CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

			CREATE TABLE IF NOT EXISTS users (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				email VARCHAR(255) UNIQUE NOT NULL,
				display_name VARCHAR(255) NOT NULL,
				avatar_url TEXT,
				password_hash VARCHAR(255) NOT NULL,
				expo_push_token VARCHAR(255),
				push_enabled BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
		`,
		Down: `
			DROP TABLE IF EXISTS users;
		`,
	},
	{
		Version: 2,
		Up: `
			CREATE TABLE IF NOT EXISTS organizations (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				name VARCHAR(255) NOT NULL,
				created_at TIMESTAMP NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS organization_members (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				organization_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				role VARCHAR(50) NOT NULL DEFAULT 'member',
				joined_at TIMESTAMP NOT NULL DEFAULT NOW(),
				UNIQUE(organization_id, user_id)
			);

			CREATE INDEX IF NOT EXISTS idx_organization_members_org ON organization_members(organization_id);
			CREATE INDEX IF NOT EXISTS idx_organization_members_user ON organization_members(user_id);
		`,
		Down: `
			DROP TABLE IF EXISTS organization_members;
			DROP TABLE IF EXISTS organizations;
		`,
	},
	{
		Version: 3,
		Up: `
			CREATE TABLE IF NOT EXISTS listings (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				organization_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
				seller_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				title VARCHAR(255) NOT NULL,
				image_bucket VARCHAR(255),
				image_path TEXT,
				created_at TIMESTAMP NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_listings_org ON listings(organization_id);
		`,
		Down: `
			DROP TABLE IF EXISTS listings;
		`,
	},
	{
		Version: 4,
		Up: `
			CREATE TABLE IF NOT EXISTS conversations (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				participant1_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				participant2_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				listing_id UUID REFERENCES listings(id) ON DELETE SET NULL,
				last_message TEXT,
				last_message_at TIMESTAMP,
				created_at TIMESTAMP NOT NULL DEFAULT NOW(),
				CHECK (participant1_id < participant2_id)
			);

			CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_pair_listing
				ON conversations(participant1_id, participant2_id, listing_id)
				WHERE listing_id IS NOT NULL;
			CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_pair_general
				ON conversations(participant1_id, participant2_id)
				WHERE listing_id IS NULL;
			CREATE INDEX IF NOT EXISTS idx_conversations_p1 ON conversations(participant1_id);
			CREATE INDEX IF NOT EXISTS idx_conversations_p2 ON conversations(participant2_id);
		`,
		Down: `
			DROP TABLE IF EXISTS conversations;
		`,
	},
	{
		Version: 5,
		Up: `
			CREATE TABLE IF NOT EXISTS messages (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				sender_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				content TEXT NOT NULL DEFAULT '',
				image_bucket VARCHAR(255),
				image_path TEXT,
				created_at TIMESTAMP NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
			CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id);
		`,
		Down: `
			DROP TABLE IF EXISTS messages;
		`,
	},
	{
		Version: 6,
		Up: `
			CREATE TABLE IF NOT EXISTS organization_conversations (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				organization_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
				type VARCHAR(50) NOT NULL DEFAULT 'group',
				name VARCHAR(255) NOT NULL,
				created_by UUID REFERENCES users(id) ON DELETE SET NULL,
				last_message TEXT,
				last_message_at TIMESTAMP,
				created_at TIMESTAMP NOT NULL DEFAULT NOW(),
				CHECK (type IN ('all_members', 'board_admin', 'group'))
			);

			CREATE UNIQUE INDEX IF NOT EXISTS idx_org_conversations_singleton
				ON organization_conversations(organization_id, type)
				WHERE type <> 'group';
			CREATE UNIQUE INDEX IF NOT EXISTS idx_org_conversations_group_name
				ON organization_conversations(organization_id, name)
				WHERE type = 'group';
			CREATE INDEX IF NOT EXISTS idx_org_conversations_org ON organization_conversations(organization_id);
		`,
		Down: `
			DROP TABLE IF EXISTS organization_conversations;
		`,
	},
	{
		Version: 7,
		Up: `
			CREATE TABLE IF NOT EXISTS organization_conversation_members (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				conversation_id UUID NOT NULL REFERENCES organization_conversations(id) ON DELETE CASCADE,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				joined_at TIMESTAMP NOT NULL DEFAULT NOW(),
				UNIQUE(conversation_id, user_id)
			);

			CREATE INDEX IF NOT EXISTS idx_org_conv_members_conversation ON organization_conversation_members(conversation_id);
			CREATE INDEX IF NOT EXISTS idx_org_conv_members_user ON organization_conversation_members(user_id);

			CREATE TABLE IF NOT EXISTS organization_messages (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				conversation_id UUID NOT NULL REFERENCES organization_conversations(id) ON DELETE CASCADE,
				sender_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				content TEXT NOT NULL DEFAULT '',
				image_bucket VARCHAR(255),
				image_path TEXT,
				created_at TIMESTAMP NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_org_messages_conversation ON organization_messages(conversation_id, created_at);
		`,
		Down: `
			DROP TABLE IF EXISTS organization_messages;
			DROP TABLE IF EXISTS organization_conversation_members;
		`,
	},
	{
		Version: 8,
		Up: `
			CREATE TABLE IF NOT EXISTS read_states (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				conversation_type VARCHAR(50) NOT NULL,
				conversation_id UUID NOT NULL,
				last_read_at TIMESTAMP NOT NULL DEFAULT NOW(),
				UNIQUE(user_id, conversation_type, conversation_id),
				CHECK (conversation_type IN ('direct', 'organization'))
			);

			CREATE INDEX IF NOT EXISTS idx_read_states_user ON read_states(user_id);
		`,
		Down: `
			DROP TABLE IF EXISTS read_states;
		`,
	},
	{
		Version: 9,
		Up: `
			CREATE TABLE IF NOT EXISTS push_notifications (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				tokens TEXT[] NOT NULL DEFAULT '{}',
				title VARCHAR(255) NOT NULL,
				body TEXT NOT NULL,
				data JSONB,
				status VARCHAR(50) NOT NULL DEFAULT 'pending',
				sent_at TIMESTAMP,
				error_message TEXT,
				created_at TIMESTAMP NOT NULL DEFAULT NOW(),
				CHECK (status IN ('pending', 'sent', 'failed'))
			);

			CREATE INDEX IF NOT EXISTS idx_push_notifications_status ON push_notifications(status);
		`,
		Down: `
			DROP TABLE IF EXISTS push_notifications;
		`,
	},
	{
		Version: 10,
		Up: `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version INT PRIMARY KEY,
				applied_at TIMESTAMP NOT NULL DEFAULT NOW()
			);
		`,
		Down: `
			DROP TABLE IF EXISTS schema_migrations;
		`,
	},
}

// RunMigrations runs all pending migrations
func RunMigrations(db *sql.DB) error {
	// Ensure migrations table exists
	if err := ensureMigrationsTable(db); err != nil {
		return err
	}

	// Get current version
	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return err
	}

	// Run pending migrations in ascending order by version
	sorted := make([]Migration, len(Migrations))
	copy(sorted, Migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	// Run pending migrations
	for _, migration := range sorted {
		if migration.Version <= currentVersion {
			continue
		}

		fmt.Printf("Running migration %d...\n", migration.Version)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if _, err := tx.Exec(migration.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		fmt.Printf("Migration %d completed\n", migration.Version)
	}

	return nil
}

func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func getCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}
