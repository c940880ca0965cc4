package scylla

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/gocql/gocql"
)

var keyspacePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

type Options struct {
	Hosts             []string
	Keyspace          string
	Consistency       gocql.Consistency
	Timeout           time.Duration
	ReplicationFactor int
	Username          string
	Password          string
}

// NewSession ensures schema exists and returns a connected Scylla session.
func NewSession(ctx context.Context, opts Options, logger *slog.Logger) (*gocql.Session, error) {
	if !keyspacePattern.MatchString(opts.Keyspace) {
		return nil, fmt.Errorf("invalid keyspace name: %s", opts.Keyspace)
	}
	if opts.ReplicationFactor <= 0 {
		opts.ReplicationFactor = 1
	}

	baseSession, err := cluster(opts, "").CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to scylla: %w", err)
	}
	defer baseSession.Close()
	if err := ensureKeyspace(ctx, baseSession, opts); err != nil {
		return nil, err
	}

	session, err := cluster(opts, opts.Keyspace).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to keyspace %s: %w", opts.Keyspace, err)
	}
	if err := ensureTables(ctx, session); err != nil {
		session.Close()
		return nil, err
	}
	if logger != nil {
		logger.Info("scylla connected", "hosts", opts.Hosts, "keyspace", opts.Keyspace)
	}
	return session, nil
}

func cluster(opts Options, keyspace string) *gocql.ClusterConfig {
	c := gocql.NewCluster(opts.Hosts...)
	c.Keyspace = keyspace
	c.Consistency = opts.Consistency
	if opts.Timeout > 0 {
		c.Timeout = opts.Timeout
		c.ConnectTimeout = opts.Timeout
	}
	if opts.Username != "" {
		c.Authenticator = gocql.PasswordAuthenticator{Username: opts.Username, Password: opts.Password}
	}
	return c
}

func ensureKeyspace(ctx context.Context, session *gocql.Session, opts Options) error {
	cql := fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}",
		opts.Keyspace, opts.ReplicationFactor,
	)
	if err := session.Query(cql).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("create keyspace: %w", err)
	}
	return nil
}

var schema = []struct {
	name string
	cql  string
}{
	{"conversations", `
CREATE TABLE IF NOT EXISTS conversations (
	id text PRIMARY KEY,
	members list<text>,
	created_at timestamp,
	last_message_at timestamp
)`},
	{"conversations_by_member", `
CREATE TABLE IF NOT EXISTS conversations_by_member (
	user_id text,
	other_id text,
	conversation_id text,
	PRIMARY KEY ((user_id), other_id, conversation_id)
)`},
	{"participants", `
CREATE TABLE IF NOT EXISTS participants (
	conversation_id text,
	user_id text,
	left_at timestamp,
	has_seen_latest boolean,
	PRIMARY KEY (conversation_id, user_id)
)`},
	{"messages", `
CREATE TABLE IF NOT EXISTS messages (
	conversation_id text,
	created_at timestamp,
	message_id text,
	sender_id text,
	body text,
	image text,
	is_read boolean,
	is_system boolean,
	PRIMARY KEY (conversation_id, created_at, message_id)
) WITH CLUSTERING ORDER BY (created_at ASC, message_id ASC)`},
	{"deleted_messages", `
CREATE TABLE IF NOT EXISTS deleted_messages (
	message_id text,
	user_id text,
	deleted_at timestamp,
	PRIMARY KEY (message_id, user_id)
)`},
}

func ensureTables(ctx context.Context, session *gocql.Session) error {
	for _, t := range schema {
		if err := session.Query(t.cql).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("create %s table: %w", t.name, err)
		}
	}
	return nil
}
