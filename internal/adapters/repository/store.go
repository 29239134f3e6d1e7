// Package repository is the Roster Store: the user, their players and the
// roster binding players to starter and bench slots, kept in SQLite.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/okian/courtside/internal/domain/roster"
	"github.com/okian/courtside/pkg/logger"

	_ "modernc.org/sqlite"
)

// XPToNext is the experience needed for the next level.
const XPToNext = 1000

// User is the single account the store serves.
type User struct {
	ID       string
	Username string
	Level    int
	XP       int
	Money    int64
}

// Store is safe for concurrent use; SQLite serializes writers through a
// single connection.
type Store struct {
	db     *sql.DB
	logger logger.Logger
	newID  func() string
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT    PRIMARY KEY,
	seq        INTEGER NOT NULL,
	username   TEXT    NOT NULL,
	level      INTEGER NOT NULL DEFAULT 1,
	xp         INTEGER NOT NULL DEFAULT 0,
	money      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS players (
	id         TEXT    PRIMARY KEY,
	seq        INTEGER NOT NULL,
	name       TEXT    NOT NULL,
	pos        TEXT    NOT NULL,
	overall    INTEGER NOT NULL,
	image_key  TEXT    NOT NULL DEFAULT '',
	salary     INTEGER NOT NULL DEFAULT 0,
	price      INTEGER NOT NULL DEFAULT 0,
	offense    INTEGER,
	defense    INTEGER
);

CREATE TABLE IF NOT EXISTS rosters (
	id         TEXT    PRIMARY KEY,
	user_id    TEXT    NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS roster_items (
	id         TEXT    PRIMARY KEY,
	roster_id  TEXT    NOT NULL REFERENCES rosters(id) ON DELETE CASCADE,
	player_id  TEXT    NOT NULL REFERENCES players(id),
	location   TEXT    NOT NULL CHECK (location IN ('STARTER', 'BENCH')),
	slot_index INTEGER NOT NULL,
	UNIQUE (roster_id, location, slot_index)
);
`

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger.Get().Named("repository"),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Info(ctx, "roster store opened", logger.String("path", path))
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type seedPlayer struct {
	name     string
	pos      string
	overall  int
	imageKey string
	salary   int64
	price    int64
	offense  int
	defense  int
}

// The first five are starters in slot order, the rest fill the bench.
var seedPlayers = []seedPlayer{ //nolint:gochecknoglobals // fixed seed table
	{"A. Iverson", "PG", 99, "/players/pg.png", 8_500_000, 12_000_000, 98, 82},
	{"D. Wade", "SG", 99, "/players/sg.png", 9_200_000, 13_500_000, 95, 88},
	{"L. James", "SF", 99, "/players/sf.png", 10_500_000, 15_000_000, 97, 90},
	{"K. Garnett", "PF", 99, "/players/pf.png", 9_800_000, 14_000_000, 89, 96},
	{"A. Şengün", "C", 99, "/players/c.png", 8_900_000, 12_500_000, 92, 94},
	{"Bench 1", "G", 70, "/players/b1.png", 1_200_000, 1_800_000, 72, 65},
	{"Bench 2", "G", 71, "/players/b2.png", 1_300_000, 1_900_000, 74, 68},
	{"Bench 3", "F", 69, "/players/b3.png", 1_100_000, 1_700_000, 70, 66},
	{"Bench 4", "F", 68, "/players/b4.png", 1_000_000, 1_600_000, 69, 64},
	{"Bench 5", "C", 67, "/players/b5.png", 950_000, 1_500_000, 65, 70},
	{"Bench 6", "G", 66, "/players/b6.png", 900_000, 1_400_000, 68, 62},
	{"Bench 7", "F", 65, "/players/b7.png", 850_000, 1_300_000, 66, 63},
	{"Bench 8", "C", 64, "/players/b8.png", 800_000, 1_200_000, 63, 67},
}

// Seed replaces all data with the demo user and roster.
func (s *Store) Seed(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"roster_items", "rosters", "players", "users"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("seed: clear %s: %w", table, err)
		}
	}

	userID := s.newID()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, seq, username, level, xp, money) VALUES (?, 0, ?, ?, ?, ?)`,
		userID, "Lent", 5, 732, int64(3_965_000),
	); err != nil {
		return fmt.Errorf("seed: user: %w", err)
	}

	rosterID := s.newID()
	if _, err := tx.ExecContext(ctx, `INSERT INTO rosters (id, user_id) VALUES (?, ?)`, rosterID, userID); err != nil {
		return fmt.Errorf("seed: roster: %w", err)
	}

	for i, p := range seedPlayers {
		playerID := s.newID()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO players (id, seq, name, pos, overall, image_key, salary, price, offense, defense)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			playerID, i, p.name, p.pos, p.overall, p.imageKey, p.salary, p.price, p.offense, p.defense,
		); err != nil {
			return fmt.Errorf("seed: player %q: %w", p.name, err)
		}

		loc, slot := roster.Starter, i
		if i >= roster.StarterSlots {
			loc, slot = roster.Bench, i-roster.StarterSlots
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO roster_items (id, roster_id, player_id, location, slot_index) VALUES (?, ?, ?, ?, ?)`,
			s.newID(), rosterID, playerID, string(loc), slot,
		); err != nil {
			return fmt.Errorf("seed: slot %s-%d: %w", loc, slot, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed: commit: %w", err)
	}
	s.logger.Info(ctx, "roster store seeded", logger.Int("players", len(seedPlayers)))
	return nil
}

// SeedIfEmpty seeds only when the store has no user yet and reports whether
// it did.
func (s *Store) SeedIfEmpty(ctx context.Context) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	return true, s.Seed(ctx)
}

// FetchMe returns the first user.
func (s *Store) FetchMe(ctx context.Context) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, level, xp, money FROM users ORDER BY seq LIMIT 1`,
	).Scan(&u.ID, &u.Username, &u.Level, &u.XP, &u.Money)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("fetch me: user: %w", ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("fetch me: %w", err)
	}
	return u, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func rosterID(ctx context.Context, q queryer) (string, error) {
	var id string
	err := q.QueryRowContext(ctx,
		`SELECT r.id FROM rosters r JOIN users u ON u.id = r.user_id ORDER BY u.seq LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoRoster
	}
	return id, err
}

// FetchRoster returns the user's roster with both collections ordered by
// slot index.
func (s *Store) FetchRoster(ctx context.Context) (roster.View, error) {
	rid, err := rosterID(ctx, s.db)
	if err != nil {
		return roster.View{}, fmt.Errorf("fetch roster: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ri.location, ri.slot_index,
		       p.id, p.name, p.pos, p.overall, p.image_key, p.salary, p.price, p.offense, p.defense
		FROM roster_items ri
		JOIN players p ON p.id = ri.player_id
		WHERE ri.roster_id = ?
		ORDER BY ri.location DESC, ri.slot_index ASC`, rid)
	if err != nil {
		return roster.View{}, fmt.Errorf("fetch roster: %w", err)
	}
	defer rows.Close()

	view := roster.View{Starters: []roster.Slot{}, Bench: []roster.Slot{}}
	for rows.Next() {
		var (
			loc              string
			slot             roster.Slot
			salary, price    int64
			offense, defense sql.NullInt64
		)
		p := &slot.Player
		if err := rows.Scan(&loc, &slot.Slot, &p.ID, &p.Name, &p.Pos, &p.Overall, &p.ImageURL,
			&salary, &price, &offense, &defense); err != nil {
			return roster.View{}, fmt.Errorf("fetch roster: scan: %w", err)
		}
		slot.Location = roster.Location(loc)
		p.Salary = strconv.FormatInt(salary, 10)
		p.Price = strconv.FormatInt(price, 10)
		if offense.Valid {
			p.Offense = roster.Rating(int(offense.Int64))
		}
		if defense.Valid {
			p.Defense = roster.Rating(int(defense.Int64))
		}

		if slot.Location == roster.Starter {
			view.Starters = append(view.Starters, slot)
		} else {
			view.Bench = append(view.Bench, slot)
		}
	}
	if err := rows.Err(); err != nil {
		return roster.View{}, fmt.Errorf("fetch roster: %w", err)
	}
	return view, nil
}

// SwapSlots exchanges the players at from and to in one transaction. A
// missing slot yields roster.ErrInvalidSlot and changes nothing.
func (s *Store) SwapSlots(ctx context.Context, from, to roster.SlotRef) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("swap: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rid, err := rosterID(ctx, tx)
	if err != nil {
		return fmt.Errorf("swap: %w", err)
	}

	item := func(ref roster.SlotRef) (id, player string, err error) {
		err = tx.QueryRowContext(ctx,
			`SELECT id, player_id FROM roster_items WHERE roster_id = ? AND location = ? AND slot_index = ?`,
			rid, string(ref.Location), ref.Slot,
		).Scan(&id, &player)
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", fmt.Errorf("%s: %w", ref, roster.ErrInvalidSlot)
		}
		return id, player, err
	}

	aID, aPlayer, err := item(from)
	if err != nil {
		return fmt.Errorf("swap: %w", err)
	}
	bID, bPlayer, err := item(to)
	if err != nil {
		return fmt.Errorf("swap: %w", err)
	}
	if aID == bID {
		return nil
	}

	for _, u := range []struct{ id, player string }{{aID, bPlayer}, {bID, aPlayer}} {
		if _, err := tx.ExecContext(ctx, `UPDATE roster_items SET player_id = ? WHERE id = ?`, u.player, u.id); err != nil {
			return fmt.Errorf("swap: update: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("swap: commit: %w", err)
	}
	s.logger.Debug(ctx, "slots swapped", logger.String("from", from.String()), logger.String("to", to.String()))
	return nil
}
