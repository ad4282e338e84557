package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/idilsaglam/tada/internal/backend"
	"github.com/idilsaglam/tada/internal/model"
)

const listColumns = `id, name, owner_id, created_at, updated_at`

func scanList(r rowScanner) (model.List, error) {
	var (
		l                model.List
		created, updated int64
	)
	if err := r.Scan(&l.ID, &l.Name, &l.OwnerID, &created, &updated); err != nil {
		return model.List{}, err
	}
	l.CreatedAt, l.UpdatedAt = fromStamp(created), fromStamp(updated)
	return l, nil
}

func (s *Store) getList(ctx context.Context, q queryer, id string) (model.List, error) {
	l, err := scanList(s.queryRow(ctx, q, `SELECT `+listColumns+` FROM lists WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.List{}, notFound("list", id)
	}
	if err != nil {
		return model.List{}, fmt.Errorf("select list: %w", err)
	}
	return l, nil
}

// GetList returns one list.
func (s *Store) GetList(ctx context.Context, id string) (model.List, error) {
	return s.getList(ctx, s.db, id)
}

// ListLists returns the lists userID owns or collaborates on, oldest first.
// An empty userID returns every list.
func (s *Store) ListLists(ctx context.Context, userID string) ([]model.List, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if userID == "" {
		rows, err = s.query(ctx, s.db, `SELECT `+listColumns+` FROM lists ORDER BY created_at, id`)
	} else {
		rows, err = s.query(ctx, s.db, `SELECT `+listColumns+` FROM lists
			WHERE owner_id = ? OR id IN (SELECT list_id FROM list_shares WHERE shared_with_id = ?)
			ORDER BY created_at, id`, userID, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("select lists: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := []model.List{}
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CreateList stores a new list owned by ownerID.
func (s *Store) CreateList(ctx context.Context, name, ownerID string) (model.List, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.List{}, model.Invalid("name", "must not be empty")
	}
	if strings.TrimSpace(ownerID) == "" {
		return model.List{}, model.Invalid("owner", "must not be empty")
	}
	now := s.stamp()
	l := model.List{ID: newID(), Name: name, OwnerID: ownerID, CreatedAt: fromStamp(now), UpdatedAt: fromStamp(now)}
	if _, err := s.exec(ctx, s.db, `INSERT INTO lists (`+listColumns+`) VALUES (?, ?, ?, ?, ?)`,
		l.ID, l.Name, l.OwnerID, now, now); err != nil {
		return model.List{}, fmt.Errorf("insert list: %w", err)
	}
	s.logger.Debug("list created", "list", l.ID, "owner", ownerID)
	return l, nil
}

// RenameList changes the display name.
func (s *Store) RenameList(ctx context.Context, id, name string) (model.List, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.List{}, model.Invalid("name", "must not be empty")
	}
	res, err := s.exec(ctx, s.db, `UPDATE lists SET name = ?, updated_at = ? WHERE id = ?`, name, s.stamp(), id)
	if err != nil {
		return model.List{}, fmt.Errorf("update list: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.List{}, notFound("list", id)
	}
	return s.GetList(ctx, id)
}

// DeleteList removes the list with its todos, shares and invites. Feed
// subscribers see a delete for every todo.
func (s *Store) DeleteList(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx, emit func(backend.Event)) error {
		if _, err := s.getList(ctx, tx, id); err != nil {
			return err
		}
		rows, err := s.query(ctx, tx, `SELECT id FROM todos WHERE list_id = ?`, id)
		if err != nil {
			return fmt.Errorf("select todos: %w", err)
		}
		var ids []string
		for rows.Next() {
			var tid string
			if err := rows.Scan(&tid); err != nil {
				_ = rows.Close()
				return fmt.Errorf("scan id: %w", err)
			}
			ids = append(ids, tid)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		for _, stmt := range []string{
			`DELETE FROM todos WHERE list_id = ?`,
			`DELETE FROM list_shares WHERE list_id = ?`,
			`DELETE FROM invite_links WHERE list_id = ?`,
			`DELETE FROM lists WHERE id = ?`,
		} {
			if _, err := s.exec(ctx, tx, stmt, id); err != nil {
				return fmt.Errorf("delete list: %w", err)
			}
		}
		for _, tid := range ids {
			emit(backend.Event{Kind: backend.EventDelete, ListID: id, ID: tid})
		}
		return nil
	})
}

// UpsertProfile records or refreshes a user profile. Emails are stored lowercased.
func (s *Store) UpsertProfile(ctx context.Context, p model.Profile) (model.Profile, error) {
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	if p.ID == "" || p.Email == "" {
		return model.Profile{}, model.Invalid("profile", "id and email are required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	_, err := s.exec(ctx, s.db, `INSERT INTO profiles (id, email, display_name, avatar_url, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET email = excluded.email, display_name = excluded.display_name, avatar_url = excluded.avatar_url`,
		p.ID, p.Email, p.DisplayName, p.AvatarURL, p.CreatedAt.UnixNano())
	if err != nil {
		return model.Profile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return p, nil
}

func scanProfile(r rowScanner) (model.Profile, error) {
	var (
		p       model.Profile
		created int64
	)
	if err := r.Scan(&p.ID, &p.Email, &p.DisplayName, &p.AvatarURL, &created); err != nil {
		return model.Profile{}, err
	}
	p.CreatedAt = fromStamp(created)
	return p, nil
}

func (s *Store) profile(ctx context.Context, q queryer, where string, arg any) (model.Profile, bool, error) {
	p, err := scanProfile(s.queryRow(ctx, q, `SELECT id, email, display_name, avatar_url, created_at FROM profiles WHERE `+where+` = ?`, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Profile{}, false, nil
	}
	if err != nil {
		return model.Profile{}, false, fmt.Errorf("select profile: %w", err)
	}
	return p, true, nil
}

// ListShares returns the collaborators of listID with their profiles.
func (s *Store) ListShares(ctx context.Context, listID string) ([]model.Share, error) {
	rows, err := s.query(ctx, s.db, `SELECT id, list_id, shared_with_id, created_at FROM list_shares WHERE list_id = ? ORDER BY created_at, id`, listID)
	if err != nil {
		return nil, fmt.Errorf("select shares: %w", err)
	}
	out := []model.Share{}
	for rows.Next() {
		var (
			sh      model.Share
			created int64
		)
		if err := rows.Scan(&sh.ID, &sh.ListID, &sh.SharedWithID, &created); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan share: %w", err)
		}
		sh.CreatedAt = fromStamp(created)
		out = append(out, sh)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	for i := range out {
		p, ok, err := s.profile(ctx, s.db, "id", out[i].SharedWithID)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i].Profile = &p
		}
	}
	return out, nil
}

// ShareByEmail shares listID with the user registered under email.
func (s *Store) ShareByEmail(ctx context.Context, listID, email string) (model.Share, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return model.Share{}, model.Invalid("email", "must not be empty")
	}
	var sh model.Share
	err := s.inTx(ctx, func(tx *sql.Tx, _ func(backend.Event)) error {
		l, err := s.getList(ctx, tx, listID)
		if err != nil {
			return err
		}
		p, ok, err := s.profile(ctx, tx, "email", email)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("user %s not found, they need to sign in first: %w", email, model.ErrNotFound)
		}
		if p.ID == l.OwnerID {
			return fmt.Errorf("%s owns this list: %w", email, model.ErrConflict)
		}
		var n int
		if err := s.queryRow(ctx, tx, `SELECT COUNT(*) FROM list_shares WHERE list_id = ? AND shared_with_id = ?`, listID, p.ID).Scan(&n); err != nil {
			return fmt.Errorf("count shares: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("already shared with %s: %w", email, model.ErrConflict)
		}
		now := s.stamp()
		sh = model.Share{ID: newID(), ListID: listID, SharedWithID: p.ID, CreatedAt: fromStamp(now), Profile: &p}
		if _, err := s.exec(ctx, tx, `INSERT INTO list_shares (id, list_id, shared_with_id, created_at) VALUES (?, ?, ?, ?)`,
			sh.ID, listID, p.ID, now); err != nil {
			return fmt.Errorf("insert share: %w", err)
		}
		return nil
	})
	return sh, err
}

// DeleteShare revokes one share.
func (s *Store) DeleteShare(ctx context.Context, shareID string) error {
	res, err := s.exec(ctx, s.db, `DELETE FROM list_shares WHERE id = ?`, shareID)
	if err != nil {
		return fmt.Errorf("delete share: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("share", shareID)
	}
	return nil
}

// Members returns the owner's profile first, then collaborators.
// Users without a profile appear with only their id.
func (s *Store) Members(ctx context.Context, listID string) ([]model.Profile, error) {
	l, err := s.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	owner, ok, err := s.profile(ctx, s.db, "id", l.OwnerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		owner = model.Profile{ID: l.OwnerID}
	}
	shares, err := s.ListShares(ctx, listID)
	if err != nil {
		return nil, err
	}
	out := []model.Profile{owner}
	for _, sh := range shares {
		if sh.Profile != nil {
			out = append(out, *sh.Profile)
		} else {
			out = append(out, model.Profile{ID: sh.SharedWithID})
		}
	}
	return out, nil
}

// CreateInvite issues a token that lets its holder join listID for ttl.
func (s *Store) CreateInvite(ctx context.Context, listID, createdBy string, ttl time.Duration) (model.InviteLink, error) {
	if ttl <= 0 {
		return model.InviteLink{}, model.Invalid("ttl", "must be positive")
	}
	if _, err := s.GetList(ctx, listID); err != nil {
		return model.InviteLink{}, err
	}
	now := s.now().UTC()
	inv := model.InviteLink{
		ID:        newID(),
		ListID:    listID,
		Token:     strings.ReplaceAll(uuid.NewString(), "-", ""),
		CreatedBy: createdBy,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if _, err := s.exec(ctx, s.db, `INSERT INTO invite_links (id, list_id, token, created_by, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.ListID, inv.Token, inv.CreatedBy, inv.ExpiresAt.UnixNano(), inv.CreatedAt.UnixNano()); err != nil {
		return model.InviteLink{}, fmt.Errorf("insert invite: %w", err)
	}
	return inv, nil
}

// AcceptInvite shares the invite's list with userID and returns the list id.
// Owners and existing collaborators just get the id back.
func (s *Store) AcceptInvite(ctx context.Context, token, userID string) (string, error) {
	var listID string
	err := s.inTx(ctx, func(tx *sql.Tx, _ func(backend.Event)) error {
		var expires int64
		err := s.queryRow(ctx, tx, `SELECT list_id, expires_at FROM invite_links WHERE token = ?`, token).Scan(&listID, &expires)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrInvalidInvite
		}
		if err != nil {
			return fmt.Errorf("select invite: %w", err)
		}
		if !s.now().UTC().Before(fromStamp(expires)) {
			return model.ErrInvalidInvite
		}
		l, err := s.getList(ctx, tx, listID)
		if err != nil {
			return err
		}
		if l.OwnerID == userID {
			return nil
		}
		var n int
		if err := s.queryRow(ctx, tx, `SELECT COUNT(*) FROM list_shares WHERE list_id = ? AND shared_with_id = ?`, listID, userID).Scan(&n); err != nil {
			return fmt.Errorf("count shares: %w", err)
		}
		if n > 0 {
			return nil
		}
		if _, err := s.exec(ctx, tx, `INSERT INTO list_shares (id, list_id, shared_with_id, created_at) VALUES (?, ?, ?, ?)`,
			newID(), listID, userID, s.stamp()); err != nil {
			return fmt.Errorf("insert share: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return listID, nil
}
