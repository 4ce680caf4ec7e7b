package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andesco/subpage/pkg/sanitize"
)

// Store is the sqlite-backed profile document store.
type Store struct {
	db        *sql.DB
	sanitizer sanitize.Sanitizer
	now       func() time.Time
}

// NewStore wraps db. baseOrigin is the site origin that relative URLs in
// custom HTML are resolved against, e.g. "https://example.com".
func NewStore(db *sql.DB, baseOrigin string) *Store {
	return &Store{
		db:        db,
		sanitizer: sanitize.Sanitizer{BaseOrigin: baseOrigin, MaxLength: MaxCustomHTML},
		now:       time.Now,
	}
}

// Claim reserves subdomain for uid. A user owns at most one subdomain; both
// checks and both inserts happen in one transaction.
func (s *Store) Claim(ctx context.Context, uid, subdomain string) (string, error) {
	if uid == "" {
		return "", ErrInvalidArgument
	}
	sub := strings.ToLower(strings.TrimSpace(subdomain))
	if err := ValidateSubdomain(sub); err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("claim: begin: %w", err)
	}
	defer tx.Rollback()

	if ok, err := exists(ctx, tx, `SELECT 1 FROM profiles WHERE subdomain = ?`, sub); err != nil {
		return "", fmt.Errorf("claim: %w", err)
	} else if ok {
		return "", ErrTaken
	}
	if ok, err := exists(ctx, tx, `SELECT 1 FROM users WHERE uid = ?`, uid); err != nil {
		return "", fmt.Errorf("claim: %w", err)
	} else if ok {
		return "", ErrAlreadyClaimed
	}

	now := s.now().UnixMilli()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO profiles (subdomain, owner, handle, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		sub, uid, sub, now, now); err != nil {
		return "", fmt.Errorf("claim: insert profile: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (uid, subdomain, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		uid, sub, now, now); err != nil {
		return "", fmt.Errorf("claim: insert user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("claim: commit: %w", err)
	}
	return sub, nil
}

// SubdomainOf returns the subdomain owned by uid, or "" if none.
func (s *Store) SubdomainOf(ctx context.Context, uid string) (string, error) {
	var sub string
	err := s.db.QueryRowContext(ctx, `SELECT subdomain FROM users WHERE uid = ?`, uid).Scan(&sub)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("subdomain of %s: %w", uid, err)
	}
	return sub, nil
}

// Release deletes uid's profile and user record. It cannot be undone.
func (s *Store) Release(ctx context.Context, uid string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("release: begin: %w", err)
	}
	defer tx.Rollback()

	sub, err := ownedSubdomain(ctx, tx, uid)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE subdomain = ?`, sub); err != nil {
		return fmt.Errorf("release: delete profile: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE uid = ?`, uid); err != nil {
		return fmt.Errorf("release: delete user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("release: commit: %w", err)
	}
	return nil
}

// Update applies u to uid's profile. It reports false when u changes nothing.
//
// CustomHTML is clamped to MaxCustomHTML characters before it is sanitized.
// Escaping can lengthen the result, so the stored value may be longer than
// MaxCustomHTML; readers must not assume the cap holds for stored markup.
func (s *Store) Update(ctx context.Context, uid string, u Update) (bool, error) {
	sets, args, err := s.assignments(uid, u)
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("update: begin: %w", err)
	}
	defer tx.Rollback()

	sub, err := ownedSubdomain(ctx, tx, uid)
	if err != nil {
		return false, err
	}
	if len(sets) == 0 {
		return false, nil
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, s.now().UnixMilli(), sub)
	query := `UPDATE profiles SET ` + strings.Join(sets, ", ") + ` WHERE subdomain = ?`
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return false, fmt.Errorf("update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("update: commit: %w", err)
	}
	return true, nil
}

// Get loads the profile for subdomain.
func (s *Store) Get(ctx context.Context, subdomain string) (*Profile, error) {
	var (
		p                    Profile
		links                string
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT subdomain, owner, handle, bio, links, avatar_path, favicon_path, og_image_path,
		       og_title, og_description, custom_css, custom_html, created_at, updated_at
		FROM profiles WHERE subdomain = ?`, strings.ToLower(subdomain)).Scan(
		&p.Subdomain, &p.Owner, &p.Handle, &p.Bio, &links, &p.AvatarPath, &p.FaviconPath, &p.OGImagePath,
		&p.OGTitle, &p.OGDescription, &p.CustomCSS, &p.CustomHTML, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileMissing
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", subdomain, err)
	}
	if err := json.Unmarshal([]byte(links), &p.Links); err != nil {
		return nil, fmt.Errorf("get profile %s: decoding links: %w", subdomain, err)
	}
	p.CreatedAt = time.UnixMilli(createdAt)
	p.UpdatedAt = time.UnixMilli(updatedAt)
	return &p, nil
}

// assignments validates u and turns it into SET clauses.
func (s *Store) assignments(uid string, u Update) ([]string, []any, error) {
	var (
		sets []string
		args []any
	)
	set := func(col string, val any) {
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}

	if u.Bio != nil {
		set("bio", clamp(strings.TrimSpace(*u.Bio), MaxBio))
	}
	if u.Links != nil {
		data, err := json.Marshal(cleanLinks(*u.Links))
		if err != nil {
			return nil, nil, fmt.Errorf("update: encoding links: %w", err)
		}
		set("links", string(data))
	}
	paths := []struct {
		val    *string
		col    string
		folder string
	}{
		{u.AvatarPath, "avatar_path", "avatars"},
		{u.FaviconPath, "favicon_path", "favicons"},
		{u.OGImagePath, "og_image_path", "og"},
	}
	for _, p := range paths {
		if p.val == nil {
			continue
		}
		clean, err := cleanPath(*p.val, p.folder, uid)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s", err, p.col)
		}
		set(p.col, clean)
	}
	if u.OGTitle != nil {
		set("og_title", clamp(strings.TrimSpace(*u.OGTitle), MaxOGTitle))
	}
	if u.OGDescription != nil {
		set("og_description", clamp(strings.TrimSpace(*u.OGDescription), MaxOGDescription))
	}
	if u.CustomCSS != nil {
		set("custom_css", cleanCSS(*u.CustomCSS))
	}
	if u.CustomHTML != nil {
		set("custom_html", s.sanitizer.Sanitize(*u.CustomHTML))
	}
	return sets, args, nil
}

// ownedSubdomain resolves uid's subdomain inside tx and checks ownership.
func ownedSubdomain(ctx context.Context, tx *sql.Tx, uid string) (string, error) {
	var sub string
	err := tx.QueryRowContext(ctx, `SELECT subdomain FROM users WHERE uid = ?`, uid).Scan(&sub)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoSubdomain
	}
	if err != nil {
		return "", fmt.Errorf("loading user %s: %w", uid, err)
	}

	var owner string
	err = tx.QueryRowContext(ctx, `SELECT owner FROM profiles WHERE subdomain = ?`, sub).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrProfileMissing
	}
	if err != nil {
		return "", fmt.Errorf("loading profile %s: %w", sub, err)
	}
	if owner != uid {
		return "", ErrNotOwner
	}
	return sub, nil
}

func exists(ctx context.Context, tx *sql.Tx, query string, arg any) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, query, arg).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
