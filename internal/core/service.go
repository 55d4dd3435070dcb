package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Cypherspark/sms-survey/internal/db"
)

type Store struct{ DB *db.DB }

func NewStore(d *db.DB) *Store { return &Store{DB: d} }

var (
	ErrNotFound       = errors.New("not_found")
	ErrDuplicatePhone = errors.New("duplicate_phone")
	// ErrTokenUsed is returned when the conditional token update matched no
	// row because the token was already consumed.
	ErrTokenUsed = errors.New("token_used")
)

const uniqueViolation = "23505"

// CreateUser enrolls phone and returns the new user.
func (s *Store) CreateUser(ctx context.Context, phone string) (User, error) {
	u := User{Phone: phone}
	err := s.DB.Pool.QueryRow(ctx,
		`INSERT INTO users(phone) VALUES($1) RETURNING id, created_at`, phone).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return User{}, ErrDuplicatePhone
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// DeleteUser removes the user; responses and tokens go with it.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	tag, err := s.DB.Pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	err := s.DB.Pool.QueryRow(ctx, `SELECT id, phone, created_at FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Phone, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) UserByPhone(ctx context.Context, phone string) (User, error) {
	var u User
	err := s.DB.Pool.QueryRow(ctx, `SELECT id, phone, created_at FROM users WHERE phone=$1`, phone).
		Scan(&u.ID, &u.Phone, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.DB.Pool.Query(ctx, `SELECT id, phone, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Phone, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) CountResponses(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.DB.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM responses WHERE user_id=$1`, userID).Scan(&n)
	return n, err
}

func (s *Store) InsertResponse(ctx context.Context, userID int64, r Ratings, source string, at time.Time) (Response, error) {
	return insertResponse(ctx, s.DB.Pool, userID, r, source, at)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertResponse(ctx context.Context, q queryRower, userID int64, r Ratings, source string, at time.Time) (Response, error) {
	resp := Response{UserID: userID, Ratings: r, Source: source, CreatedAt: at.UTC()}
	err := q.QueryRow(ctx, `
		INSERT INTO responses(user_id, joy, achievement, meaning, influence, source, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, userID, r.Joy, r.Achievement, r.Meaning, r.Influence, source, resp.CreatedAt).Scan(&resp.ID)
	if err != nil {
		return Response{}, fmt.Errorf("insert response: %w", err)
	}
	return resp, nil
}

// RecentResponses returns up to limit responses for the user, newest first.
func (s *Store) RecentResponses(ctx context.Context, userID int64, limit int) ([]Response, error) {
	rows, err := s.DB.Pool.Query(ctx, `
		SELECT id, user_id, joy, achievement, meaning, influence, source, created_at
		FROM responses WHERE user_id=$1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer rows.Close()

	var out []Response
	for rows.Next() {
		var r Response
		if err := rows.Scan(&r.ID, &r.UserID, &r.Joy, &r.Achievement, &r.Meaning, &r.Influence, &r.Source, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListResponses is the admin listing across all users, newest first.
func (s *Store) ListResponses(ctx context.Context, limit, offset int) ([]Response, error) {
	rows, err := s.DB.Pool.Query(ctx, `
		SELECT r.id, r.user_id, u.phone, r.joy, r.achievement, r.meaning, r.influence, r.source, r.created_at
		FROM responses r JOIN users u ON u.id = r.user_id
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer rows.Close()

	var out []Response
	for rows.Next() {
		var r Response
		if err := rows.Scan(&r.ID, &r.UserID, &r.Phone, &r.Joy, &r.Achievement, &r.Meaning, &r.Influence, &r.Source, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CreateToken(ctx context.Context, t SurveyToken) (SurveyToken, error) {
	err := s.DB.Pool.QueryRow(ctx, `
		INSERT INTO survey_tokens(token, user_id, created_at, expires_at)
		VALUES($1,$2,$3,$4)
		RETURNING id
	`, t.Token, t.UserID, t.CreatedAt.UTC(), t.ExpiresAt.UTC()).Scan(&t.ID)
	if err != nil {
		return SurveyToken{}, fmt.Errorf("insert token: %w", err)
	}
	return t, nil
}

func (s *Store) LookupToken(ctx context.Context, token string) (TokenRecord, error) {
	var rec TokenRecord
	err := s.DB.Pool.QueryRow(ctx, `
		SELECT t.id, t.token, t.user_id, t.created_at, t.expires_at, t.used, t.used_at, u.phone
		FROM survey_tokens t JOIN users u ON u.id = t.user_id
		WHERE t.token=$1
	`, token).Scan(&rec.ID, &rec.Token, &rec.UserID, &rec.CreatedAt, &rec.ExpiresAt, &rec.Used, &rec.UsedAt, &rec.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return TokenRecord{}, ErrNotFound
	}
	if err != nil {
		return TokenRecord{}, fmt.Errorf("lookup token: %w", err)
	}
	return rec, nil
}

const markUsedSQL = `UPDATE survey_tokens SET used=true, used_at=$2 WHERE token=$1 AND used=false`

// MarkTokenUsed flips used=false to used=true in a single conditional
// update. It reports false when no unused token matched.
func (s *Store) MarkTokenUsed(ctx context.Context, token string, at time.Time) (bool, error) {
	tag, err := s.DB.Pool.Exec(ctx, markUsedSQL, token, at.UTC())
	if err != nil {
		return false, fmt.Errorf("mark token used: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RedeemToken stores the response and consumes the token in one
// transaction, response first. If the token was consumed concurrently the
// transaction is rolled back and ErrTokenUsed returned.
func (s *Store) RedeemToken(ctx context.Context, token string, userID int64, r Ratings, source string, at time.Time) (Response, error) {
	var resp Response
	err := s.DB.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		resp, err = insertResponse(ctx, tx, userID, r, source, at)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, markUsedSQL, token, at.UTC())
		if err != nil {
			return fmt.Errorf("mark token used: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrTokenUsed
		}
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}

// GetCampaign returns the configured campaign, or ErrNotFound.
func (s *Store) GetCampaign(ctx context.Context) (Campaign, error) {
	var c Campaign
	err := s.DB.Pool.QueryRow(ctx, `SELECT start_date, end_date FROM campaign WHERE id=1`).Scan(&c.StartDate, &c.EndDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return Campaign{}, ErrNotFound
	}
	return c, err
}

func (s *Store) SetCampaign(ctx context.Context, c Campaign) error {
	_, err := s.DB.Pool.Exec(ctx, `
		INSERT INTO campaign(id, start_date, end_date) VALUES(1,$1,$2)
		ON CONFLICT (id) DO UPDATE SET start_date=EXCLUDED.start_date, end_date=EXCLUDED.end_date
	`, dateOf(c.StartDate), dateOf(c.EndDate))
	if err != nil {
		return fmt.Errorf("set campaign: %w", err)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.DB.Pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM users), (SELECT COUNT(*) FROM responses)`).Scan(&st.Users, &st.Responses)
	return st, err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.DB.Pool.Ping(ctx)
}
