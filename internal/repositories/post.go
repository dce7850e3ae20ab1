package repositories

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/models"
)

// Keys of the post attribute bag used by the marketplace.
const (
	attrPrice  = "price"
	attrIsSold = "is_sold"
)

// postLockRetry is the pause between attempts to take a busy post lock.
const postLockRetry = 20 * time.Millisecond

// PostRepository adapts the posts table to the marketplace Listing view.
// Posts are owned by the content service; only the sold flag is written here.
type PostRepository struct {
	db *sqlx.DB
}

// NewPostRepository creates a new PostRepository.
func NewPostRepository(db *sqlx.DB) *PostRepository {
	return &PostRepository{db: db}
}

// GetListing returns the listing for the post or sql.ErrNoRows.
func (r *PostRepository) GetListing(ctx context.Context, postID int64) (*models.Listing, error) {
	const query = `
		SELECT post_id, author_id, attributes
		FROM posts
		WHERE post_id = $1
	`

	var row struct {
		PostID     int64     `db:"post_id"`
		AuthorID   uuid.UUID `db:"author_id"`
		Attributes []byte    `db:"attributes"`
	}
	err := r.db.GetContext(ctx, &row, query, postID)
	logQuery(query, []any{postID}, string(row.Attributes), err)
	if err != nil {
		return nil, err
	}

	listing, err := parseListing(row.Attributes)
	if err != nil {
		return nil, fmt.Errorf("post %d attributes: %w", postID, err)
	}
	listing.PostID = row.PostID
	listing.AuthorID = row.AuthorID
	return listing, nil
}

// LockPost takes a session-level advisory lock keyed by the post ID and returns the
// function that releases it. The lock lives on a dedicated connection, so it spans
// transactions committed on other connections in the meantime. While the lock is busy
// the connection goes back to the pool between attempts; waiting ends with ctx.
func (r *PostRepository) LockPost(ctx context.Context, postID int64) (func(), error) {
	const (
		lockQuery   = `SELECT pg_try_advisory_lock($1)`
		unlockQuery = `SELECT pg_advisory_unlock($1)`
	)

	for {
		conn, err := r.db.Connx(ctx)
		if err != nil {
			return nil, fmt.Errorf("lock post %d: %w", postID, err)
		}

		var locked bool
		err = conn.GetContext(ctx, &locked, lockQuery, postID)
		logQuery(lockQuery, []any{postID}, locked, err)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("lock post %d: %w", postID, err)
		}

		if locked {
			return func() {
				var unlocked bool
				err := conn.GetContext(context.WithoutCancel(ctx), &unlocked, unlockQuery, postID)
				logQuery(unlockQuery, []any{postID}, unlocked, err)
				if err != nil || !unlocked {
					// Drop the session instead of pooling a connection that may still hold the lock.
					_ = conn.Raw(func(any) error { return driver.ErrBadConn })
				}
				conn.Close()
			}, nil
		}
		conn.Close()

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock post %d: %w", postID, ctx.Err())
		case <-time.After(postLockRetry):
		}
	}
}

// MarkSold sets the is_sold attribute of the post, keeping every other attribute.
func (r *PostRepository) MarkSold(ctx context.Context, postID int64) error {
	const query = `
		UPDATE posts
		SET attributes = jsonb_set(COALESCE(attributes, '{}'::jsonb), '{is_sold}', 'true'::jsonb)
		WHERE post_id = $1
	`

	res, err := r.db.ExecContext(ctx, query, postID)
	var rowsAffected int64
	if res != nil {
		rowsAffected, _ = res.RowsAffected()
	}
	logQuery(query, []any{postID}, rowsAffected, err)

	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("mark post %d sold: post not found", postID)
	}
	return nil
}

// parseListing reads price and sold flag from a loosely typed attribute bag.
// A price that is absent or not an integer leaves Price nil.
func parseListing(raw []byte) (*models.Listing, error) {
	listing := &models.Listing{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return listing, nil
	}

	attrs := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&attrs); err != nil {
		return nil, err
	}

	listing.Price = parsePrice(attrs[attrPrice])
	listing.IsSold = truthy(attrs[attrIsSold])
	return listing, nil
}

func parsePrice(v any) *int64 {
	var price int64
	switch p := v.(type) {
	case json.Number:
		if n, err := p.Int64(); err == nil {
			price = n
			break
		}
		f, err := p.Float64()
		if err != nil || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
			return nil
		}
		price = int64(f)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil
		}
		price = n
	default:
		return nil
	}
	return &price
}

// truthy mirrors how the content service treats flags stored by older clients.
func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case json.Number:
		f, err := b.Float64()
		return err != nil || f != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(b))
		return s != "" && s != "false" && s != "0"
	case []any:
		return len(b) > 0
	case map[string]any:
		return len(b) > 0
	default:
		return true
	}
}
