package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_doc_store.go -package=mocks labtree/internal/storage DocStore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"labtree/internal/record"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when saving a record whose id exists or
	// updating a record with a stale revision.
	ErrConflict = errors.New("revision conflict")
	// ErrUnknownView is returned by GetView for unsupported view names.
	ErrUnknownView = errors.New("unknown view")
)

// DocStore defines the document database contract used by the scanner and
// the consistency checker.
type DocStore interface {
	// GetDoc gets a record by id.
	// Returns nil and ErrNotFound if not found.
	GetDoc(ctx context.Context, id string) (*record.Record, error)
	// SaveDoc stores a new record and assigns its first revision.
	SaveDoc(ctx context.Context, doc *record.Record) (*record.Record, error)
	// UpdateDoc replaces a stored record. The record's revision must match the
	// stored one; the revision is bumped on success.
	UpdateDoc(ctx context.Context, doc *record.Record) (*record.Record, error)
	// GetView returns the rows of a named view. An empty key selects all rows.
	GetView(ctx context.Context, view, key string) ([]ViewRow, error)
}

// DocRepo provides methods for document operations.
// It implements the DocStore interface.
type DocRepo struct {
	db *sql.DB
}

// NewDocRepo creates a new DocRepo.
func NewDocRepo(db *sql.DB) *DocRepo {
	return &DocRepo{db: db}
}

// GetDoc gets a record by id.
// Returns nil and ErrNotFound if not found.
func (r *DocRepo) GetDoc(ctx context.Context, id string) (*record.Record, error) {
	var rev, body string
	err := r.db.QueryRowContext(ctx, "SELECT rev, body FROM docs WHERE id = ?", id).Scan(&rev, &body)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query doc %s: %w", id, err)
	}

	var doc record.Record
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode doc %s: %w", id, err)
	}
	doc.Rev = rev
	return &doc, nil
}

// SaveDoc stores a new record. It fails with ErrConflict if the id is taken.
func (r *DocRepo) SaveDoc(ctx context.Context, doc *record.Record) (*record.Record, error) {
	if doc.ID == "" {
		return nil, fmt.Errorf("failed to save doc: %w", &record.ValidationError{Field: "_id", Message: "must not be empty"})
	}
	saved := *doc
	saved.Rev = newRev(1)

	cols, err := columnsOf(&saved)
	if err != nil {
		return nil, err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO docs (id, rev, kind, root_id, stack, child, path, op, content_hash, body, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (id) DO NOTHING`,
		saved.ID, saved.Rev, cols.kind, cols.rootID, cols.stack, cols.child, cols.path, cols.op, cols.contentHash, cols.body,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save doc %s: %w", saved.ID, err)
	}

	// ON CONFLICT DO NOTHING leaves the existing row; compare revisions to tell.
	var rev string
	if err := r.db.QueryRowContext(ctx, "SELECT rev FROM docs WHERE id = ?", saved.ID).Scan(&rev); err != nil {
		return nil, fmt.Errorf("failed to verify doc %s: %w", saved.ID, err)
	}
	if rev != saved.Rev {
		return nil, fmt.Errorf("%w: doc %s already exists", ErrConflict, saved.ID)
	}
	return &saved, nil
}

// UpdateDoc replaces a stored record if doc.Rev is the stored revision.
// It bumps both the storage revision and the record's revision counter.
func (r *DocRepo) UpdateDoc(ctx context.Context, doc *record.Record) (*record.Record, error) {
	updated := *doc
	updated.Revision++
	updated.Rev = newRev(revNumber(doc.Rev) + 1)

	cols, err := columnsOf(&updated)
	if err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE docs SET rev = ?, kind = ?, root_id = ?, stack = ?, child = ?, path = ?, op = ?,
		 content_hash = ?, body = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND rev = ?`,
		updated.Rev, cols.kind, cols.rootID, cols.stack, cols.child, cols.path, cols.op, cols.contentHash, cols.body,
		updated.ID, doc.Rev,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update doc %s: %w", doc.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to update doc %s: %w", doc.ID, err)
	}
	if n == 0 {
		if _, err := r.GetDoc(ctx, doc.ID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: doc %s is not at revision %s", ErrConflict, doc.ID, doc.Rev)
	}
	return &updated, nil
}

// GetView returns the rows of a named view ordered by key and path.
func (r *DocRepo) GetView(ctx context.Context, view, key string) ([]ViewRow, error) {
	var (
		keyCol string
		where  []string
	)
	switch view {
	case ViewPaths:
		keyCol = "root_id"
		where = append(where, "op != 'delete'", "path != ''")
	case ViewHierarchy:
		keyCol = "stack"
		where = append(where, "op != 'delete'")
	case ViewContentHash:
		keyCol = "content_hash"
		where = append(where, "op != 'delete'", "content_hash != ''")
	case ViewType:
		keyCol = "kind"
		where = append(where, "op != 'delete'")
	case ViewAll:
		keyCol = "id"
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownView, view)
	}

	var args []any
	// The hierarchy view treats an empty key as "no stack" rather than "all".
	if key != "" || view == ViewHierarchy {
		where = append(where, keyCol+" = ?")
		args = append(args, key)
	}
	query := "SELECT id, " + keyCol + ", body FROM docs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + keyCol + ", path, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query view %s: %w", view, err)
	}
	defer rows.Close()

	var out []ViewRow
	for rows.Next() {
		var row ViewRow
		var body string
		if err := rows.Scan(&row.ID, &row.Key, &body); err != nil {
			return nil, fmt.Errorf("failed to scan view %s: %w", view, err)
		}
		var doc record.Record
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode doc %s: %w", row.ID, err)
		}
		row.Value = valueOf(&doc)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate view %s: %w", view, err)
	}
	return out, nil
}

// StackKey is the hierarchy view key of a stack.
func StackKey(stack []string) string {
	return strings.Join(stack, " ")
}

func valueOf(doc *record.Record) ViewValue {
	b, _ := doc.Current()
	stack := b.Stack
	if stack == nil {
		stack = []string{}
	}
	return ViewValue{
		Path:        b.Path,
		Type:        doc.Type,
		Name:        doc.Name,
		ContentHash: doc.ContentHash,
		Stack:       stack,
		Child:       b.Child,
		Op:          string(b.Op),
	}
}

type docColumns struct {
	kind        string
	rootID      string
	stack       string
	child       int
	path        string
	op          string
	contentHash string
	body        string
}

func columnsOf(doc *record.Record) (docColumns, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return docColumns{}, fmt.Errorf("failed to encode doc %s: %w", doc.ID, err)
	}
	b, _ := doc.Current()
	root := ""
	switch {
	case len(b.Stack) > 0:
		root = b.Stack[0]
	case doc.Kind() == record.KindProject:
		root = doc.ID
	}
	return docColumns{
		kind:        string(doc.Kind()),
		rootID:      root,
		stack:       StackKey(b.Stack),
		child:       b.Child,
		path:        b.Path,
		op:          string(b.Op),
		contentHash: doc.ContentHash,
		body:        string(body),
	}, nil
}

func newRev(n int) string {
	return strconv.Itoa(n) + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func revNumber(rev string) int {
	prefix, _, _ := strings.Cut(rev, "-")
	n, err := strconv.Atoi(prefix)
	if err != nil {
		return 0
	}
	return n
}
