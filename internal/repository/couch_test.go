package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"hexanote-sync-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
	"github.com/go-kivik/kivik/v4/driver"
	"github.com/go-kivik/kivik/v4/mockdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDBName = "hexanote"

// couchStatus is an error carrying an HTTP status the way the CouchDB driver
// reports it.
type couchStatus int

func (s couchStatus) Error() string   { return http.StatusText(int(s)) }
func (s couchStatus) HTTPStatus() int { return int(s) }

// newMockDB expects exactly one DB handle; repositories open theirs once at
// construction.
func newMockDB(t *testing.T) (*kivik.Client, *mockdb.DB) {
	t.Helper()
	client, mock := mockdb.NewT(t)
	db := mock.NewDB()
	mock.ExpectDB().WithName(testDBName).WillReturn(db)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return client, db
}

func newCouchNotes(t *testing.T) (*noteRepository, *mockdb.DB) {
	t.Helper()
	client, db := newMockDB(t)
	repo := NewNoteRepository(client, testDBName).(*noteRepository)
	repo.now = newStepClock().Now
	return repo, db
}

func storedNote(version int64, rev string, updated time.Time) *noteDoc {
	return toNoteDoc(&domain.Note{
		ID:             "n1",
		Title:          "stored",
		Content:        "body",
		Tags:           []string{"a"},
		Version:        version,
		CreatedAt:      updated.Add(-time.Hour),
		UpdatedAt:      updated,
		LastEditDevice: "d0",
	}, rev)
}

// capturePut decodes the document handed to Put into dst.
func capturePut(t *testing.T, dst interface{}, rev string, err error) func(context.Context, string, interface{}, driver.Options) (string, error) {
	return func(_ context.Context, _ string, doc interface{}, _ driver.Options) (string, error) {
		raw, mErr := json.Marshal(doc)
		require.NoError(t, mErr)
		require.NoError(t, json.Unmarshal(raw, dst))
		return rev, err
	}
}

type findQuery struct {
	Selector map[string]interface{} `json:"selector"`
	Limit    int                    `json:"limit"`
	Bookmark string                 `json:"bookmark"`
}

func decodeQuery(t *testing.T, q interface{}) findQuery {
	t.Helper()
	raw, err := json.Marshal(q)
	require.NoError(t, err)
	var out findQuery
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

// pageRows is one _find page with an optional bookmark.
type pageRows struct {
	docs     []interface{}
	bookmark string
}

func (r *pageRows) Next(row *driver.Row) error {
	if len(r.docs) == 0 {
		return io.EOF
	}
	raw, err := json.Marshal(r.docs[0])
	if err != nil {
		return err
	}
	r.docs = r.docs[1:]
	row.Doc = bytes.NewReader(raw)
	return nil
}

func (r *pageRows) Close() error      { return nil }
func (r *pageRows) UpdateSeq() string { return "" }
func (r *pageRows) Offset() int64     { return 0 }
func (r *pageRows) TotalRows() int64  { return 0 }
func (r *pageRows) Bookmark() string  { return r.bookmark }

func TestCouchNotes_FindByIDNotFound(t *testing.T) {
	repo, db := newCouchNotes(t)
	db.ExpectGet().WithDocID("note:missing").WillReturnError(couchStatus(http.StatusNotFound))

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNoteNotFound)
}

func TestCouchNotes_CreateWritesVersionOne(t *testing.T) {
	repo, db := newCouchNotes(t)
	var put noteDoc
	db.ExpectPut().WithDocID("note:n1").WillExecute(capturePut(t, &put, "1-a", nil))

	note, err := repo.Create(context.Background(), "n1", &domain.NoteContent{Title: strPtr("Hello")}, "d1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), note.Version)
	assert.Equal(t, noteDocType, put.DocType)
	assert.Equal(t, int64(1), put.Version)
	assert.Equal(t, "Hello", put.Title)
	assert.Equal(t, note.UpdatedAt.UnixNano(), put.UpdatedNs)
	assert.Empty(t, put.Rev)
}

func TestCouchNotes_CreateOnTakenIDReportsStoredNote(t *testing.T) {
	repo, db := newCouchNotes(t)
	existing := storedNote(4, "4-x", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	db.ExpectPut().WithDocID("note:n1").WillReturnError(couchStatus(http.StatusConflict))
	db.ExpectGet().WithDocID("note:n1").WillReturn(mockdb.DocumentT(t, existing))

	_, err := repo.Create(context.Background(), "n1", &domain.NoteContent{Title: strPtr("dup")}, "d1")

	var vc *VersionConflictError
	require.True(t, errors.As(err, &vc), "got %v", err)
	assert.Equal(t, int64(0), vc.Expected)
	require.NotNil(t, vc.Current)
	assert.Equal(t, int64(4), vc.Current.Version)
	assert.Equal(t, "stored", vc.Current.Title)
}

func TestCouchNotes_CommitRetriesAfterRevisionRace(t *testing.T) {
	repo, db := newCouchNotes(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var first, second noteDoc
	db.ExpectGet().WithDocID("note:n1").WillReturn(mockdb.DocumentT(t, storedNote(2, "2-a", base)))
	db.ExpectPut().WithDocID("note:n1").WillExecute(capturePut(t, &first, "", couchStatus(http.StatusConflict)))
	// The competing write touched the document without moving the version.
	db.ExpectGet().WithDocID("note:n1").WillReturn(mockdb.DocumentT(t, storedNote(2, "3-b", base)))
	db.ExpectPut().WithDocID("note:n1").WillExecute(capturePut(t, &second, "4-c", nil))

	note, err := repo.Commit(context.Background(), "n1", 2, NoteChange{
		Content:  &domain.NoteContent{Content: strPtr("edited")},
		DeviceID: "d1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), note.Version)
	assert.Equal(t, "edited", note.Content)
	assert.Equal(t, "2-a", first.Rev)
	assert.Equal(t, "3-b", second.Rev)
	assert.Equal(t, int64(3), second.Version)
	assert.Equal(t, "d1", second.LastEditDevice)
}

func TestCouchNotes_CommitSeesWinnerAfterRace(t *testing.T) {
	repo, db := newCouchNotes(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	db.ExpectGet().WithDocID("note:n1").WillReturn(mockdb.DocumentT(t, storedNote(2, "2-a", base)))
	db.ExpectPut().WithDocID("note:n1").WillReturnError(couchStatus(http.StatusConflict))
	db.ExpectGet().WithDocID("note:n1").WillReturn(mockdb.DocumentT(t, storedNote(3, "3-b", base.Add(time.Second))))

	_, err := repo.Commit(context.Background(), "n1", 2, NoteChange{Delete: true, DeviceID: "d1"})

	var vc *VersionConflictError
	require.True(t, errors.As(err, &vc), "got %v", err)
	assert.Equal(t, int64(2), vc.Expected)
	assert.Equal(t, int64(3), vc.Current.Version)
}

func TestCouchNotes_CommitGivesUpAfterRepeatedRaces(t *testing.T) {
	repo, db := newCouchNotes(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < maxCASAttempts; i++ {
		db.ExpectGet().WithDocID("note:n1").WillReturn(mockdb.DocumentT(t, storedNote(1, "1-a", base)))
		db.ExpectPut().WithDocID("note:n1").WillReturnError(couchStatus(http.StatusConflict))
	}

	_, err := repo.Commit(context.Background(), "n1", 1, NoteChange{Delete: true, DeviceID: "d1"})
	assert.ErrorIs(t, err, ErrRevisionConflict)
}

func TestCouchNotes_ListChangedSinceSelector(t *testing.T) {
	tests := []struct {
		name  string
		since time.Time
		want  float64
	}{
		{"zero time lists everything", time.Time{}, -1},
		{"watermark", time.Unix(1700000000, 0).UTC(), 1.7e18},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, db := newCouchNotes(t)
			db.ExpectFind().WillExecute(func(_ context.Context, q interface{}, _ driver.Options) (driver.Rows, error) {
				query := decodeQuery(t, q)
				assert.Equal(t, noteDocType, query.Selector["doc_type"])
				updated, ok := query.Selector["updated_ns"].(map[string]interface{})
				require.True(t, ok)
				assert.Equal(t, tt.want, updated["$gt"])
				return &pageRows{}, nil
			})

			notes, err := repo.ListChangedSince(context.Background(), tt.since)
			require.NoError(t, err)
			assert.Empty(t, notes)
		})
	}
}

func TestCouchNotes_ListChangedSinceFollowsBookmark(t *testing.T) {
	repo, db := newCouchNotes(t)
	repo.pageSize = 2
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	doc := func(id string, offset time.Duration) *noteDoc {
		d := storedNote(1, "1-a", base.Add(offset))
		d.ID, d.DocID = id, noteDocID(id)
		return d
	}

	var bookmarks []string
	pages := []*pageRows{
		{docs: []interface{}{doc("c", 3*time.Second), doc("a", time.Second)}, bookmark: "p1"},
		{docs: []interface{}{doc("b", 2*time.Second), doc("d", 4*time.Second)}, bookmark: "p2"},
		{docs: []interface{}{doc("e", 5*time.Second)}, bookmark: "p3"},
	}
	for _, page := range pages {
		page := page
		db.ExpectFind().WillExecute(func(_ context.Context, q interface{}, _ driver.Options) (driver.Rows, error) {
			query := decodeQuery(t, q)
			assert.Equal(t, 2, query.Limit)
			bookmarks = append(bookmarks, query.Bookmark)
			return page, nil
		})
	}

	notes, err := repo.ListChangedSince(context.Background(), time.Time{})
	require.NoError(t, err)

	var ids []string
	for _, n := range notes {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids)
	assert.Equal(t, []string{"", "p1", "p2"}, bookmarks)
}

func TestCouchNotes_ListChangedSinceFailsOnUndecodableDoc(t *testing.T) {
	repo, db := newCouchNotes(t)
	db.ExpectFind().WillReturn(mockdb.NewRows().
		AddRow(&driver.Row{ID: "note:bad", Doc: bytes.NewReader([]byte(`{"version":"three"}`))}))

	notes, err := repo.ListChangedSince(context.Background(), time.Time{})
	assert.Error(t, err)
	assert.Nil(t, notes)
}

func TestCouchNotes_ListChangedSinceSurfacesQueryError(t *testing.T) {
	repo, db := newCouchNotes(t)
	db.ExpectFind().WillReturnError(couchStatus(http.StatusServiceUnavailable))

	_, err := repo.ListChangedSince(context.Background(), time.Time{})
	assert.Error(t, err)
}

func newCouchDevices(t *testing.T) (DeviceRepository, *mockdb.DB) {
	t.Helper()
	client, db := newMockDB(t)
	return NewDeviceRepository(client, testDBName), db
}

func storedDevice(rev string, lastSync *time.Time) *deviceDoc {
	return &deviceDoc{
		DocID:      deviceDocID("d1"),
		Rev:        rev,
		DocType:    deviceDocType,
		ID:         "d1",
		Name:       "laptop",
		Class:      domain.DeviceClassDesktop,
		LastSyncAt: lastSync,
		CreatedAt:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCouchDevices_UpdateLastSyncIgnoresOlder(t *testing.T) {
	repo, db := newCouchDevices(t)
	current := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	db.ExpectGet().WithDocID("device:d1").WillReturn(mockdb.DocumentT(t, storedDevice("2-a", &current)))

	// No Put is expected.
	require.NoError(t, repo.UpdateLastSync(context.Background(), "d1", current.Add(-time.Minute)))
}

func TestCouchDevices_UpdateLastSyncRetriesOnConflict(t *testing.T) {
	repo, db := newCouchDevices(t)
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := old.Add(time.Hour)

	var put deviceDoc
	db.ExpectGet().WithDocID("device:d1").WillReturn(mockdb.DocumentT(t, storedDevice("2-a", &old)))
	db.ExpectPut().WithDocID("device:d1").WillReturnError(couchStatus(http.StatusConflict))
	db.ExpectGet().WithDocID("device:d1").WillReturn(mockdb.DocumentT(t, storedDevice("3-b", &old)))
	db.ExpectPut().WithDocID("device:d1").WillExecute(capturePut(t, &put, "4-c", nil))

	require.NoError(t, repo.UpdateLastSync(context.Background(), "d1", ts))
	assert.Equal(t, "3-b", put.Rev)
	require.NotNil(t, put.LastSyncAt)
	assert.True(t, ts.Equal(*put.LastSyncAt))
}

func TestCouchDevices_UpdateLastSyncUnknownDevice(t *testing.T) {
	repo, db := newCouchDevices(t)
	db.ExpectGet().WithDocID("device:nope").WillReturnError(couchStatus(http.StatusNotFound))

	err := repo.UpdateLastSync(context.Background(), "nope", time.Now())
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestCouchDevices_ListFailsOnUndecodableDoc(t *testing.T) {
	repo, db := newCouchDevices(t)
	db.ExpectFind().WillReturn(mockdb.NewRows().
		AddRow(&driver.Row{ID: "device:ok", Doc: bytes.NewReader(mustJSON(t, storedDevice("1-a", nil)))}).
		AddRow(&driver.Row{ID: "device:bad", Doc: bytes.NewReader([]byte(`{"created_at":"never"}`))}))

	_, err := repo.List(context.Background())
	assert.Error(t, err)
}

func TestCouchConflicts_ListFiltersByDevice(t *testing.T) {
	client, db := newMockDB(t)
	repo := NewConflictRepository(client, testDBName)

	older := &conflictDoc{DocID: "conflict:1", DocType: conflictDocType, ID: "1", NoteID: "n1", DeviceID: "d1",
		DetectedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	newer := &conflictDoc{DocID: "conflict:2", DocType: conflictDocType, ID: "2", NoteID: "n2", DeviceID: "d1",
		DetectedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}

	db.ExpectFind().WillExecute(func(_ context.Context, q interface{}, _ driver.Options) (driver.Rows, error) {
		query := decodeQuery(t, q)
		assert.Equal(t, "d1", query.Selector["device_id"])
		assert.Equal(t, conflictDocType, query.Selector["doc_type"])
		return &pageRows{docs: []interface{}{older, newer}}, nil
	})

	edits, err := repo.List(context.Background(), "d1")
	require.NoError(t, err)
	require.Len(t, edits, 2)
	assert.Equal(t, "2", edits[0].ID)
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
