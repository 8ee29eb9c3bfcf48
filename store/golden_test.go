package store_test

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/simple-record-server/store"
)

// The on-disk layout is a contract with anyone reading or diffing the file.
// Regenerate with: go test ./store -run TestDocumentGolden -update
func TestDocumentGolden(t *testing.T) {
	doc := store.Document{
		"users": {
			{
				ID:            1,
				First:         "Ada",
				Last:          "Lovelace",
				IsPatched:     true,
				GetCount:      1,
				LastGetDate:   ts("2024-05-01T12:00:00Z"),
				LastPatchDate: ts("2024-05-01T12:30:00.250Z"),
				Extra: map[string]any{
					"email": "ada@example.com",
					"tags":  []any{"math"},
				},
			},
			{
				ID:              2,
				First:           "Charles",
				Last:            "Babbage",
				IsDeleted:       true,
				LastDeletedDate: ts("2024-05-02T09:00:00Z"),
			},
		},
		"pets": {},
	}

	data, err := store.EncodeDocument(doc)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "document", data)
}
