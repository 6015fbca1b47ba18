package badger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// PrefixStat counts the keys and value bytes under one key family.
type PrefixStat struct {
	Prefix string
	Keys   int
	Bytes  int64
}

// Inspect opens the database at path read-only and tallies keys per family.
// It can run while the server is stopped; badger refuses a read-only open of
// a directory another process holds.
func Inspect(path string) ([]PrefixStat, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db read-only: %w", err)
	}
	defer db.Close()

	return inspectDB(db)
}

func inspectDB(db *badger.DB) ([]PrefixStat, error) {
	counts := make(map[string]*PrefixStat)

	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			family := keyFamily(string(item.Key()))

			st, ok := counts[family]
			if !ok {
				st = &PrefixStat{Prefix: family}
				counts[family] = st
			}
			st.Keys++
			st.Bytes += item.ValueSize()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats := make([]PrefixStat, 0, len(counts))
	for _, st := range counts {
		stats = append(stats, *st)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Prefix < stats[j].Prefix })
	return stats, nil
}

// keyFamily maps a key to its family: "user:" for documents, "idx:followers:"
// for indexes. Secondary indexes use the first two segments.
func keyFamily(key string) string {
	parts := strings.SplitN(key, ":", 4)
	if len(parts) == 1 {
		return key
	}
	if parts[0] == "idx" && len(parts) >= 3 {
		family := parts[0] + ":" + parts[1] + ":"
		// idx:users:username:, idx:likes:owner: and friends carry a third segment
		if len(parts) == 4 && (parts[1] == "users" || parts[1] == "likes" || parts[1] == "invites" || parts[1] == "activity") {
			family += parts[2] + ":"
		}
		return family
	}
	return parts[0] + ":"
}
