package sqlitedriver

import (
	"sort"

	"github.com/basincode/loam"
)

func sortStrings(s []string) {
	sort.Strings(s)
}

func sortDocuments(docs []loam.Document) {
	sort.Slice(docs, func(i, j int) bool {
		return loam.HistoryOrder(docs[i], docs[j]) < 0
	})
}
