package metrics

import (
	"sort"
	"strconv"
)

// Bucket is one labelled count in a breakdown table.
type Bucket struct {
	Label string
	Count int64
}

// StatusBuckets returns status code counts sorted by descending count, then code.
func (s Statistics) StatusBuckets() []Bucket {
	rows := make([]Bucket, 0, len(s.StatusCodes))
	for code, n := range s.StatusCodes {
		rows = append(rows, Bucket{Label: strconv.Itoa(code), Count: n})
	}
	return sortBuckets(rows)
}

// FailureBuckets returns transport failure counts by kind, sorted like StatusBuckets.
func (s Statistics) FailureBuckets() []Bucket {
	rows := make([]Bucket, 0, len(s.FailureKinds))
	for kind, n := range s.FailureKinds {
		rows = append(rows, Bucket{Label: kind, Count: n})
	}
	return sortBuckets(rows)
}

func sortBuckets(rows []Bucket) []Bucket {
	if len(rows) == 0 {
		return nil
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Label < rows[j].Label
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
