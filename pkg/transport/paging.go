package transport

import (
	"bytes"
	"sort"
)

// Page filters envs by q's topics and time window, orders them by
// (timestamp, digest) in the requested direction, skips past the cursor and
// cuts one page. Both the in-memory bus and store-backed adapters use it so
// paging behaves the same regardless of backend.
func Page(envs []Envelope, q Query) (QueryResult, error) {
	if q.Paging.Cursor != nil && len(q.Paging.Cursor.Digest) == 0 {
		return QueryResult{}, ErrInvalidCursor
	}
	topics := make(map[string]struct{}, len(q.ContentTopics))
	for _, t := range q.ContentTopics {
		topics[t] = struct{}{}
	}

	type entry struct {
		env    Envelope
		digest []byte
	}
	matched := make([]entry, 0, len(envs))
	for _, env := range envs {
		if _, ok := topics[env.ContentTopic]; !ok {
			continue
		}
		if q.StartTimeNs > 0 && env.TimestampNs < q.StartTimeNs {
			continue
		}
		if q.EndTimeNs > 0 && env.TimestampNs > q.EndTimeNs {
			continue
		}
		matched = append(matched, entry{env: env, digest: env.Digest()})
	}

	less := func(a, b entry) bool {
		if a.env.TimestampNs != b.env.TimestampNs {
			return a.env.TimestampNs < b.env.TimestampNs
		}
		return bytes.Compare(a.digest, b.digest) < 0
	}
	descending := q.Paging.Direction == SortDescending
	sort.SliceStable(matched, func(i, j int) bool {
		if descending {
			return less(matched[j], matched[i])
		}
		return less(matched[i], matched[j])
	})

	start := 0
	if c := q.Paging.Cursor; c != nil {
		start = len(matched)
		for i, e := range matched {
			if e.env.TimestampNs == c.TimestampNs && bytes.Equal(e.digest, c.Digest) {
				start = i + 1
				break
			}
		}
	}

	limit := int(q.Paging.Limit)
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	res := QueryResult{Envelopes: make([]Envelope, 0, end-start)}
	for _, e := range matched[start:end] {
		res.Envelopes = append(res.Envelopes, e.env)
	}
	if end < len(matched) {
		last := matched[end-1]
		res.Next = &PagingInfo{
			Limit:     q.Paging.Limit,
			Direction: q.Paging.Direction,
			Cursor:    &Cursor{Digest: last.digest, TimestampNs: last.env.TimestampNs},
		}
	}
	return res, nil
}
