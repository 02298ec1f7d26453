package store

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/sibr/internal/model"
)

// PageToken is the sort key of the last row a caller has seen.
// A query resumed from a token returns rows strictly after it in the
// requested order.
//
// The key includes first_seen, which moves earlier when older provenance
// for the same content arrives. A row that moves behind the cursor between
// pages is skipped by an ascending walk and may be returned twice by a
// descending one.
type PageToken struct {
	FirstSeen time.Time
	EntityID  string
	Hash      model.Hash
}

// TokenFor returns the token that resumes a query after v.
func TokenFor(v model.UniqueView) PageToken {
	return PageToken{FirstSeen: v.FirstSeen, EntityID: v.EntityID, Hash: v.Hash}
}

// Encode renders the token as an opaque URL-safe string.
// Layout before encoding: "<micros>:<entity id>:<hash>". Hashes are hex, so
// the last colon always splits entity id from hash.
func (p PageToken) Encode() string {
	raw := strconv.FormatInt(toMicros(p.FirstSeen), 10) + ":" + p.EntityID + ":" + string(p.Hash)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParsePageToken decodes a token produced by Encode.
func ParsePageToken(s string) (PageToken, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return PageToken{}, &InvalidPageTokenError{Token: s, Err: err}
	}

	text := string(raw)
	first := strings.IndexByte(text, ':')
	last := strings.LastIndexByte(text, ':')
	if first < 0 || first == last {
		return PageToken{}, &InvalidPageTokenError{Token: s, Err: errors.New("missing separators")}
	}

	micros, err := strconv.ParseInt(text[:first], 10, 64)
	if err != nil {
		return PageToken{}, &InvalidPageTokenError{Token: s, Err: err}
	}
	hash := text[last+1:]
	if hash == "" {
		return PageToken{}, &InvalidPageTokenError{Token: s, Err: errors.New("empty hash")}
	}

	return PageToken{
		FirstSeen: fromMicros(micros),
		EntityID:  text[first+1 : last],
		Hash:      model.Hash(hash),
	}, nil
}
