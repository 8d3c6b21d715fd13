package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"khanevadati/internal/aggregate"
	"khanevadati/internal/core"
)

const maxBodyBytes = 1 << 20

// HeaderUserID carries the id of the family member making the request.
const HeaderUserID = "X-User-ID"

// decodeBody reads a JSON object into dst, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return core.Errorf(core.KindInvalid, "request body is required")
		}
		return core.Errorf(core.KindInvalid, "invalid request body: %v", err)
	}
	if dec.More() {
		return core.Errorf(core.KindInvalid, "request body must hold a single JSON object")
	}
	return nil
}

func userID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return "", core.Errorf(core.KindInvalid, "%s header is required", HeaderUserID)
	}
	return id, nil
}

// Amount is a decimal amount sent either as a JSON string ("1250.50",
// "1250,50") or a JSON number.
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = Amount(n.String())
	return nil
}

// Money parses a required positive amount.
func (a Amount) Money() (core.Money, error) {
	return core.ParseAmount(string(a))
}

// OptionalMoney parses an amount that may be omitted or zero.
func (a Amount) OptionalMoney() (core.Money, error) {
	return core.ParseOptionalAmount(string(a))
}

// dateValue parses s as a calendar day; empty yields the zero Date.
func dateValue(s string) (core.Date, error) {
	if strings.TrimSpace(s) == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}

func timeValue(s string) (time.Time, error) {
	d, err := dateValue(s)
	return d.Time, err
}

// ownerQuery reads ?owner=, defaulting to all owners.
func ownerQuery(r *http.Request) (core.OwnerID, error) {
	owner := core.OwnerID(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("owner"))))
	if owner == "" || owner == core.OwnerAll {
		return core.OwnerAll, nil
	}
	if err := owner.Validate(); err != nil {
		return "", err
	}
	return owner, nil
}

// rangeQuery reads ?from= and ?to=, both inclusive calendar days.
func rangeQuery(r *http.Request) (aggregate.DateRange, error) {
	q := r.URL.Query()
	from, err := dateValue(q.Get("from"))
	if err != nil {
		return aggregate.DateRange{}, err
	}
	to, err := dateValue(q.Get("to"))
	if err != nil {
		return aggregate.DateRange{}, err
	}
	rng := aggregate.DateRange{From: from.Time}
	if !to.IsZero() {
		rng.To = to.Time.Add(24*time.Hour - time.Nanosecond)
	}
	if !rng.From.IsZero() && !rng.To.IsZero() && rng.To.Before(rng.From) {
		return aggregate.DateRange{}, core.Errorf(core.KindInvalid, "range end %s is before start %s", to, from)
	}
	return rng, nil
}

// intQuery reads a non-negative integer query parameter.
func intQuery(r *http.Request, key string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, core.Errorf(core.KindInvalid, "invalid %s %q", key, v)
	}
	return n, nil
}
