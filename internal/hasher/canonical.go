// Package hasher computes content-addressed identities for captured payloads.
//
// Identity is SHA-256 over RFC 8785 canonical JSON with a domain prefix.
// Two documents that differ only in whitespace, key order, number spelling
// or Unicode normalization form hash identically.
package hasher

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/anand-gl/jsoncanonicalizer"
	"github.com/tidwall/gjson"
	"golang.org/x/text/unicode/norm"
)

// EncodingError reports a payload that cannot be canonicalized.
type EncodingError struct {
	Reason string
	Err    error
}

func (e *EncodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("encoding error: %s: %v", e.Reason, e.Err)
	}
	return "encoding error: " + e.Reason
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// IsEncodingError returns true if err is (or wraps) an EncodingError.
func IsEncodingError(err error) bool {
	var ee *EncodingError
	return errors.As(err, &ee)
}

// Canonicalize produces RFC 8785 canonical JSON for hashing and storage.
// CRITICAL: This is the ONLY serialization used for content identity.
//
// On top of RFC 8785, strings and keys are NFC normalized. Normalization
// happens before key sorting; escaped code points only become visible after
// the first pass, so a second pass runs when the output is not yet NFC.
func Canonicalize(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, &EncodingError{Reason: "empty payload"}
	}
	if !utf8.Valid(raw) {
		return nil, &EncodingError{Reason: "invalid UTF-8"}
	}
	if !json.Valid(raw) {
		return nil, &EncodingError{Reason: "invalid JSON"}
	}
	if err := checkNumbers(gjson.ParseBytes(raw)); err != nil {
		return nil, err
	}

	out, err := transform(norm.NFC.Bytes(raw))
	if err != nil {
		return nil, err
	}
	if !norm.NFC.IsNormal(out) {
		out, err = transform(norm.NFC.Bytes(out))
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func transform(raw []byte) (out []byte, err error) {
	// The canonicalizer panics on some malformed number literals.
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &EncodingError{Reason: fmt.Sprintf("canonicalizer panic: %v", r)}
		}
	}()

	out, err = jsoncanonicalizer.Transform(raw)
	if err != nil {
		return nil, &EncodingError{Reason: "invalid JSON", Err: err}
	}
	return out, nil
}

// checkNumbers rejects number literals that RFC 8785 would change in value.
// Canonical numbers are IEEE-754 doubles; a literal whose shortest double
// form is a different number would hash the same as that other number.
func checkNumbers(v gjson.Result) error {
	switch {
	case v.Type == gjson.Number:
		if !exactDouble(v.Raw) {
			return &EncodingError{Reason: fmt.Sprintf("number %s exceeds IEEE-754 precision", v.Raw)}
		}
	case v.IsObject() || v.IsArray():
		var err error
		v.ForEach(func(_, e gjson.Result) bool {
			err = checkNumbers(e)
			return err == nil
		})
		return err
	}
	return nil
}

// exactDouble reports whether the literal and its canonical double spelling
// denote the same number. 0.1 passes (its shortest form is 0.1);
// 12345678901234567891 does not.
func exactDouble(lit string) bool {
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return false
	}
	if f == 0 {
		// Underflow to zero: only a literal with no significant digits is zero.
		mantissa, _, _ := strings.Cut(strings.ToLower(lit), "e")
		return strings.Trim(mantissa, "-+0.") == ""
	}
	want, ok := new(big.Rat).SetString(lit)
	if !ok {
		return false
	}
	got, ok := new(big.Rat).SetString(strconv.FormatFloat(f, 'g', -1, 64))
	if !ok {
		return false
	}
	return want.Cmp(got) == 0
}
