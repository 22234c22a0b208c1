package core

// validation.go decides whether a raw row is admissible into the Dataset.
//
// Two rules are applied, in order:
//  1. Charset: Track, Artist and Album Name text may only contain ASCII
//     letters, digits, space and . , - ' & ( ) ! ?. Anything else is treated
//     as encoding damage.
//  2. Blacklist: rows whose Artist exactly matches a known aggregator
//     channel are dropped.
//
// Null and numeric cells never trigger the charset rule.

// DefaultArtistBlacklist is the set of channel names removed by default.
var DefaultArtistBlacklist = []string{
	"MUSIC LAB JPN",
	"LOVE BGM JPN",
	"sped up 8282",
	"DJ MIX NON-STOP CHANNEL",
	"WORK OUT GYM - DJ MIX",
}

// checkedColumns are the text fields inspected by the charset rule.
var checkedColumns = [...]string{ColTrack, ColArtist, ColAlbumName}

// Verdict is the outcome of validating one row.
type Verdict int

const (
	Admissible Verdict = iota
	RejectedCharset
	RejectedBlacklist
)

// String returns the verdict's log and metric label.
func (v Verdict) String() string {
	switch v {
	case Admissible:
		return "admissible"
	case RejectedCharset:
		return "charset"
	case RejectedBlacklist:
		return "blacklist"
	default:
		return "unknown"
	}
}

// Validator applies the admissibility rules. The zero value has an empty
// blacklist; use NewValidator for the configured one.
type Validator struct {
	blacklist map[string]struct{}
}

// NewValidator creates a validator with the given blacklist. A nil
// blacklist selects DefaultArtistBlacklist; an empty non-nil one disables
// the blacklist rule.
func NewValidator(blacklist []string) *Validator {
	if blacklist == nil {
		blacklist = DefaultArtistBlacklist
	}
	set := make(map[string]struct{}, len(blacklist))
	for _, name := range blacklist {
		set[name] = struct{}{}
	}
	return &Validator{blacklist: set}
}

// Check returns the first rule that rejects the row, or Admissible.
func (v *Validator) Check(row RawRow) Verdict {
	for _, col := range checkedColumns {
		if s, ok := row.Get(col).AsText(); ok && !IsAcceptedText(s) {
			return RejectedCharset
		}
	}

	if artist, ok := row.Get(ColArtist).AsText(); ok {
		if _, banned := v.blacklist[artist]; banned {
			return RejectedBlacklist
		}
	}

	return Admissible
}

// IsAdmissible reports whether the row passes every rule.
func (v *Validator) IsAdmissible(row RawRow) bool {
	return v.Check(row) == Admissible
}

// Blacklisted reports whether an artist name is on the blacklist.
func (v *Validator) Blacklisted(artist string) bool {
	_, ok := v.blacklist[artist]
	return ok
}

// IsAcceptedText reports whether every character of s is in the accepted set.
// The empty string is accepted.
func IsAcceptedText(s string) bool {
	for _, r := range s {
		if !isAcceptedRune(r) {
			return false
		}
	}
	return true
}

func isAcceptedRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	switch r {
	case ' ', '.', ',', '-', '\'', '&', '(', ')', '!', '?':
		return true
	}
	return false
}
