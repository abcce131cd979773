package investigate

import "regexp"

// failureSignature pairs a diagnostic category with an error-text pattern.
// Signatures are checked in order and the first match wins, so specific
// shapes (a cast that failed because the target was a timestamp) must
// appear before the generic ones (any failed cast).
type failureSignature struct {
	kind FailureKind
	re   *regexp.Regexp
}

var failureSignatures = []failureSignature{
	// Timeouts and cancellations. These never get a textual repair, so
	// they outrank everything else.
	{KindTimeout, regexp.MustCompile(`(?i)statement timeout`)},
	{KindTimeout, regexp.MustCompile(`(?i)canceling statement`)},
	{KindTimeout, regexp.MustCompile(`(?i)deadline exceeded`)},
	{KindTimeout, regexp.MustCompile(`(?i)exceeded.{0,40}time limit`)},
	{KindTimeout, regexp.MustCompile(`(?i)execution time exceeded`)},
	{KindTimeout, regexp.MustCompile(`(?i)\btime(d)?[ -]?out\b`)},

	// Temporal parse and cast failures. Postgres 22007/22008, MySQL 1292,
	// and the lake engines' INVALID_CAST_ARGUMENT all land here.
	{KindDateFormat, regexp.MustCompile(`(?i)invalid input syntax for type (date|time|timestamp)`)},
	{KindDateFormat, regexp.MustCompile(`(?i)date/time field value out of range`)},
	{KindDateFormat, regexp.MustCompile(`(?i)incorrect (date|datetime|timestamp|time) value`)},
	{KindDateFormat, regexp.MustCompile(`(?i)cast[^;]{0,80}? to (a )?(date|timestamp|time)\b`)},
	{KindDateFormat, regexp.MustCompile(`(?i)not a valid (date|time|timestamp)`)},
	{KindDateFormat, regexp.MustCompile(`(?i)invalid format:`)},
	{KindDateFormat, regexp.MustCompile(`(?i)failed to parse (date|time|timestamp)`)},

	// Missing or misspelled columns. Postgres 42703, MySQL 1054, and the
	// lake engines' COLUMN_NOT_FOUND.
	{KindUnknownColumn, regexp.MustCompile(`(?i)column ["'` + "`" + `]?[\w.$]+["'` + "`" + `]? does not exist`)},
	{KindUnknownColumn, regexp.MustCompile(`(?i)unknown column`)},
	{KindUnknownColumn, regexp.MustCompile(`(?i)no such column`)},
	{KindUnknownColumn, regexp.MustCompile(`(?i)invalid column name`)},
	{KindUnknownColumn, regexp.MustCompile(`(?i)column ["'` + "`" + `]?[\w.$]+["'` + "`" + `]? cannot be resolved`)},

	// Non-temporal type conflicts.
	{KindTypeMismatch, regexp.MustCompile(`(?i)operator does not exist:`)},
	{KindTypeMismatch, regexp.MustCompile(`(?i)invalid input syntax for type \w+`)},
	{KindTypeMismatch, regexp.MustCompile(`(?i)cannot (be )?cast`)},
	{KindTypeMismatch, regexp.MustCompile(`(?i)conversion failed`)},
	{KindTypeMismatch, regexp.MustCompile(`(?i)(data )?type mismatch`)},
	{KindTypeMismatch, regexp.MustCompile(`(?i)incompatible types?`)},

	// Statements that never parsed.
	{KindSyntax, regexp.MustCompile(`(?i)syntax error`)},
	{KindSyntax, regexp.MustCompile(`(?i)error in your sql syntax`)},
	{KindSyntax, regexp.MustCompile(`(?i)unexpected token`)},
	{KindSyntax, regexp.MustCompile(`(?i)mismatched input`)},
	{KindSyntax, regexp.MustCompile(`(?i)sql compilation error`)},
}

// Classify maps an engine error message onto a FailureKind. Unrecognized
// text comes back KindUnclassified, which downstream treats as
// not-auto-fixable.
func Classify(errorText string) FailureKind {
	if errorText == "" {
		return KindUnclassified
	}
	for _, sig := range failureSignatures {
		if sig.re.MatchString(errorText) {
			return sig.kind
		}
	}
	return KindUnclassified
}
