package grep

import "errors"

var (
	// ErrMalformedTarget means the file/repo argument list could not be
	// parsed, e.g. a "[" without its closing "]".
	ErrMalformedTarget = errors.New("malformed target")

	// ErrMalformedRepo means a repository argument is not owner/repo.
	ErrMalformedRepo = errors.New("malformed repository")

	// ErrPatternRequiresExplicitRepos means the pattern cannot be combined
	// with code-search qualifiers, so repositories must be named.
	ErrPatternRequiresExplicitRepos = errors.New("grep with an actual regexp requires explicit repos")

	// ErrInvalidPattern means the pattern failed to compile.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrTreeTruncated means a large file could not be located because
	// the host truncated the tree listing.
	ErrTreeTruncated = errors.New("tree request truncated; can't get contents")

	// ErrTreeEntryNotFound means the tree has no entry for the path.
	ErrTreeEntryNotFound = errors.New("couldn't find tree entry")

	// ErrUnsupportedEncoding means a blob came back in an encoding other
	// than base64.
	ErrUnsupportedEncoding = errors.New("unknown data encoding")
)
