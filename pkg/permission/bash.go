package permission

import (
	"path/filepath"
	"strings"
)

// SplitCommand decomposes a shell command string into its atomic commands,
// splitting on chain/pipe/sequence/background operators and recursively
// unwrapping subshells and command substitutions. Quoted operators are left
// alone. Order of first occurrence is preserved.
func SplitCommand(command string) []string {
	var atoms []string
	for _, part := range splitOnOperators(command) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		// A parenthesized group is purely its inner command list.
		if inner, ok := unwrapGroup(part); ok {
			atoms = append(atoms, SplitCommand(inner)...)
			continue
		}

		atoms = append(atoms, part)

		// Command substitutions embedded in the command run too.
		for _, sub := range extractSubstitutions(part) {
			atoms = append(atoms, SplitCommand(sub)...)
		}
	}
	return atoms
}

// splitOnOperators splits on &&, ||, ;, |, & and newlines at depth zero,
// outside quotes.
func splitOnOperators(s string) []string {
	var (
		parts   []string
		current strings.Builder
		depth   int
		quote   byte
	)

	flush := func() {
		parts = append(parts, current.String())
		current.Reset()
	}

	for i := 0; i < len(s); i++ {
		c := s[i]

		if quote != 0 {
			current.WriteByte(c)
			if c == quote && (quote != '"' || i == 0 || s[i-1] != '\\') {
				quote = 0
			}
			continue
		}

		switch c {
		case '\'', '"', '`':
			if c == '`' {
				// backtick substitution: consume as part of the token,
				// extraction happens later
				quote = '`'
				current.WriteByte(c)
				continue
			}
			quote = c
			current.WriteByte(c)

		case '(':
			depth++
			current.WriteByte(c)
		case ')':
			if depth > 0 {
				depth--
			}
			current.WriteByte(c)

		case '\\':
			current.WriteByte(c)
			if i+1 < len(s) {
				i++
				current.WriteByte(s[i])
			}

		case '&', '|':
			if depth > 0 {
				current.WriteByte(c)
				continue
			}
			// '&' directly after '>' belongs to a redirect like 2>&1.
			if c == '&' && i > 0 && s[i-1] == '>' {
				current.WriteByte(c)
				continue
			}
			if i+1 < len(s) && s[i+1] == c {
				i++ // && or ||
			}
			flush()

		case ';', '\n':
			if depth > 0 {
				current.WriteByte(c)
				continue
			}
			flush()

		default:
			current.WriteByte(c)
		}
	}
	flush()
	return parts
}

// unwrapGroup reports whether an atom is a single parenthesized group and
// returns its content.
func unwrapGroup(s string) (string, bool) {
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return "", false
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return "", false // e.g. "(a) && (b)" is not one group
			}
		}
	}
	return s[1 : len(s)-1], true
}

// extractSubstitutions returns the contents of $(...) and `...` segments.
func extractSubstitutions(s string) []string {
	var subs []string

	for i := 0; i < len(s); i++ {
		if s[i] == '$' && i+1 < len(s) && s[i+1] == '(' {
			depth := 0
			for j := i + 1; j < len(s); j++ {
				switch s[j] {
				case '(':
					depth++
				case ')':
					depth--
					if depth == 0 {
						subs = append(subs, s[i+2:j])
						i = j
						j = len(s)
					}
				}
			}
		} else if s[i] == '`' {
			end := strings.IndexByte(s[i+1:], '`')
			if end >= 0 {
				subs = append(subs, s[i+1:i+1+end])
				i += end + 1
			}
		}
	}
	return subs
}

// NormalizeCommand canonicalizes one atomic command: whitespace is collapsed,
// leading environment-variable assignments are stripped, and output
// redirections are removed. The same function runs at rule-save and
// rule-check time; the two must stay byte-identical for rules to match.
func NormalizeCommand(atomic string) string {
	tokens := tokenize(atomic)

	// Strip leading NAME=value assignments.
	start := 0
	for start < len(tokens) && isEnvAssignment(tokens[start]) {
		start++
	}
	tokens = tokens[start:]

	// Strip redirections.
	var kept []string
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if isRedirectOperator(tok) {
			// Operators like ">" take a target token; combined forms like
			// "2>&1" or ">out.txt" do not.
			if needsTarget(tok) && i+1 < len(tokens) {
				i++
			}
			continue
		}
		kept = append(kept, tok)
	}

	return strings.Join(kept, " ")
}

func isEnvAssignment(tok string) bool {
	eq := strings.IndexByte(tok, '=')
	if eq <= 0 {
		return false
	}
	name := tok[:eq]
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || i > 0 && c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// isRedirectOperator reports whether a token is (or begins with) an output
// or input redirection.
func isRedirectOperator(tok string) bool {
	trimmed := strings.TrimLeft(tok, "0123456789")
	if trimmed == "" {
		return false
	}
	return strings.HasPrefix(trimmed, ">") || strings.HasPrefix(trimmed, "<") ||
		strings.HasPrefix(trimmed, "&>")
}

// needsTarget reports whether the redirection token is bare and consumes the
// following token as its target.
func needsTarget(tok string) bool {
	trimmed := strings.TrimLeft(tok, "0123456789")
	switch trimmed {
	case ">", ">>", "<", "&>", "&>>":
		return true
	}
	return false
}

// tokenize splits a command on whitespace, keeping quoted segments together.
func tokenize(s string) []string {
	var (
		tokens  []string
		current strings.Builder
		quote   byte
	)

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			current.WriteByte(c)
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
			current.WriteByte(c)
		case ' ', '\t':
			flush()
		case '\\':
			current.WriteByte(c)
			if i+1 < len(s) {
				i++
				current.WriteByte(s[i])
			}
		default:
			current.WriteByte(c)
		}
	}
	flush()
	return tokens
}

// safeBuiltins are benign commands allowed regardless of arguments.
var safeBuiltins = map[string]bool{
	"pwd":   true,
	"echo":  true,
	"true":  true,
	"false": true,
	"which": true,
}

// IsSafeCommand classifies an atomic command as benign. Directory listing and
// directory changes are safe only when their target stays inside the working
// directory tree. Safe commands never require a rule and are never persisted.
func IsSafeCommand(atomic, workdir string) bool {
	tokens := tokenize(NormalizeCommand(atomic))
	if len(tokens) == 0 {
		return true
	}

	name := tokens[0]
	if safeBuiltins[name] {
		return true
	}

	switch name {
	case "ls", "cd":
		for _, arg := range tokens[1:] {
			if strings.HasPrefix(arg, "-") {
				continue
			}
			if !withinWorkdir(arg, workdir) {
				return false
			}
		}
		return true
	}
	return false
}

// withinWorkdir reports whether a path argument resolves inside workdir.
func withinWorkdir(arg, workdir string) bool {
	if workdir == "" {
		return false
	}
	arg = strings.Trim(arg, `"'`)
	target := arg
	if !filepath.IsAbs(target) {
		target = filepath.Join(workdir, target)
	}
	target = filepath.Clean(target)
	workdir = filepath.Clean(workdir)
	return target == workdir || strings.HasPrefix(target, workdir+string(filepath.Separator))
}

// ExpandRules returns the allow-rules to persist for a durable grant of a
// compound command: one normalized entry per non-safe atomic command,
// deduplicated, in first-occurrence order. An all-safe command yields none.
func ExpandRules(command, workdir string) []string {
	seen := map[string]bool{}
	var rules []string
	for _, atom := range SplitCommand(command) {
		if IsSafeCommand(atom, workdir) {
			continue
		}
		normalized := NormalizeCommand(atom)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		rules = append(rules, normalized)
	}
	return rules
}
