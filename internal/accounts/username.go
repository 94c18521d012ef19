package accounts

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/zoner/backend/internal/apperr"
)

const (
	maxSuggestions = 5
	candidatePool  = 48
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9._]{3,15}$`)

var (
	requestSuffixes = []string{"", "_", ".", "1", "2", "3", "123", "22"}
	fillerWords     = []string{"the", "real", "true", "only", "just", "thisis", "meet", "hello", "im", "its"}
	genericPrefixes = []string{"user", "people", "hello", "im", "its", "meet", "true", "only", "the", "just"}
)

// NormalizeUsername lowercases the handle, strips a leading "@" and returns
// it in the stored "@handle" form.
func NormalizeUsername(input string) (string, error) {
	clean := cleanUsername(input)
	if !usernamePattern.MatchString(clean) {
		return "", apperr.Validation("invalid username format, use 3-15 characters: a-z, 0-9, dot or underscore")
	}
	return "@" + clean, nil
}

func cleanUsername(input string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), "@")))
}

// UsernameCheck reports availability with alternatives.
type UsernameCheck struct {
	Username    string
	Available   bool
	Suggestions []string
}

// CheckUsername reports whether username is free for userID, suggesting
// alternatives when it is not.
func (s *Service) CheckUsername(ctx context.Context, username, userID string) (UsernameCheck, error) {
	normalized, err := NormalizeUsername(username)
	if err != nil {
		return UsernameCheck{}, err
	}
	taken, err := s.Users.UsernameTaken(ctx, normalized, userID)
	if err != nil {
		return UsernameCheck{}, fmt.Errorf("check username: %w", err)
	}
	result := UsernameCheck{Username: normalized, Available: !taken}
	if taken {
		result.Suggestions, err = s.suggestUsernames(ctx, normalized, userID)
		if err != nil {
			return UsernameCheck{}, err
		}
	}
	return result, nil
}

func (s *Service) suggestUsernames(ctx context.Context, requested, userID string) ([]string, error) {
	base := cleanUsername(requested)

	var first, last string
	if userID != "" {
		if u, err := s.Users.FindByID(ctx, userID); err == nil {
			first, last = splitName(u.Name)
		}
	}

	candidates := usernameCandidates(base, first, last, s.now().Year(), s.digits)
	taken, err := s.Users.TakenUsernames(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("check username suggestions: %w", err)
	}

	suggestions := make([]string, 0, maxSuggestions)
	for _, c := range candidates {
		if taken[c] {
			continue
		}
		suggestions = append(suggestions, c)
		if len(suggestions) == maxSuggestions {
			break
		}
	}
	if len(suggestions) == 0 {
		suggestions = append(suggestions, "@"+truncate(base, 5)+s.digits(3), "@user"+s.digits(5))
	}
	return suggestions, nil
}

// usernameCandidates builds "@"-prefixed handles, request based first, then
// name based, then generic.
func usernameCandidates(base, first, last string, year int, digits func(int) string) []string {
	var raw []string
	for _, suffix := range requestSuffixes {
		raw = append(raw, base+suffix)
	}
	for _, word := range fillerWords {
		raw = append(raw, word+base, base+word)
	}
	if first != "" {
		yy := fmt.Sprintf("%02d", year%100)
		raw = append(raw,
			first,
			first+last,
			first+"."+last,
			first+"_"+last,
			first[:1]+last,
			first+yy,
			first+fmt.Sprint(year),
			first+digits(1),
			first+digits(3),
			"real"+first,
			"the"+first,
			first+"official",
		)
	}
	for _, prefix := range genericPrefixes {
		raw = append(raw, prefix+digits(4))
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, candidatePool)
	for _, c := range raw {
		if !usernamePattern.MatchString(c) {
			continue
		}
		handle := "@" + c
		if _, ok := seen[handle]; ok {
			continue
		}
		seen[handle] = struct{}{}
		out = append(out, handle)
		if len(out) == candidatePool {
			break
		}
	}
	return out
}

func splitName(name string) (string, string) {
	parts := strings.Fields(strings.ToLower(name))
	if len(parts) == 0 {
		return "", ""
	}
	clean := func(s string) string {
		return strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				return r
			}
			return -1
		}, s)
	}
	first := clean(parts[0])
	var last strings.Builder
	for _, p := range parts[1:] {
		last.WriteString(clean(p))
	}
	if first == "" {
		return "", ""
	}
	return first, last.String()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func (s *Service) digits(n int) string {
	code, err := randomDigits(n)
	if err != nil {
		return strings.Repeat("0", n)
	}
	return code
}
