package push

import "regexp"

// Expo device tokens look like ExponentPushToken[xxxxxxxx]. Anything else is
// dropped before the provider call; one garbage token must not block the rest
// of the batch.
var tokenPattern = regexp.MustCompile(`^Expo(nent)?PushToken\[[^\[\]]+\]$`)

// IsValidToken reports whether a string is a well-formed Expo push token
func IsValidToken(token string) bool {
	return tokenPattern.MatchString(token)
}

// FilterValidTokens returns the well-formed subset of a token list
func FilterValidTokens(tokens []string) []string {
	valid := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if IsValidToken(t) {
			valid = append(valid, t)
		}
	}
	return valid
}
