package push

import "testing"

func TestIsValidToken(t *testing.T) {
	cases := []struct {
		token string
		want  bool
	}{
		{"ExponentPushToken[abc123]", true},
		{"ExpoPushToken[abc123]", true},
		{"ExponentPushToken[]", false},
		{"exponentpushtoken[abc]", false},
		{"FCMToken[abc]", false},
		{"", false},
		{"ExponentPushToken[abc", false},
		{"ExponentPushToken[a[b]c]", false},
	}

	for _, tc := range cases {
		if got := IsValidToken(tc.token); got != tc.want {
			t.Errorf("IsValidToken(%q) = %v, want %v", tc.token, got, tc.want)
		}
	}
}

func TestFilterValidTokens(t *testing.T) {
	tokens := []string{
		"ExponentPushToken[one]",
		"garbage",
		"ExpoPushToken[two]",
		"",
	}

	valid := FilterValidTokens(tokens)
	if len(valid) != 2 {
		t.Fatalf("expected 2 valid tokens, got %d: %v", len(valid), valid)
	}
	if valid[0] != "ExponentPushToken[one]" || valid[1] != "ExpoPushToken[two]" {
		t.Fatalf("unexpected filtered tokens: %v", valid)
	}
}

func TestFilterValidTokensAllInvalid(t *testing.T) {
	valid := FilterValidTokens([]string{"nope", "also-nope"})
	if len(valid) != 0 {
		t.Fatalf("expected no valid tokens, got %v", valid)
	}
}
