package avatars

import "testing"

func TestKey_ByContentType(t *testing.T) {
	cases := []struct {
		contentType string
		want        string
	}{
		{"image/png", "avatars/user-1.png"},
		{"image/jpeg", "avatars/user-1.jpg"},
		{"image/webp", "avatars/user-1.webp"},
		{"application/octet-stream", "avatars/user-1.png"},
	}
	for _, tc := range cases {
		if got := Key("user-1", tc.contentType); got != tc.want {
			t.Errorf("Key(%q) = %q, want %q", tc.contentType, got, tc.want)
		}
	}
}

func TestURL(t *testing.T) {
	store := &Store{cfg: Config{PublicBaseURL: "https://cdn.prepgate.in/"}}

	if got := store.URL("avatars/user-1.png"); got != "https://cdn.prepgate.in/avatars/user-1.png" {
		t.Errorf("Unexpected CDN URL %q", got)
	}
	if got := store.URL("https://lh3.example.com/photo.jpg"); got != "https://lh3.example.com/photo.jpg" {
		t.Errorf("External URLs should pass through, got %q", got)
	}
	if got := store.URL(""); got != "" {
		t.Errorf("Empty key should resolve to empty URL, got %q", got)
	}

	gateway := &Store{cfg: Config{}}
	if got := gateway.URL("avatars/user-1.png"); got != "/v1/profile/avatar" {
		t.Errorf("Without a CDN the gateway route serves avatars, got %q", got)
	}
}
