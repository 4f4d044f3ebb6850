package security

import "testing"

func TestTextSanitizer_Clean(t *testing.T) {
	s := NewTextSanitizer()
	tests := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"  padded  ", "padded"},
		{"<b>bold</b> move", "bold move"},
		{`<script>alert(1)</script>hi`, "hi"},
		{"Tom & Jerry", "Tom &amp; Jerry"},
		{"I <3 you", "I &lt;3 you"},
		{"&lt;script&gt;alert(1)&lt;/script&gt;", "&lt;script&gt;alert(1)&lt;/script&gt;"},
		{`<img src=x onerror="alert(1)">caption`, "caption"},
	}
	for _, tt := range tests {
		if got := s.Clean(tt.in); got != tt.want {
			t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTextSanitizer_CleanIsIdempotent(t *testing.T) {
	s := NewTextSanitizer()
	for _, in := range []string{
		"Tom & Jerry",
		"&lt;b&gt;still text&lt;/b&gt;",
		"&amp;lt;script&amp;gt;",
		"I <3 you",
	} {
		once := s.Clean(in)
		if twice := s.Clean(once); twice != once {
			t.Errorf("Clean(Clean(%q)) = %q, want %q", in, twice, once)
		}
	}
}
