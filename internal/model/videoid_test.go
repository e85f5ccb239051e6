package model

import "testing"

func TestParseVideoID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "bare id", in: "dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "bare id with spaces", in: "  dQw4w9WgXcQ ", want: "dQw4w9WgXcQ"},
		{name: "watch url", in: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "watch url extra params", in: "https://youtube.com/watch?v=dQw4w9WgXcQ&t=42s", want: "dQw4w9WgXcQ"},
		{name: "short link", in: "https://youtu.be/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "short link with query", in: "https://youtu.be/dQw4w9WgXcQ?si=abc", want: "dQw4w9WgXcQ"},
		{name: "shorts", in: "https://www.youtube.com/shorts/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "live", in: "https://www.youtube.com/live/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "embed", in: "https://www.youtube.com/embed/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "mobile host", in: "https://m.youtube.com/watch?v=dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "scheme-less", in: "youtube.com/watch?v=dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "empty", in: "", wantErr: true},
		{name: "too short", in: "abc", wantErr: true},
		{name: "too long", in: "dQw4w9WgXcQQ", wantErr: true},
		{name: "bad characters", in: "dQw4w9WgXc!", wantErr: true},
		{name: "unknown host", in: "https://vimeo.com/12345678901", wantErr: true},
		{name: "channel url", in: "https://www.youtube.com/@someone", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseVideoID(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseVideoID(%q) = %q, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVideoID(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("ParseVideoID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
