package agent

import (
	"testing"
)

func TestSentenceBuffer(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []string
		rest   string
	}{
		{
			name:   "single sentence waits for following space",
			chunks: []string{"Xin chào anh."},
			rest:   "Xin chào anh.",
		},
		{
			name:   "streamed words",
			chunks: []string{"Chào", " anh.", " Em", " có", " thể", " giúp", " gì", " ạ?"},
			want:   []string{"Chào anh."},
			rest:   "Em có thể giúp gì ạ?",
		},
		{
			name:   "short fragment joins next sentence",
			chunks: []string{"Dạ. Em là trợ lý ảo. "},
			want:   []string{"Dạ. Em là trợ lý ảo."},
		},
		{
			name:   "ellipsis and question",
			chunks: []string{"Để em xem… ", "Anh cần gì nữa không? ", "Cảm ơn"},
			want:   []string{"Để em xem…", "Anh cần gì nữa không?"},
			rest:   "Cảm ơn",
		},
		{
			name:   "decimal is not a boundary",
			chunks: []string{"Giá là 3.5 triệu đồng. "},
			want:   []string{"Giá là 3.5 triệu đồng."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b sentenceBuffer
			var got []string
			for _, c := range tt.chunks {
				got = append(got, b.Add(c)...)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("sentences = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sentence %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
			if rest := b.Flush(); rest != tt.rest {
				t.Errorf("Flush() = %q, want %q", rest, tt.rest)
			}
		})
	}
}
