package deck

import (
	"errors"
	"reflect"
	"testing"
)

func TestDecodeBlob(t *testing.T) {
	tests := []struct {
		name   string
		blob   string
		want   Side
		wantOK bool
	}{
		{"empty", "", Side{}, false},
		{"text only", "cat", Side{Text: "cat"}, true},
		{"text with sound", "cat[sound:cat.wav]", Side{Text: "cat", AudioFileName: "cat.wav"}, true},
		{"sound only", "[sound:cat.wav]", Side{Text: "", AudioFileName: "cat.wav"}, true},
		{"marker not at end", "cat[sound:cat.wav] meow", Side{Text: "cat[sound:cat.wav] meow"}, true},
		{"trailing bracket without marker", "array[0]", Side{Text: "array[0]"}, true},
		{"empty marker", "cat[sound:]", Side{Text: "cat"}, true},
		{"spaces preserved", " two words ", Side{Text: " two words "}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeBlob(tt.blob)
			if ok != tt.wantOK {
				t.Fatalf("DecodeBlob(%q) ok = %v, want %v", tt.blob, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("DecodeBlob(%q) = %+v, want %+v", tt.blob, got, tt.want)
			}
		})
	}
}

func TestDecodeRow(t *testing.T) {
	tests := []struct {
		name    string
		fields  []string
		want    *Card
		wantErr bool
	}{
		{
			name:   "plain card",
			fields: []string{"cat", "chat"},
			want:   &Card{Front: Side{Text: "cat"}, Back: Side{Text: "chat"}},
		},
		{
			name:   "extra columns ignored",
			fields: []string{"cat", "chat", "noise"},
			want:   &Card{Front: Side{Text: "cat"}, Back: Side{Text: "chat"}},
		},
		{
			name:   "audio on both sides",
			fields: []string{"cat[sound:a.wav]", "chat[sound:b.wav]"},
			want: &Card{
				Front: Side{Text: "cat", AudioFileName: "a.wav"},
				Back:  Side{Text: "chat", AudioFileName: "b.wav"},
			},
		},
		{name: "single column", fields: []string{"cat"}, wantErr: true},
		{name: "empty back", fields: []string{"cat", ""}, wantErr: true},
		{name: "empty front", fields: []string{"", "chat"}, wantErr: true},
		{name: "no fields", fields: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRow(tt.fields)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeRow() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedRow) {
					t.Errorf("expected ErrMalformedRow, got %v", err)
				}
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodeRow() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEncodeCard(t *testing.T) {
	card := &Card{Front: Side{Text: "cat", AudioFileName: "cat_2024-01-01_00-00-00.wav"}, Back: Side{Text: "chat"}}
	want := "cat[sound:cat_2024-01-01_00-00-00.wav]\tchat"
	if got := EncodeCard(card); got != want {
		t.Errorf("EncodeCard() = %q, want %q", got, want)
	}
}

func TestDelimitedRoundTrip(t *testing.T) {
	cards := []*Card{
		{Front: Side{Text: "cat"}, Back: Side{Text: "chat"}},
		{Front: Side{Text: "dog", AudioFileName: "dog.wav"}, Back: Side{Text: "chien", AudioFileName: "chien_2024-01-01_00-00-00.wav"}},
		{Front: Side{Text: "", AudioFileName: "only-audio.wav"}, Back: Side{Text: "x"}},
		{Front: Side{Text: "ябълка"}, Back: Side{Text: "apple [noun]"}},
		{Front: Side{Text: "a, \"quoted\" cell"}, Back: Side{Text: "b", AudioFileName: "b b.wav"}},
	}

	for _, c := range cards {
		got, err := DecodeLine(EncodeCard(c))
		if err != nil {
			t.Fatalf("DecodeLine(EncodeCard(%+v)) error: %v", c, err)
		}
		if !reflect.DeepEqual(got, c) {
			t.Errorf("round trip = %+v, want %+v", got, c)
		}
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"deck.txt", Delimited, false},
		{"DECK.TXT", Delimited, false},
		{"/a/b/deck.csv", CSV, false},
		{"deck.zip", "", true},
		{"deck", "", true},
	}

	for _, tt := range tests {
		got, err := FormatFromPath(tt.path)
		if (err != nil) != tt.wantErr {
			t.Errorf("FormatFromPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			continue
		}
		if tt.wantErr && !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("expected ErrUnsupportedFormat, got %v", err)
		}
		if got != tt.want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestFaceFlip(t *testing.T) {
	if Front.Flip() != Back || Back.Flip() != Front {
		t.Error("Flip should toggle between front and back")
	}
	if Face(2).Valid() {
		t.Error("Face(2) should not be valid")
	}
}

func TestValidateText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"plain", "cat", false},
		{"inner spaces and brackets", "array[0] of cats", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"tab", "a\tb", true},
		{"newline", "a\nb", true},
		{"carriage return", "a\rb", true},
		{"sound marker", "cat[sound:cat.wav]", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateText(tt.text)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateText(%q) error = %v, wantErr %v", tt.text, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidText) {
				t.Errorf("ValidateText(%q) = %v, want ErrInvalidText", tt.text, err)
			}
		})
	}
}

func TestValidTextSurvivesRoundTrip(t *testing.T) {
	for _, text := range []string{"cat", " le chat ", "array[0]"} {
		if err := ValidateText(text); err != nil {
			t.Fatalf("ValidateText(%q) error: %v", text, err)
		}
		card := &Card{Front: Side{Text: text, AudioFileName: "a.wav"}, Back: Side{Text: "back"}}
		got, err := DecodeLine(EncodeCard(card))
		if err != nil {
			t.Fatalf("DecodeLine() error: %v", err)
		}
		if *got != *card {
			t.Errorf("round trip of %q = %+v, want %+v", text, got, card)
		}
	}
}
