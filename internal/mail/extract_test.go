package mail

import (
	"reflect"
	"testing"
)

func TestExtractAlertNamesFromAnchors(t *testing.T) {
	body := []byte(`<html><body>
		<p>New transient: <a href="https://www.wis-tns.org/object/2024abc">2024abc</a> reported.</p>
		<p>See also <a href="https://www.wis-tns.org/object/2024xyz">2024xyz</a>.</p>
	</body></html>`)

	got := ExtractAlertNames(body)
	want := []string{"2024abc", "2024xyz"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExtractAlertNamesFallsBackToText(t *testing.T) {
	body := []byte("A new transient 2025zzq has been classified.")

	got := ExtractAlertNames(body)
	want := []string{"2025zzq"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExtractAlertNamesDedupes(t *testing.T) {
	body := []byte("2024abc mentioned twice: 2024abc again.")

	got := ExtractAlertNames(body)
	want := []string{"2024abc"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExtractAlertNamesNoMatch(t *testing.T) {
	body := []byte("Nothing interesting here.")

	if got := ExtractAlertNames(body); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestExtractAlertNamesCaseInsensitive(t *testing.T) {
	body := []byte("Object 2024ABC discovered.")

	got := ExtractAlertNames(body)
	want := []string{"2024abc"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
