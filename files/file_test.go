package files

import (
	"testing"
)

func TestStoredName(t *testing.T) {
	t.Run("identical inputs always produce identical names", func(t *testing.T) {
		a := StoredName(3, "token-123", "report.pdf")
		b := StoredName(3, "token-123", "report.pdf")
		if a != b {
			t.Errorf("expected identical names, got %q and %q", a, b)
		}
	})
	t.Run("name contains tenant, token and filename", func(t *testing.T) {
		actual := StoredName(3, "token-123", "report.pdf")
		expected := "3-token-123-report.pdf"
		if actual != expected {
			t.Errorf("expected %q, got %q", expected, actual)
		}
	})
	t.Run("non-positive tenants collapse to the default tenant", func(t *testing.T) {
		if StoredName(0, "t", "f.txt") != StoredName(-5, "t", "f.txt") {
			t.Error("expected tenant 0 and -5 to produce the same name")
		}
	})
}

func TestObjectKey(t *testing.T) {
	actual := ObjectKey(7, "abc", "photo.jpg")
	expected := "7/abc-photo.jpg"
	if actual != expected {
		t.Errorf("expected %q, got %q", expected, actual)
	}
}

func TestScaledFilename(t *testing.T) {
	tests := []struct {
		filename string
		width    int
		expected string
	}{
		{filename: "photo.jpg", width: 640, expected: "photo-640.jpg"},
		{filename: "archive.tar.gz", width: 100, expected: "archive.tar-100.gz"},
		{filename: "noextension", width: 32, expected: "noextension-32"},
	}
	for _, test := range tests {
		t.Run(test.filename, func(t *testing.T) {
			actual := ScaledFilename(test.filename, test.width)
			if actual != test.expected {
				t.Errorf("expected %q, got %q", test.expected, actual)
			}
		})
	}
}

func TestParseBackend(t *testing.T) {
	for _, valid := range []string{"database", "filesystem", "amazon"} {
		if _, err := ParseBackend(valid); err != nil {
			t.Errorf("expected %q to parse, got %v", valid, err)
		}
	}
	if _, err := ParseBackend("ftp"); err == nil {
		t.Error("expected an error for an unknown backend")
	}
}

func TestIsImage(t *testing.T) {
	f := &File{ContentType: "image/png"}
	if !f.IsImage() {
		t.Error("expected image/png to be an image")
	}
	f = &File{ContentType: "application/pdf"}
	if f.IsImage() {
		t.Error("expected application/pdf not to be an image")
	}
}
