//go:build !integration

package i18n

import (
	"testing"
	"testing/fstest"
)

func TestTranslator(t *testing.T) {
	// Arrange
	translator, err := newTranslatorFromBytes("ar", []byte("greeting: مرحبا\nwelcome_user: مرحبا %s"))
	if err != nil {
		t.Fatalf("newTranslatorFromBytes failed: %v", err)
	}

	// Act & Assert
	t.Run("should translate a simple key", func(t *testing.T) {
		if got, want := translator.T("greeting"), "مرحبا"; got != want {
			t.Errorf("wanted '%s', got '%s'", want, got)
		}
	})

	t.Run("should return key if not found", func(t *testing.T) {
		if got, want := translator.T("nonexistent_key"), "nonexistent_key"; got != want {
			t.Errorf("wanted '%s', got '%s'", want, got)
		}
	})

	t.Run("should format arguments correctly", func(t *testing.T) {
		if got, want := translator.T("welcome_user", "Sara"), "مرحبا Sara"; got != want {
			t.Errorf("wanted '%s', got '%s'", want, got)
		}
	})
}

func TestBundle_For(t *testing.T) {
	fsys := fstest.MapFS{
		"locales/en.yaml": {Data: []byte("hello: Hello")},
		"locales/ar.yaml": {Data: []byte("hello: أهلا")},
	}
	b, err := NewBundle(fsys, "en", "ar")
	if err != nil {
		t.Fatalf("NewBundle: %v", err)
	}

	cases := map[string]string{
		"":                        "en",
		"ar":                      "ar",
		"ar-AE,ar;q=0.9,en;q=0.8": "ar",
		"fr-FR, en-GB;q=0.7":      "en",
		"de":                      "en",
		" AR-ae ":                 "ar",
	}
	for header, want := range cases {
		if got := b.For(header).Lang(); got != want {
			t.Errorf("For(%q) = %s, want %s", header, got, want)
		}
	}
}

func TestEmbeddedCatalogsAgree(t *testing.T) {
	b := MustDefaultBundle()
	en, ar := b.byLang["en"], b.byLang["ar"]
	for key := range en.translations {
		if _, ok := ar.translations[key]; !ok {
			t.Errorf("ar catalog missing key %q", key)
		}
	}
	if len(en.translations) != len(ar.translations) {
		t.Errorf("catalog sizes differ: en=%d ar=%d", len(en.translations), len(ar.translations))
	}
}

func TestNewBundle_MissingLocale(t *testing.T) {
	if _, err := NewBundle(fstest.MapFS{}, "en"); err == nil {
		t.Fatal("expected error for missing locale file")
	}
}
