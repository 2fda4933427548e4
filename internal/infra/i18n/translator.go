package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

const DefaultLang = "en"

type Translator struct {
	lang         string
	translations map[string]string
}

// NewTranslator loads locales/<lang>.yaml from fsys.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	filePath := path.Join("locales", langCode+".yaml")
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	return newTranslatorFromBytes(langCode, data)
}

func newTranslatorFromBytes(langCode string, data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return &Translator{lang: langCode, translations: translations}, nil
}

func (t *Translator) Lang() string { return t.lang }

// T returns the message for key, formatted with args. Unknown keys come back as-is.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

// Bundle holds one translator per supported language.
type Bundle struct {
	byLang map[string]*Translator
	def    *Translator
}

// NewBundle loads every listed language. The first one is the fallback.
func NewBundle(fsys fs.FS, langs ...string) (*Bundle, error) {
	if len(langs) == 0 {
		langs = []string{DefaultLang}
	}
	b := &Bundle{byLang: make(map[string]*Translator, len(langs))}
	for _, l := range langs {
		tr, err := NewTranslator(fsys, l)
		if err != nil {
			return nil, err
		}
		b.byLang[l] = tr
		if b.def == nil {
			b.def = tr
		}
	}
	return b, nil
}

// MustDefaultBundle loads the embedded English and Arabic catalogs.
func MustDefaultBundle() *Bundle {
	b, err := NewBundle(LocalesFS, "en", "ar")
	if err != nil {
		panic(err)
	}
	return b
}

// For picks a translator from an Accept-Language header value, e.g.
// "ar-AE,ar;q=0.9,en;q=0.8". Quality values are ignored; order wins.
func (b *Bundle) For(acceptLanguage string) *Translator {
	for _, part := range strings.Split(acceptLanguage, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if tag == "" {
			continue
		}
		base := strings.ToLower(strings.SplitN(tag, "-", 2)[0])
		if tr, ok := b.byLang[base]; ok {
			return tr
		}
	}
	return b.def
}
