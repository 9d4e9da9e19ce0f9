// Package i18n translates user-facing notices. Messages are YAML files
// embedded from locales/, one per language.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// Supported lists the locale tags that ship with the binary.
var Supported = []string{"en", "zh-TW", "zh-CN"}

// Translator renders messages in one language, falling back to English.
type Translator struct {
	localizer *i18n.Localizer
	lang      string
}

// New loads the embedded locales and returns a Translator for lang.
func New(lang string) (*Translator, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	files, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return nil, fmt.Errorf("i18n: read locales: %w", err)
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + f.Name())
		if err != nil {
			return nil, fmt.Errorf("i18n: read %s: %w", f.Name(), err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, f.Name()); err != nil {
			return nil, fmt.Errorf("i18n: parse %s: %w", f.Name(), err)
		}
	}
	if lang == "" {
		lang = "en"
	}
	return &Translator{localizer: i18n.NewLocalizer(bundle, lang, "en"), lang: lang}, nil
}

// Lang returns the requested language tag.
func (t *Translator) Lang() string {
	return t.lang
}

// T translates messageID. If the ID is unknown it is returned as is.
func (t *Translator) T(messageID string) string {
	return t.TName(messageID, "")
}

// TName translates messageID with {{.Name}} set to name.
func (t *Translator) TName(messageID, name string) string {
	msg, err := t.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: map[string]string{"Name": name},
	})
	if err != nil {
		return messageID
	}
	return msg
}
