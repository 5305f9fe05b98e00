package questionbank

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Registry builds one Bank per language on first use and shares it for the
// lifetime of the process.
type Registry struct {
	source Source
	opts   BuildOptions

	mu    sync.Mutex
	banks map[Language]*Bank
}

func NewRegistry(source Source, opts BuildOptions) *Registry {
	return &Registry{
		source: source,
		opts:   opts,
		banks:  make(map[Language]*Bank),
	}
}

// Bank returns the bank for lang, building it if needed. Unsupported languages
// resolve to DefaultLanguage.
func (r *Registry) Bank(ctx context.Context, lang Language) (*Bank, error) {
	if !lang.Supported() {
		lang = DefaultLanguage
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.banks[lang]; ok {
		return b, nil
	}
	ds, err := r.source.Load(ctx, lang)
	if err != nil {
		return nil, fmt.Errorf("load question bank %s: %w", lang, err)
	}
	b := Build(lang, ds, r.opts)
	r.banks[lang] = b
	return b, nil
}

// URLImageResolver joins image keys onto a base URL. With an empty base the
// key itself is used as the URI.
func URLImageResolver(base string) ImageResolver {
	base = strings.TrimRight(base, "/")
	return func(key string) string {
		key = strings.TrimLeft(strings.TrimSpace(key), "/")
		if key == "" {
			return ""
		}
		if base == "" {
			return key
		}
		return base + "/" + key
	}
}
