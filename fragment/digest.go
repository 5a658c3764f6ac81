package fragment

import (
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

var (
	mdOnce      sync.Once
	mdConverter *converter.Converter
)

func markdownConverter() *converter.Converter {
	mdOnce.Do(func() {
		mdConverter = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		)
	})
	return mdConverter
}

// ContextDigest renders the targeted markup as markdown for outbound prompt
// context. Generators follow the content far better when they see it as
// readable text next to the raw markup. Returns "" when conversion fails;
// the digest is an enrichment, never a hard requirement.
func (p *Pipeline) ContextDigest(markup string) string {
	md, err := markdownConverter().ConvertString(markup)
	if err != nil {
		p.logger.Warn("fragment: context digest failed", "error", err)
		return ""
	}
	return strings.TrimSpace(md)
}
