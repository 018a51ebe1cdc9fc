package scraper

import (
	"bufio"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

// ExtractDocument turns rendered page HTML into a Document.
// With mainOnly set the body is reduced to the readability article first.
func ExtractDocument(rawURL, html string, mainOnly bool) (Document, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return Document{}, fmt.Errorf("parse url: %w", err)
	}

	page, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Document{}, fmt.Errorf("parse html: %w", err)
	}

	doc := Document{
		Title:   firstNonEmpty(metaContent(page, `meta[property="og:title"]`), normalizeText(page.Find("title").First().Text())),
		OGImage: absoluteURL(pageURL, metaContent(page, `meta[property="og:image"]`, `meta[name="twitter:image"]`)),
		Extract: Extract{
			Author: metaContent(page, `meta[name="author"]`, `meta[property="article:author"]`),
			PublishedAt: firstNonEmpty(
				metaContent(page, `meta[property="article:published_time"]`, `meta[name="date"]`, `meta[itemprop="datePublished"]`),
				attr(page.Find("time[datetime]").First(), "datetime"),
			),
		},
	}

	body := page.Find("body")
	if mainOnly {
		parser := readability.NewParser()
		article, err := parser.Parse(strings.NewReader(html), pageURL)
		if err != nil {
			return Document{}, fmt.Errorf("readability: %w", err)
		}
		if t := normalizeText(article.Title); t != "" {
			doc.Title = t
		}
		content, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
		if err != nil {
			return Document{}, fmt.Errorf("parse article html: %w", err)
		}
		body = content.Selection
	}

	doc.Markdown = toMarkdown(body)
	return doc, nil
}

// toMarkdown renders headings, paragraphs, list items, quotes and code blocks in document order.
func toMarkdown(sel *goquery.Selection) string {
	var blocks []string
	sel.Find("h1,h2,h3,h4,h5,h6,p,li,pre,blockquote").Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)

		// Nested blocks are rendered by their container.
		if tag != "li" && s.ParentsFiltered("li,blockquote,pre").Length() > 0 {
			return
		}

		switch tag {
		case "pre":
			code := strings.TrimRight(s.Text(), "\n ")
			if code == "" {
				return
			}
			lang, _ := s.Find("code").Attr("class")
			lang = strings.TrimPrefix(lang, "language-")
			blocks = append(blocks, "```"+lang+"\n"+code+"\n```")
		default:
			text := normalizeText(s.Text())
			if text == "" {
				return
			}
			switch tag {
			case "li":
				blocks = append(blocks, "- "+text)
			case "blockquote":
				blocks = append(blocks, "> "+text)
			case "p":
				blocks = append(blocks, text)
			default:
				level := int(tag[1] - '0')
				blocks = append(blocks, strings.Repeat("#", level)+" "+text)
			}
		}
	})
	return strings.Join(blocks, "\n\n")
}

// normalizeText trims every line and joins the non-empty ones with a space.
func normalizeText(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			b.WriteString(line)
			b.WriteString(" ")
		}
	}
	return strings.TrimSpace(b.String())
}

func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, selector := range selectors {
		if v := attr(doc.Find(selector).First(), "content"); v != "" {
			return v
		}
	}
	return ""
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func absoluteURL(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}
