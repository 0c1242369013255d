// Package resolver extracts episode links and direct file URLs from
// musicforprogramming.net markup.
package resolver

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	apperrors "mfpget/pkg/errors"
)

const (
	episodeListSelector = "#episodes"
	episodeLinkSelector = "#episodes a"
	fileLinkSelector    = "div .pad a[href$=mp3]"
)

// Resolver holds the compiled page queries. Built once at startup and shared
// read-only across all resolution calls.
type Resolver struct {
	episodeList cascadia.Selector
	episodeLink cascadia.Selector
	fileLink    cascadia.Selector
}

// New compiles the selectors. The selectors are constants, so a compile
// failure is a programming error.
func New() *Resolver {
	return &Resolver{
		episodeList: cascadia.MustCompile(episodeListSelector),
		episodeLink: cascadia.MustCompile(episodeLinkSelector),
		fileLink:    cascadia.MustCompile(fileLinkSelector),
	}
}

// EpisodeLinks returns the subpage references of every listed episode, in
// document order. Zero episodes is a valid result; a missing episode list
// container is not.
func (r *Resolver) EpisodeLinks(doc *goquery.Document) ([]string, error) {
	if doc.FindMatcher(r.episodeList).Length() == 0 {
		return nil, apperrors.New(apperrors.ErrorTypeNotFound, "episode list not found on index page")
	}

	var refs []string
	doc.FindMatcher(r.episodeLink).Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok && href != "" {
			refs = append(refs, href)
		}
	})
	return refs, nil
}

// FileURL returns the first downloadable-file link on the page
func (r *Resolver) FileURL(doc *goquery.Document) (string, error) {
	sel := doc.FindMatcher(r.fileLink).First()
	if sel.Length() == 0 {
		return "", apperrors.New(apperrors.ErrorTypeNotFound, "no file link found on page")
	}

	href, ok := sel.Attr("href")
	if !ok || href == "" {
		return "", apperrors.New(apperrors.ErrorTypeNotFound, "file link has no href")
	}
	return href, nil
}
