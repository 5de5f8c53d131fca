package service

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nycPressPage = `
<html><body>
<p><strong>August 28, 2025</strong> - <a href="/site/doh/about/press/pr2025/measles-update.page">Health Department Issues Measles Update</a></p>
<p><strong>August 25, 2025</strong> - <a href="https://www.nyc.gov/site/doh/about/press/pr2025/west-nile.page">West Nile Virus Detected</a></p>
<p>Just a paragraph with no press release in it.</p>
<p><strong>August 20, 2025</strong></p>
<p><strong>August 18, 2025</strong> - <a href="/a">1</a></p>
<p><strong>August 17, 2025</strong> - <a href="/b">2</a></p>
<p><strong>August 16, 2025</strong> - <a href="/c">3</a></p>
<p><strong>August 15, 2025</strong> - <a href="/d">4</a></p>
</body></html>`

const nysNewsPage = `
<html><body>
<article class="node--type-news">
  <h2 class="node__title"><a href="/news/open-enrollment-2026">Open Enrollment Begins</a></h2>
  <div class="field--name-field-publication-date"><time>2025-08-20</time></div>
</article>
<article class="node--type-news">
  <h2 class="node__title"><a href="https://info.nystateofhealth.ny.gov/news/premiums">Premium Changes Announced</a></h2>
</article>
<article class="node--type-news">
  <h2 class="node__title"></h2>
</article>
</body></html>`

const cdcFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
<item><title>HAN Alert 1</title><description>First alert</description><pubDate>Thu, 28 Aug 2025 12:00:00 GMT</pubDate><link>https://emergency.cdc.gov/han/2025/han00501.asp</link></item>
<item><title>HAN Alert 2</title><description>Second alert</description><pubDate>Wed, 27 Aug 2025 12:00:00 GMT</pubDate><link>https://emergency.cdc.gov/han/2025/han00500.asp</link></item>
<item><title></title><description></description><pubDate></pubDate><link></link></item>
<item><title>HAN Alert 4</title><description></description><pubDate>x</pubDate><link>y</link></item>
<item><title>HAN Alert 5</title><description></description><pubDate>x</pubDate><link>y</link></item>
<item><title>HAN Alert 6 should be dropped</title><description></description><pubDate>x</pubDate><link>y</link></item>
</channel></rss>`

func loadDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestParseNYCNews(t *testing.T) {
	alerts := parseNYCNews(loadDoc(t, nycPressPage))

	// Capped at five even though six releases are on the page.
	require.Len(t, alerts, 5)

	first := alerts[0]
	assert.Equal(t, "Health Department Issues Measles Update", first.Title)
	assert.Equal(t, "August 28, 2025", first.Date)
	assert.Equal(t, "https://www.nyc.gov/site/doh/about/press/pr2025/measles-update.page", first.URL)
	assert.Equal(t, "nyc", first.Region)
	assert.Equal(t, "NYC Department of Health", first.Source)
	assert.True(t, strings.HasPrefix(first.ID, "nyc-"))

	// Absolute links pass through untouched.
	assert.Equal(t, "https://www.nyc.gov/site/doh/about/press/pr2025/west-nile.page", alerts[1].URL)
}

func TestParseNYCNews_StableIDs(t *testing.T) {
	first := parseNYCNews(loadDoc(t, nycPressPage))
	second := parseNYCNews(loadDoc(t, nycPressPage))

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestParseNYSNews(t *testing.T) {
	alerts := parseNYSNews(loadDoc(t, nysNewsPage))

	// The article without a title link is skipped.
	require.Len(t, alerts, 2)

	assert.Equal(t, "Open Enrollment Begins", alerts[0].Title)
	assert.Equal(t, "2025-08-20", alerts[0].Date)
	assert.Equal(t, "https://info.nystateofhealth.ny.gov/news/open-enrollment-2026", alerts[0].URL)
	assert.Equal(t, "nys", alerts[0].Region)

	// A missing publication date falls back to today rather than empty.
	assert.NotEmpty(t, alerts[1].Date)
}

func TestParseCDCFeed(t *testing.T) {
	alerts, err := parseCDCFeed([]byte(cdcFeedXML))
	require.NoError(t, err)

	// Capped at five items.
	require.Len(t, alerts, 5)

	assert.Equal(t, "HAN Alert 1", alerts[0].Title)
	assert.Equal(t, "First alert", alerts[0].Summary)
	assert.Equal(t, "usa", alerts[0].Region)
	assert.Equal(t, "CDC Health Alert Network", alerts[0].Source)
	assert.Equal(t, "cdc-0", alerts[0].ID)

	// Blank titles and dates get placeholders.
	assert.Equal(t, "Unknown Alert", alerts[2].Title)
	assert.NotEmpty(t, alerts[2].Date)
}

func TestParseCDCFeed_Malformed(t *testing.T) {
	_, err := parseCDCFeed([]byte("this is not xml"))
	assert.Error(t, err)
}
