package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"healthboard/internal/domain"
	"healthboard/internal/repository"
	"healthboard/pkg/logger"
)

const (
	cdcRSSFeedURL = "https://tools.cdc.gov/api/v2/resources/media/132608.rss"
	nycNewsURL    = "https://www.nyc.gov/site/doh/about/press/recent-press-releases.page"
	nysNewsURL    = "https://info.nystateofhealth.ny.gov/news"

	newsItemsPerSource = 5
)

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Link        string `xml:"link"`
}

// NewsService syncs public-health news alerts from three sources: the NYC
// health department press page, the NY State of Health news page, and the
// CDC Health Alert Network RSS feed. Each source fails independently to an
// empty list, so one unreachable site never blanks the others.
type NewsService struct {
	repo   repository.NewsRepository
	client *http.Client
	logger *logger.Logger
}

// NewNewsService creates a new news alert service
func NewNewsService(repo repository.NewsRepository, client *http.Client, log *logger.Logger) *NewsService {
	return &NewsService{repo: repo, client: client, logger: log}
}

// Name identifies this adapter in sync logs and error messages.
func (s *NewsService) Name() string { return "news" }

// SyncData fetches all three sources and snapshot-replaces the stored alerts.
func (s *NewsService) SyncData(ctx context.Context) error {
	alerts := make([]domain.NewsAlert, 0, 3*newsItemsPerSource)
	alerts = append(alerts, s.fetchNYCNews(ctx)...)
	alerts = append(alerts, s.fetchNYSNews(ctx)...)
	alerts = append(alerts, s.fetchCDCNews(ctx)...)

	if err := s.repo.ReplaceAll(ctx, alerts); err != nil {
		return fmt.Errorf("failed to store news alerts: %w", err)
	}

	s.logger.WithField("alerts", len(alerts)).Info("News alerts synced")
	return nil
}

// GetData serves the stored snapshot grouped by region.
func (s *NewsService) GetData(ctx context.Context) (*domain.NewsData, error) {
	return s.repo.GetData(ctx)
}

// fetchNYCNews scrapes the press release listing. Each release is a
// paragraph holding a bold date and a linked title.
func (s *NewsService) fetchNYCNews(ctx context.Context) []domain.NewsAlert {
	doc, err := s.fetchDocument(ctx, nycNewsURL)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to scrape NYC news")
		return nil
	}
	return parseNYCNews(doc)
}

func parseNYCNews(doc *goquery.Document) []domain.NewsAlert {
	var alerts []domain.NewsAlert
	doc.Find("p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(alerts) >= newsItemsPerSource {
			return false
		}

		dateText := strings.TrimSpace(sel.Find("strong").Text())
		link := sel.Find("a")
		title := strings.TrimSpace(link.Text())
		href, hasHref := link.Attr("href")

		if dateText == "" || title == "" || !hasHref {
			return true
		}
		if strings.HasPrefix(href, "/") {
			href = "https://www.nyc.gov" + href
		}

		alerts = append(alerts, domain.NewsAlert{
			ID:       newsAlertID("nyc", href),
			Title:    title,
			Summary:  "Press Release via NYC Health",
			Date:     dateText,
			Severity: "info",
			Source:   "NYC Department of Health",
			URL:      href,
			Region:   "nyc",
		})
		return true
	})

	return alerts
}

// fetchNYSNews scrapes the state health marketplace news listing.
func (s *NewsService) fetchNYSNews(ctx context.Context) []domain.NewsAlert {
	doc, err := s.fetchDocument(ctx, nysNewsURL)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to scrape NYS news")
		return nil
	}
	return parseNYSNews(doc)
}

func parseNYSNews(doc *goquery.Document) []domain.NewsAlert {
	var alerts []domain.NewsAlert
	doc.Find("article.node--type-news").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(alerts) >= newsItemsPerSource {
			return false
		}

		link := sel.Find("h2.node__title a")
		if link.Length() == 0 {
			return true
		}

		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if strings.HasPrefix(href, "/") {
			href = "https://info.nystateofhealth.ny.gov" + href
		}

		dateText := strings.TrimSpace(sel.Find(".field--name-field-publication-date time").Text())
		if dateText == "" {
			dateText = time.Now().UTC().Format("2006-01-02")
		}

		alerts = append(alerts, domain.NewsAlert{
			ID:       newsAlertID("nys", href),
			Title:    title,
			Summary:  "News & Events via NY State of Health",
			Date:     dateText,
			Severity: "info",
			Source:   "NY State of Health",
			URL:      href,
			Region:   "nys",
		})
		return true
	})

	return alerts
}

// fetchCDCNews reads the Health Alert Network RSS feed.
func (s *NewsService) fetchCDCNews(ctx context.Context) []domain.NewsAlert {
	body, err := s.fetchBody(ctx, cdcRSSFeedURL)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to fetch CDC news feed")
		return nil
	}

	alerts, err := parseCDCFeed(body)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to parse CDC news feed")
		return nil
	}
	return alerts
}

func parseCDCFeed(body []byte) ([]domain.NewsAlert, error) {
	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, err
	}

	var alerts []domain.NewsAlert
	for i, item := range feed.Channel.Items {
		if i >= newsItemsPerSource {
			break
		}

		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = "Unknown Alert"
		}
		date := strings.TrimSpace(item.PubDate)
		if date == "" {
			date = time.Now().UTC().Format(time.RFC3339)
		}

		alerts = append(alerts, domain.NewsAlert{
			ID:       fmt.Sprintf("cdc-%d", i),
			Title:    title,
			Summary:  strings.TrimSpace(item.Description),
			Date:     date,
			Severity: "info",
			Source:   "CDC Health Alert Network",
			URL:      strings.TrimSpace(item.Link),
			Region:   "usa",
		})
	}

	return alerts, nil
}

func (s *NewsService) fetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	body, err := s.fetchBody(ctx, url)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(string(body)))
}

func (s *NewsService) fetchBody(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}

	return io.ReadAll(resp.Body)
}

// newsAlertID derives a stable identifier from the item's URL so a re-sync
// of unchanged pages produces the same IDs.
func newsAlertID(region, url string) string {
	sum := md5.Sum([]byte(url))
	return fmt.Sprintf("%s-%s", region, hex.EncodeToString(sum[:])[:9])
}
