package retrieval

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"literas-be/internal/pkg/logger"
)

const (
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/"
	clientModule   = "PubMedClient"
)

// ErrThrottled is returned when the provider answers 429.
var ErrThrottled = errors.New("retrieval: provider throttled the request")

// StatusError is any other non-2xx answer.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("retrieval: %s returned status %d: %s", e.Op, e.Code, e.Body)
}

// Client runs one search and fetches full records for a batch of ids.
type Client interface {
	Search(ctx context.Context, query string, maxResults int) ([]string, error)
	Fetch(ctx context.Context, ids []string) ([]Paper, error)
}

type PubMedConfig struct {
	BaseURL string
	APIKey  string
	DB      string
	Timeout time.Duration
}

// PubMedClient talks to the NCBI E-utilities. It does no pacing of its own;
// the pipeline acquires the rate limiter before every call.
type PubMedClient struct {
	cfg    PubMedConfig
	http   *http.Client
	logger logger.ILogger
}

func NewPubMedClient(cfg PubMedConfig, log logger.ILogger) *PubMedClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.DB == "" {
		cfg.DB = "pubmed"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &PubMedClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: log,
	}
}

var _ Client = (*PubMedClient)(nil)

func (c *PubMedClient) Search(ctx context.Context, query string, maxResults int) ([]string, error) {
	params := url.Values{}
	params.Set("db", c.cfg.DB)
	params.Set("term", query)
	params.Set("retmax", strconv.Itoa(maxResults))
	params.Set("retmode", "json")

	body, err := c.get(ctx, "esearch", params)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var result struct {
		ESearchResult struct {
			IDList []string `json:"idlist"`
		} `json:"esearchresult"`
	}
	if err := json.NewDecoder(body).Decode(&result); err != nil {
		return nil, fmt.Errorf("retrieval: decode esearch response: %w", err)
	}
	ids := result.ESearchResult.IDList
	if maxResults > 0 && len(ids) > maxResults {
		ids = ids[:maxResults]
	}
	return ids, nil
}

func (c *PubMedClient) Fetch(ctx context.Context, ids []string) ([]Paper, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("db", c.cfg.DB)
	params.Set("id", strings.Join(ids, ","))
	params.Set("retmode", "xml")

	body, err := c.get(ctx, "efetch", params)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return c.parseArticles(body), nil
}

func (c *PubMedClient) get(ctx context.Context, op string, params url.Values) (io.ReadCloser, error) {
	if c.cfg.APIKey != "" {
		params.Set("api_key", c.cfg.APIKey)
	}
	endpoint := c.cfg.BaseURL + op + ".fcgi?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieval: build %s request: %w", op, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %s: %w", op, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w", op, ErrThrottled)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		resp.Body.Close()
		return nil, &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	return resp.Body, nil
}

type markup struct {
	Inner string `xml:",innerxml"`
}

type typedID struct {
	Type  string `xml:"IdType,attr"`
	Value string `xml:",chardata"`
}

type eLocation struct {
	Type  string `xml:"EIdType,attr"`
	Value string `xml:",chardata"`
}

type author struct {
	LastName       string `xml:"LastName"`
	ForeName       string `xml:"ForeName"`
	CollectiveName string `xml:"CollectiveName"`
}

type pubmedArticle struct {
	Citation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Journal struct {
				Title   string `xml:"Title"`
				PubDate struct {
					Year        string `xml:"Year"`
					Month       string `xml:"Month"`
					MedlineDate string `xml:"MedlineDate"`
				} `xml:"JournalIssue>PubDate"`
			} `xml:"Journal"`
			Title      markup      `xml:"ArticleTitle"`
			Abstract   []markup    `xml:"Abstract>AbstractText"`
			Authors    []author    `xml:"AuthorList>Author"`
			ELocations []eLocation `xml:"ELocationID"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
	ArticleIDs []typedID `xml:"PubmedData>ArticleIdList>ArticleId"`
}

// parseArticles streams PubmedArticle elements. A record that cannot be
// normalized is skipped; a syntax error ends the document but keeps what was
// decoded before it.
func (c *PubMedClient) parseArticles(r io.Reader) []Paper {
	dec := xml.NewDecoder(r)
	dec.Entity = xml.HTMLEntity

	var papers []Paper
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			c.logger.Warn(clientModule, "Fetch document truncated by syntax error", map[string]interface{}{
				"error":  err,
				"parsed": len(papers),
			})
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "PubmedArticle" {
			continue
		}

		var raw pubmedArticle
		if err := dec.DecodeElement(&raw, &start); err != nil {
			c.logger.Warn(clientModule, "Fetch document truncated by syntax error", map[string]interface{}{
				"error":  err,
				"parsed": len(papers),
			})
			break
		}
		paper, err := normalize(raw)
		if err != nil {
			c.logger.Warn(clientModule, "Skipping malformed record", map[string]interface{}{"error": err})
			continue
		}
		papers = append(papers, paper)
	}
	return papers
}

var errMalformedRecord = errors.New("record has no id, title or doi")

func normalize(a pubmedArticle) (Paper, error) {
	art := a.Citation.Article

	title := cleanMarkup(art.Title.Inner)
	doi := ""
	for _, id := range a.ArticleIDs {
		if strings.EqualFold(id.Type, "doi") && strings.TrimSpace(id.Value) != "" {
			doi = strings.TrimSpace(id.Value)
			break
		}
	}
	if doi == "" {
		for _, loc := range art.ELocations {
			if strings.EqualFold(loc.Type, "doi") && strings.TrimSpace(loc.Value) != "" {
				doi = strings.TrimSpace(loc.Value)
				break
			}
		}
	}
	pmid := strings.TrimSpace(a.Citation.PMID)
	if pmid == "" && title == "" && doi == "" {
		return Paper{}, errMalformedRecord
	}

	var sections []string
	for _, part := range art.Abstract {
		if text := cleanMarkup(part.Inner); text != "" {
			sections = append(sections, text)
		}
	}

	return Paper{
		Title:           orDefault(title, NoTitle),
		Abstract:        orDefault(strings.Join(sections, " "), NoAbstract),
		Journal:         orDefault(art.Journal.Title, NoJournal),
		PublicationDate: publicationDate(art.Journal.PubDate.Year, art.Journal.PubDate.Month, art.Journal.PubDate.MedlineDate),
		DOI:             orDefault(doi, NoDOI),
		FirstAuthor:     firstAuthor(art.Authors),
		ExternalID:      pmid,
	}, nil
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
	yearPattern  = regexp.MustCompile(`\b(\d{4})\b`)
)

func cleanMarkup(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

var monthNumbers = map[string]string{
	"jan": "01", "feb": "02", "mar": "03", "apr": "04", "may": "05", "jun": "06",
	"jul": "07", "aug": "08", "sep": "09", "oct": "10", "nov": "11", "dec": "12",
}

// publicationDate renders YYYY-MM. The month defaults to 01, the year comes
// from MedlineDate when Year is absent.
func publicationDate(year, month, medline string) string {
	year = strings.TrimSpace(year)
	if year == "" {
		if m := yearPattern.FindStringSubmatch(medline); m != nil {
			year = m[1]
		}
	}
	if year == "" {
		return NoDate
	}

	mm := "01"
	month = strings.TrimSpace(month)
	if n, err := strconv.Atoi(month); err == nil && n >= 1 && n <= 12 {
		mm = fmt.Sprintf("%02d", n)
	} else if len(month) >= 3 {
		if v, ok := monthNumbers[strings.ToLower(month[:3])]; ok {
			mm = v
		}
	}
	return year + "-" + mm
}

func firstAuthor(authors []author) string {
	if len(authors) == 0 {
		return NoAuthor
	}
	a := authors[0]
	name := strings.TrimSpace(strings.TrimSpace(a.ForeName) + " " + strings.TrimSpace(a.LastName))
	if name == "" {
		name = strings.TrimSpace(a.CollectiveName)
	}
	if name == "" {
		return NoAuthor
	}
	if len(authors) > 1 {
		name += " et al."
	}
	return name
}
