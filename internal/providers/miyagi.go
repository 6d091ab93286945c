// Package providers fetches and extracts the concert schedule from the site.
package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrScheduleNotFound indicates the page no longer carries the concerts section.
var ErrScheduleNotFound = errors.New("concerts section not found")

const (
	scheduleHeader = "Расписание концертов Мияги 2025/2026:"

	// trailing teaser the site appends when more dates are expected
	announcementsSuffix = " — следите за анонсами"
)

type MiyagiProvider struct {
	url      string
	loadPage func(context.Context, string) ([]byte, error)
}

func NewMiyagiProvider(url string) *MiyagiProvider {
	return &MiyagiProvider{
		url:      url,
		loadPage: loadPage,
	}
}

// Schedule fetches the current concert schedule and returns it as a
// ready-to-send message: the fixed header followed by the cleaned page text.
func (p *MiyagiProvider) Schedule(ctx context.Context) (string, error) {
	html, err := p.loadPage(ctx, p.url)
	if err != nil {
		return "", fmt.Errorf("load schedule page: %w", err)
	}

	text, err := parseSchedulePage(html)
	if err != nil {
		return "", fmt.Errorf("parse schedule page: %w", err)
	}

	return scheduleHeader + "\n\n" + text, nil
}

func parseSchedulePage(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse HTML: %w", err)
	}

	section := doc.Find("div#concerts").First()
	if section == nil || section.Length() == 0 {
		return "", ErrScheduleNotFound
	}

	text := strings.TrimSpace(section.Text())
	text = strings.TrimSuffix(text, announcementsSuffix)
	if text == "" {
		return "", fmt.Errorf("%w: section is empty", ErrScheduleNotFound)
	}

	return text, nil
}

func loadPage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("get schedule from page=%s: %w", url, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get schedule from page=%s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get schedule from page=%s: status=%s", url, resp.Status)
	}

	var res bytes.Buffer
	_, err = res.ReadFrom(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read schedule from page=%s: %w", url, err)
	}

	return res.Bytes(), nil
}
